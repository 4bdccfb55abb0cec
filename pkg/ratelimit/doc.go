/*
Package ratelimit provides sliding-window admission control per device and
operation.

Each (device id, operation) pair owns an ordered window of admission
timestamps. An admission attempt first evicts timestamps older than the
window duration, then admits only while the window holds fewer than the
operation's maximum. The predefined operations are "connect" (5/minute) and
"submit" (10/minute); unknown operations are unbounded.

A separate global counter caps concurrent connections across all devices,
independent of the per-device windows. Prune drops windows for devices that
have gone idle so the map does not grow without bound.
*/
package ratelimit
