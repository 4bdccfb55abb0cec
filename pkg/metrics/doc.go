/*
Package metrics exposes the relay's Prometheus metrics and component health.

All metrics are registered under the relay_ prefix at init: queue occupancy,
submission outcomes, RPC attempt counts and latencies, circuit breaker
states and transitions, rate limit denials, audit and backup counters, and
worker utilization. Handler returns the scrape endpoint.

The health Tracker aggregates typed component states (starting, up,
degraded, down). A down critical component (storage, queue, workers) makes
the relay down and not ready; anything else only degrades it, so /health
keeps answering 200 while the relay can still buffer work. Timer is a small
helper for observing durations into histograms.
*/
package metrics
