/*
Package config loads, validates and hot-reloads the relay configuration.

A single Config value describes the whole runtime: chains, rate limits,
security, monitoring, storage, queue, retry and breaker settings. Files may
be JSON or YAML; environment variables override file fields at load time,
including the per-chain <NAME>_RPC_URL / <NAME>_CONTRACT_ADDRESS /
<NAME>_BLOCK_EXPLORER triples.

The Manager owns the live snapshot behind an atomic pointer. Every mutation
validates the full candidate first and then swaps the whole snapshot; there
is no partial update. Subscribers receive each new snapshot on a channel and
refresh their own cached references. A fsnotify watcher on the config file
triggers reloads with a 100 ms debounce; a reload that fails validation
keeps the previous snapshot and emits an audit event.
*/
package config
