/*
Package api is the HTTP transport adapter over the relay core.

The adapter stays deliberately thin: decode the request, call the relay's
in-process contract, translate the error kind to an HTTP status. Submission
and query endpoints live under /api/v1; health endpoints and the Prometheus
scrape surface are served unauthenticated for probes.

Error mapping: validation failures are 400, RateLimited is 429, Duplicate is
409 with the existing id, QueueFull and CircuitOpen are 503 (the latter with
a Retry-After hint), transient upstream failures are 502.
*/
package api
