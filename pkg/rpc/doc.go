/*
Package rpc sends single JSON-RPC calls to the configured chain endpoints.

The client resolves a chain id to its endpoint through the current config
snapshot and caches one go-ethereum rpc.Client per chain; caches are dropped
on config reload so URL changes take effect immediately. Three calls are
exposed: Send (eth_sendRawTransaction), Receipt/WaitForConfirmation
(eth_getTransactionReceipt plus eth_blockNumber) and BlockNumber.

The client performs no retry and holds no breaker state; callers wrap it in
the retry manager. Its one classification duty is structural: HTTP 5xx and
429 map to RpcTransient (retryable), other HTTP failures to RpcSemantic,
JSON-RPC error objects to RpcSemantic, and transport failures (connection,
DNS, timeout) to Network. Message text is never inspected.
*/
package rpc
