package rpc

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"github.com/airchainpay/relay/pkg/config"
	"github.com/airchainpay/relay/pkg/log"
	"github.com/airchainpay/relay/pkg/types"
)

const (
	// receiptPollInterval is how often confirmation tracking polls
	receiptPollInterval = 5 * time.Second
	// defaultWaitTimeout bounds one confirmation wait
	defaultWaitTimeout = 5 * time.Minute
)

// SnapshotFunc returns the current config snapshot
type SnapshotFunc func() *config.Config

// Client sends single JSON-RPC calls to configured chain endpoints. It
// performs no retry or breaker logic; callers wrap it in the retry manager.
type Client struct {
	snapshot SnapshotFunc

	mu      sync.Mutex
	clients map[uint64]*endpoint

	waitTimeout time.Duration
	logger      zerolog.Logger
}

type endpoint struct {
	url    string
	client *gethrpc.Client
}

// NewClient creates a client resolving endpoints from snapshot
func NewClient(snapshot SnapshotFunc) *Client {
	return &Client{
		snapshot:    snapshot,
		clients:     make(map[uint64]*endpoint),
		waitTimeout: defaultWaitTimeout,
		logger:      log.For(log.RPC),
	}
}

// Invalidate drops cached connections; called after config reloads
func (c *Client) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ep := range c.clients {
		ep.client.Close()
		delete(c.clients, id)
	}
}

// Close releases all cached connections
func (c *Client) Close() {
	c.Invalidate()
}

func (c *Client) endpointFor(chainID uint64) (*gethrpc.Client, error) {
	chain, ok := c.snapshot().Chain(chainID)
	if !ok {
		return nil, types.Ef(types.KindUnknownChain, "chain %d is not configured", chainID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ep, ok := c.clients[chainID]; ok && ep.url == chain.RPCURL {
		return ep.client, nil
	}
	if ep, ok := c.clients[chainID]; ok {
		ep.client.Close()
		delete(c.clients, chainID)
	}

	client, err := gethrpc.Dial(chain.RPCURL)
	if err != nil {
		return nil, types.Wrap(types.KindNetwork, "dial "+chain.RPCURL, err)
	}
	c.clients[chainID] = &endpoint{url: chain.RPCURL, client: client}
	return client, nil
}

// Send broadcasts one signed raw transaction and returns its hash
func (c *Client) Send(ctx context.Context, chainID uint64, raw []byte) (common.Hash, error) {
	client, err := c.endpointFor(chainID)
	if err != nil {
		return common.Hash{}, err
	}

	var hash common.Hash
	if err := client.CallContext(ctx, &hash, "eth_sendRawTransaction", hexutil.Encode(raw)); err != nil {
		return common.Hash{}, Classify(err)
	}

	c.logger.Debug().Uint64("chain_id", chainID).Str("hash", hash.Hex()).Msg("Raw transaction broadcast")
	return hash, nil
}

// rpcReceipt is the subset of the receipt the relay tracks
type rpcReceipt struct {
	BlockNumber *hexutil.Big   `json:"blockNumber"`
	Status      hexutil.Uint64 `json:"status"`
}

// Receipt returns the current confirmation status of hash without waiting
func (c *Client) Receipt(ctx context.Context, chainID uint64, hash common.Hash, confirmations uint64) (types.Receipt, error) {
	client, err := c.endpointFor(chainID)
	if err != nil {
		return types.Receipt{}, err
	}

	var receipt *rpcReceipt
	if err := client.CallContext(ctx, &receipt, "eth_getTransactionReceipt", hash); err != nil {
		return types.Receipt{}, Classify(err)
	}
	if receipt == nil || receipt.BlockNumber == nil {
		return types.Receipt{Status: types.ReceiptPending}, nil
	}

	mined := receipt.BlockNumber.ToInt().Uint64()
	if confirmations == 0 {
		return types.Receipt{Status: types.ReceiptConfirmed, BlockNumber: mined}, nil
	}

	head, err := c.BlockNumber(ctx, chainID)
	if err != nil {
		return types.Receipt{}, err
	}
	if head >= mined && head-mined >= confirmations {
		return types.Receipt{Status: types.ReceiptConfirmed, BlockNumber: mined}, nil
	}
	return types.Receipt{Status: types.ReceiptMined, BlockNumber: mined}, nil
}

// WaitForConfirmation polls until the transaction is confirmed, the wait
// timeout elapses, or ctx is cancelled.
func (c *Client) WaitForConfirmation(ctx context.Context, chainID uint64, hash common.Hash, confirmations uint64) (types.Receipt, error) {
	deadline := time.NewTimer(c.waitTimeout)
	defer deadline.Stop()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.Receipt(ctx, chainID, hash, confirmations)
		if err == nil && receipt.Status == types.ReceiptConfirmed {
			return receipt, nil
		}
		if err != nil && !types.Retryable(err) {
			return types.Receipt{}, err
		}

		select {
		case <-ctx.Done():
			return types.Receipt{}, ctx.Err()
		case <-deadline.C:
			return types.Receipt{Status: types.ReceiptTimeout}, nil
		case <-ticker.C:
		}
	}
}

// BlockNumber returns the chain head height
func (c *Client) BlockNumber(ctx context.Context, chainID uint64) (uint64, error) {
	client, err := c.endpointFor(chainID)
	if err != nil {
		return 0, err
	}

	var head hexutil.Uint64
	if err := client.CallContext(ctx, &head, "eth_blockNumber"); err != nil {
		return 0, Classify(err)
	}
	return uint64(head), nil
}

// Classify maps a transport error onto the relay's error kinds. The
// decision is structural: HTTP status class and the JSON-RPC error
// interface, never message text.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var httpErr gethrpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= 500 || httpErr.StatusCode == 429 {
			return types.Wrap(types.KindRpcTransient, httpErr.Status, err)
		}
		return types.Wrap(types.KindRpcSemantic, httpErr.Status, err)
	}

	// A 2xx response carrying a JSON-RPC error object is a semantic
	// rejection (nonce too low, known transaction, insufficient funds).
	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		return types.Wrap(types.KindRpcSemantic, "json-rpc error", err).
			WithDetail("code", strconv.Itoa(rpcErr.ErrorCode()))
	}

	// Everything else is transport: connection refused, DNS failure,
	// per-attempt timeout.
	if errors.Is(err, context.DeadlineExceeded) {
		return types.Wrap(types.KindNetwork, "rpc timeout", err)
	}
	return types.Wrap(types.KindNetwork, "rpc transport failure", err)
}
