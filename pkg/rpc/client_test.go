package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airchainpay/relay/pkg/config"
	"github.com/airchainpay/relay/pkg/log"
	"github.com/airchainpay/relay/pkg/types"
)

func init() {
	log.Init(log.Config{Level: "error", JSONOutput: true})
}

// stubNode is a minimal JSON-RPC endpoint for tests
type stubNode struct {
	mu    sync.Mutex
	calls map[string]int
	serve func(method string, calls int) (result interface{}, rpcErr map[string]interface{}, httpStatus int)
}

func (s *stubNode) handler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[req.Method]++
	n := s.calls[req.Method]
	s.mu.Unlock()

	result, rpcErr, status := s.serve(req.Method, n)
	if status != 0 && status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *stubNode) count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func newStub(t *testing.T, serve func(method string, calls int) (interface{}, map[string]interface{}, int)) (*stubNode, *httptest.Server) {
	t.Helper()
	stub := &stubNode{serve: serve}
	server := httptest.NewServer(http.HandlerFunc(stub.handler))
	t.Cleanup(server.Close)
	return stub, server
}

func testClient(url string) *Client {
	cfg := config.Default()
	cfg.SupportedChains = map[uint64]types.ChainConfig{
		1114: {ChainID: 1114, Name: "Core Testnet2", RPCURL: url},
	}
	return NewClient(func() *config.Config { return cfg })
}

var testHash = common.HexToHash("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

func TestSendReturnsHash(t *testing.T) {
	stub, server := newStub(t, func(method string, calls int) (interface{}, map[string]interface{}, int) {
		return testHash.Hex(), nil, 0
	})

	client := testClient(server.URL)
	defer client.Close()

	hash, err := client.Send(context.Background(), 1114, []byte{0x02, 0x01})
	require.NoError(t, err)
	assert.Equal(t, testHash, hash)
	assert.Equal(t, 1, stub.count("eth_sendRawTransaction"))
}

func TestSendUnknownChain(t *testing.T) {
	client := testClient("http://127.0.0.1:0")
	defer client.Close()

	_, err := client.Send(context.Background(), 999, []byte{0x01})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindUnknownChain))
}

func TestSendServerErrorIsTransient(t *testing.T) {
	_, server := newStub(t, func(method string, calls int) (interface{}, map[string]interface{}, int) {
		return nil, nil, http.StatusServiceUnavailable
	})

	client := testClient(server.URL)
	defer client.Close()

	_, err := client.Send(context.Background(), 1114, []byte{0x01})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindRpcTransient))
	assert.True(t, types.Retryable(err))
}

func TestSendSemanticRejectionIsTerminal(t *testing.T) {
	_, server := newStub(t, func(method string, calls int) (interface{}, map[string]interface{}, int) {
		return nil, map[string]interface{}{"code": -32000, "message": "nonce too low"}, 0
	})

	client := testClient(server.URL)
	defer client.Close()

	_, err := client.Send(context.Background(), 1114, []byte{0x01})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindRpcSemantic))
	assert.False(t, types.Retryable(err))
}

func TestSendConnectionFailureIsNetwork(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := testClient(url)
	defer client.Close()

	_, err := client.Send(context.Background(), 1114, []byte{0x01})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindNetwork))
	assert.True(t, types.Retryable(err))
}

func TestReceiptPendingThenConfirmed(t *testing.T) {
	_, server := newStub(t, func(method string, calls int) (interface{}, map[string]interface{}, int) {
		switch method {
		case "eth_getTransactionReceipt":
			if calls == 1 {
				return nil, nil, 0
			}
			return map[string]interface{}{"blockNumber": "0x64", "status": "0x1"}, nil, 0
		case "eth_blockNumber":
			return "0x6e", nil, 0
		}
		return nil, nil, 0
	})

	client := testClient(server.URL)
	defer client.Close()

	receipt, err := client.Receipt(context.Background(), 1114, testHash, 5)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptPending, receipt.Status)

	receipt, err = client.Receipt(context.Background(), 1114, testHash, 5)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptConfirmed, receipt.Status)
	assert.Equal(t, uint64(0x64), receipt.BlockNumber)
}

func TestReceiptMinedBelowConfirmationTarget(t *testing.T) {
	_, server := newStub(t, func(method string, calls int) (interface{}, map[string]interface{}, int) {
		switch method {
		case "eth_getTransactionReceipt":
			return map[string]interface{}{"blockNumber": "0x64", "status": "0x1"}, nil, 0
		case "eth_blockNumber":
			return "0x65", nil, 0
		}
		return nil, nil, 0
	})

	client := testClient(server.URL)
	defer client.Close()

	receipt, err := client.Receipt(context.Background(), 1114, testHash, 12)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptMined, receipt.Status)
}

func TestBlockNumber(t *testing.T) {
	_, server := newStub(t, func(method string, calls int) (interface{}, map[string]interface{}, int) {
		return "0x10", nil, 0
	})

	client := testClient(server.URL)
	defer client.Close()

	head, err := client.BlockNumber(context.Background(), 1114)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), head)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      types.Kind
		retryable bool
	}{
		{"nil", nil, "", false},
		{"http 500", gethrpc.HTTPError{StatusCode: 500, Status: "500 Internal Server Error"}, types.KindRpcTransient, true},
		{"http 429", gethrpc.HTTPError{StatusCode: 429, Status: "429 Too Many Requests"}, types.KindRpcTransient, true},
		{"http 400", gethrpc.HTTPError{StatusCode: 400, Status: "400 Bad Request"}, types.KindRpcSemantic, false},
		{"deadline", context.DeadlineExceeded, types.KindNetwork, true},
		{"transport", errors.New("connection refused"), types.KindNetwork, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := Classify(tt.err)
			if tt.err == nil {
				assert.NoError(t, classified)
				return
			}
			assert.Equal(t, tt.kind, types.KindOf(classified))
			assert.Equal(t, tt.retryable, types.Retryable(classified))
		})
	}
}
