package api

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airchainpay/relay/pkg/config"
	"github.com/airchainpay/relay/pkg/log"
	"github.com/airchainpay/relay/pkg/relay"
	"github.com/airchainpay/relay/pkg/types"
)

func init() {
	log.Init(log.Config{Level: "error", JSONOutput: true})
}

// stubRPC answers every broadcast with a fixed hash
func stubRPC(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID json.RawMessage `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": req.ID,
			"result": "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		})
	}))
	t.Cleanup(server.Close)
	return server.URL
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.Database.DataDir = t.TempDir()
	cfg.Monitoring.MetricsInterval = 3600
	cfg.Database.BackupInterval = 3600
	cfg.Queue.GracePeriod = 1
	cfg.SupportedChains = map[uint64]types.ChainConfig{
		1114: {ChainID: 1114, Name: "Core Testnet2", RPCURL: stubRPC(t)},
	}
	if mutate != nil {
		mutate(cfg)
	}

	path := filepath.Join(t.TempDir(), "config.json")
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	mgr, err := config.NewManager(path)
	require.NoError(t, err)
	core, err := relay.New(mgr)
	require.NoError(t, err)
	require.NoError(t, core.Start())
	t.Cleanup(core.Stop)

	return NewServer(core)
}

func signedRawHex(t *testing.T, nonce uint64) string {
	t.Helper()
	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   big.NewInt(1114),
		Nonce:     nonce,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21_000,
		To:        &common.Address{0x02},
		Value:     big.NewInt(1),
		V:         big.NewInt(1),
		R:         big.NewInt(2),
		S:         big.NewInt(3),
	})
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return hexutil.Encode(raw)
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSubmitEndpointAcceptsTransaction(t *testing.T) {
	server := newTestServer(t, nil)
	handler := server.routes()

	rec := postJSON(t, handler, "/api/v1/transactions", types.SubmissionRequest{
		RawHex:   signedRawHex(t, 0),
		ChainID:  1114,
		DeviceID: "d1",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var accepted types.Accepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.ID)

	// The status endpoint serves the new transaction
	assert.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/"+accepted.ID, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			return false
		}
		var view types.TxStatusView
		if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
			return false
		}
		return view.Status == types.TxStatusConfirmed
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSubmitEndpointErrorMapping(t *testing.T) {
	server := newTestServer(t, nil)
	handler := server.routes()

	tests := []struct {
		name   string
		body   types.SubmissionRequest
		status int
		kind   string
	}{
		{
			name:   "invalid hex",
			body:   types.SubmissionRequest{RawHex: "0xzz", ChainID: 1114, DeviceID: "d1"},
			status: http.StatusBadRequest,
			kind:   "InvalidInput",
		},
		{
			name:   "unknown chain",
			body:   types.SubmissionRequest{RawHex: signedRawHex(t, 1), ChainID: 424242, DeviceID: "d1"},
			status: http.StatusBadRequest,
			kind:   "UnknownChain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, handler, "/api/v1/transactions", tt.body)
			assert.Equal(t, tt.status, rec.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.kind, body.Kind)
		})
	}
}

func TestDuplicateMapsToConflict(t *testing.T) {
	server := newTestServer(t, nil)
	handler := server.routes()

	raw := signedRawHex(t, 5)
	first := postJSON(t, handler, "/api/v1/transactions", types.SubmissionRequest{RawHex: raw, ChainID: 1114, DeviceID: "d1"})
	require.Equal(t, http.StatusAccepted, first.Code)

	second := postJSON(t, handler, "/api/v1/transactions", types.SubmissionRequest{RawHex: raw, ChainID: 1114, DeviceID: "d1"})
	assert.Equal(t, http.StatusConflict, second.Code)
}

func TestUnknownTransactionIs404(t *testing.T) {
	server := newTestServer(t, nil)
	handler := server.routes()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/nope", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIKeyEnforcement(t *testing.T) {
	server := newTestServer(t, func(cfg *config.Config) {
		cfg.Security.EnableAPIKeyValidation = true
		cfg.Security.APIKey = "sekrit"
	})
	handler := server.routes()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil)
	req.Header.Set("X-API-Key", "sekrit")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open for probes
	req = httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConfigEndpointRedactsSecrets(t *testing.T) {
	server := newTestServer(t, func(cfg *config.Config) {
		cfg.Security.APIKey = "sekrit"
		cfg.Security.JWTSecret = "supersecret"
	})
	handler := server.routes()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got config.Config
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Empty(t, got.Security.APIKey)
	assert.Empty(t, got.Security.JWTSecret)
}

func TestWriteErrorDefaultsToInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Internal", body.Kind)
}

func TestQueueStatsEndpoint(t *testing.T) {
	server := newTestServer(t, nil)
	handler := server.routes()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats types.QueueStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, config.Default().Queue.MaxQueued, stats.Capacity)
}
