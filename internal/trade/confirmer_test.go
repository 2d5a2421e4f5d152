package trade

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-launchpad/internal/solana"
)

// rpcStub serves getSignatureStatuses, returning pending until
// confirmAfter polls have happened, then the terminal payload.
func rpcStub(t *testing.T, confirmAfter int64, terminal map[string]interface{}, polls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getSignatureStatuses", req["method"])

		var value interface{}
		if polls.Add(1) >= confirmAfter {
			value = terminal
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req["id"],
			"result":  map[string]interface{}{"value": []interface{}{value}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestConfirmer_Confirmed(t *testing.T) {
	var polls atomic.Int64
	server := rpcStub(t, 2, map[string]interface{}{
		"slot":               int64(5000),
		"confirmationStatus": "confirmed",
		"err":                nil,
	}, &polls)
	defer server.Close()

	confirmer := NewConfirmer(solana.NewClient(server.URL),
		WithPollInterval(10*time.Millisecond),
		WithConfirmBudget(5*time.Second),
	)

	confirmer.Watch("txsig123")
	confirmer.Wait()

	assert.GreaterOrEqual(t, polls.Load(), int64(2))
}

func TestConfirmer_Failed(t *testing.T) {
	var polls atomic.Int64
	server := rpcStub(t, 1, map[string]interface{}{
		"slot":               int64(5000),
		"confirmationStatus": "finalized",
		"err":                map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
	}, &polls)
	defer server.Close()

	confirmer := NewConfirmer(solana.NewClient(server.URL),
		WithPollInterval(10*time.Millisecond),
		WithConfirmBudget(5*time.Second),
	)

	confirmer.Watch("txsig123")
	confirmer.Wait()

	assert.Equal(t, int64(1), polls.Load())
}

func TestConfirmer_Timeout(t *testing.T) {
	var polls atomic.Int64
	// Never confirms.
	server := rpcStub(t, 1<<30, nil, &polls)
	defer server.Close()

	confirmer := NewConfirmer(solana.NewClient(server.URL),
		WithPollInterval(10*time.Millisecond),
		WithConfirmBudget(100*time.Millisecond),
	)

	start := time.Now()
	confirmer.Watch("txsig123")
	confirmer.Wait()

	assert.Less(t, time.Since(start), 3*time.Second, "watch should give up at its budget")
	assert.GreaterOrEqual(t, polls.Load(), int64(1))
}

func TestConfirmer_WatchDoesNotBlock(t *testing.T) {
	var polls atomic.Int64
	server := rpcStub(t, 1<<30, nil, &polls)
	defer server.Close()

	confirmer := NewConfirmer(solana.NewClient(server.URL),
		WithPollInterval(10*time.Millisecond),
		WithConfirmBudget(200*time.Millisecond),
	)

	start := time.Now()
	confirmer.Watch("txsig123")
	if took := time.Since(start); took > 50*time.Millisecond {
		t.Errorf("Watch blocked for %v", took)
	}
	confirmer.Wait()
}
