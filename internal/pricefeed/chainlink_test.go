package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestChainlinkMissingConfig(t *testing.T) {
	feed := NewChainlink(ChainlinkOptions{}, noopLogger())
	if _, err := feed.Latest(context.Background()); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable without rpc url, got %v", err)
	}

	feed = NewChainlink(ChainlinkOptions{RPCURL: "http://localhost"}, noopLogger())
	if _, err := feed.Latest(context.Background()); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable without feed address, got %v", err)
	}
}

// fakeRPC answers every eth_call with the given pre-packed result.
func fakeRPC(t *testing.T, result []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			return
		}
		if req.Method != "eth_call" {
			t.Errorf("unexpected rpc method %q", req.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  hexutil.Encode(result),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChainlinkLatest(t *testing.T) {
	answer := big.NewInt(5_100_000_000_000) // 51000 USD at 8 decimals
	updatedAt := big.NewInt(1700000500)
	packed, err := aggregatorABI.Methods["latestRoundData"].Outputs.Pack(
		big.NewInt(42),
		answer,
		big.NewInt(1700000400),
		updatedAt,
		big.NewInt(42),
	)
	if err != nil {
		t.Fatalf("pack round data: %v", err)
	}
	srv := fakeRPC(t, packed)

	feed := NewChainlink(ChainlinkOptions{
		RPCURL:      srv.URL,
		FeedAddress: "0x1111111111111111111111111111111111111111",
		Timeout:     time.Second,
	}, noopLogger())

	obs, err := feed.Latest(context.Background())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if obs.RoundID.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("round id mismatch: %s", obs.RoundID)
	}
	if obs.Answer.Cmp(answer) != 0 {
		t.Fatalf("answer mismatch: %s", obs.Answer)
	}
	if obs.UpdatedAt != updatedAt.Uint64() {
		t.Fatalf("updatedAt mismatch: %d", obs.UpdatedAt)
	}
	if got := obs.Normalized(8); !got.Equal(decimal.NewFromInt(51000)) {
		t.Fatalf("expected normalized 51000, got %s", got)
	}
}

func TestChainlinkEmptyResult(t *testing.T) {
	srv := fakeRPC(t, nil)

	feed := NewChainlink(ChainlinkOptions{
		RPCURL:      srv.URL,
		FeedAddress: "0x1111111111111111111111111111111111111111",
		Timeout:     time.Second,
	}, noopLogger())

	if _, err := feed.Latest(context.Background()); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable on empty result, got %v", err)
	}
}

func TestObservationNormalizedNilAnswer(t *testing.T) {
	var obs Observation
	if got := obs.Normalized(8); !got.IsZero() {
		t.Fatalf("nil answer must normalize to zero, got %s", got)
	}
}
