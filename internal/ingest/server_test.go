package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/x402-cre-price-alerts/internal/store"
)

func newTestServer(t *testing.T, opts AuthenticatorOptions) (*httptest.Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	pipeline := NewPipeline(NewAuthenticator(opts, noopLogger()), mem, noopLogger())
	srv := httptest.NewServer(NewServer(pipeline, "", noopLogger()).Handler())
	t.Cleanup(srv.Close)
	return srv, mem
}

func TestServerSubmitCreated(t *testing.T) {
	srv, mem := newTestServer(t, AuthenticatorOptions{})
	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	want, report := encodedRule(t, sender)

	client := NewClient(srv.URL, 5*time.Second)
	resp, err := client.Submit(context.Background(), sender, nil, report)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.Index != 0 {
		t.Fatalf("expected index 0, got %d", resp.Index)
	}
	if resp.RuleID != want.ID.Hex() {
		t.Fatalf("rule id mismatch: %s vs %s", resp.RuleID, want.ID.Hex())
	}

	count, err := mem.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 stored rule, got %d", count)
	}
}

func TestServerRejectsUnauthorizedSender(t *testing.T) {
	trusted := common.HexToAddress("0x1111111111111111111111111111111111111111")
	srv, mem := newTestServer(t, AuthenticatorOptions{TrustedSender: &trusted})

	intruder := common.HexToAddress("0x2222222222222222222222222222222222222222")
	_, report := encodedRule(t, intruder)

	status := postReport(t, srv.URL, SubmitRequest{
		Sender:   intruder.Hex(),
		Metadata: "0x",
		Report:   "0x" + common.Bytes2Hex(report),
	})
	if status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
	assertEmpty(t, mem)
}

func TestServerRejectsMalformedReport(t *testing.T) {
	srv, mem := newTestServer(t, AuthenticatorOptions{})

	status := postReport(t, srv.URL, SubmitRequest{
		Sender:   "0x1111111111111111111111111111111111111111",
		Metadata: "0x",
		Report:   "0xdeadbeef",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	assertEmpty(t, mem)
}

func TestServerRejectsBadSenderAddress(t *testing.T) {
	srv, _ := newTestServer(t, AuthenticatorOptions{})

	status := postReport(t, srv.URL, SubmitRequest{
		Sender:   "not-an-address",
		Metadata: "0x",
		Report:   "0x",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestServerHealthz(t *testing.T) {
	srv, _ := newTestServer(t, AuthenticatorOptions{})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func postReport(t *testing.T, baseURL string, req SubmitRequest) int {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(baseURL+"/v1/reports", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post report: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}
