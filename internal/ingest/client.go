package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Client submits encoded reports to a running ingest endpoint. Used by the
// CLI ingest command.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient constructs a submit client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Submit posts one (metadata, report) pair on behalf of the sender.
func (c *Client) Submit(ctx context.Context, sender common.Address, metadata, report []byte) (SubmitResponse, error) {
	reqBody, err := json.Marshal(SubmitRequest{
		Sender:   sender.Hex(),
		Metadata: hexutil.Encode(metadata),
		Report:   hexutil.Encode(report),
	})
	if err != nil {
		return SubmitResponse{}, fmt.Errorf("marshal submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/reports", bytes.NewReader(reqBody))
	if err != nil {
		return SubmitResponse{}, fmt.Errorf("create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return SubmitResponse{}, fmt.Errorf("submit report: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return SubmitResponse{}, fmt.Errorf("read submit response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		var parsed errorResponse
		if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
			return SubmitResponse{}, fmt.Errorf("submit rejected (status %d): %s", resp.StatusCode, parsed.Error)
		}
		return SubmitResponse{}, fmt.Errorf("submit rejected (status %d)", resp.StatusCode)
	}

	var result SubmitResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return SubmitResponse{}, fmt.Errorf("decode submit response: %w", err)
	}
	return result, nil
}
