package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"github.com/smartcontractkit/x402-cre-price-alerts/internal/alert"
)

// SubmitRequest is the JSON body accepted on the report endpoint. Metadata
// and report are 0x-prefixed hex.
type SubmitRequest struct {
	Sender   string `json:"sender"`
	Metadata string `json:"metadata"`
	Report   string `json:"report"`
}

// SubmitResponse is returned on a successful append.
type SubmitResponse struct {
	RuleID string `json:"ruleId"`
	Index  uint64 `json:"index"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server exposes the ingest pipeline over HTTP.
type Server struct {
	pipeline *Pipeline
	addr     string
	logger   zerolog.Logger
}

// NewServer constructs the ingest HTTP server.
func NewServer(pipeline *Pipeline, addr string, logger zerolog.Logger) *Server {
	return &Server{
		pipeline: pipeline,
		addr:     addr,
		logger:   logger.With().Str("component", "ingest_server").Logger(),
	}
}

// Handler builds the route mux; exported so tests can drive it directly.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/reports", s.handleSubmit)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("ingest endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	if !common.IsHexAddress(req.Sender) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid sender address"})
		return
	}
	sender := common.HexToAddress(req.Sender)

	metadata, err := hexutil.Decode(req.Metadata)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid metadata hex"})
		return
	}
	report, err := hexutil.Decode(req.Report)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid report hex"})
		return
	}

	rule, index, err := s.pipeline.Ingest(r.Context(), sender, metadata, report)
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, SubmitResponse{RuleID: rule.ID.Hex(), Index: index})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorizedSender),
		errors.Is(err, ErrInvalidOrigin),
		errors.Is(err, ErrInvalidOwner),
		errors.Is(err, ErrInvalidName):
		return http.StatusForbidden
	case errors.Is(err, ErrBadMetadata),
		errors.Is(err, alert.ErrMalformedReport):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
