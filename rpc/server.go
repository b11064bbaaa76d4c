// Package rpc exposes the router over JSON-RPC 2.0 and streams published
// notifications to observers.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"matchpool/core/events"
	"matchpool/core/types"
	"matchpool/native/admin"
	"matchpool/native/escrow"
	"matchpool/observability/logging"
)

const (
	maxRequestBytes = 1 << 20 // 1 MiB
	requestIDHeader = "X-Request-ID"

	MethodBalance    = "mp_getBalance"
	MethodOperations = "mp_operations"
	MethodEvents     = "mp_events"
)

// Backend is the router surface the server drives.
type Backend interface {
	Dispatch(ctx context.Context, op string, args []byte, caller types.Identity, value *big.Int) ([]byte, error)
	Balance(id types.Identity) (*big.Int, error)
	Operations() ([]string, error)
}

type Config struct {
	Auth               AuthConfig
	RateLimitPerSecond float64
	Burst              int
	Logger             *slog.Logger
}

type Server struct {
	backend Backend
	events  *events.Log
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger
}

func NewServer(backend Backend, log *events.Log, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		backend: backend,
		events:  log,
		auth:    NewAuthenticator(cfg.Auth),
		limiter: NewRateLimiter(cfg.RateLimitPerSecond, cfg.Burst),
		logger:  logger.With(slog.String("component", "rpc")),
	}
}

type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	// Value is the decimal amount attached to the call.
	Value string      `json:"value,omitempty"`
	ID    interface{} `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type BalanceParams struct {
	Identity types.Identity `json:"identity"`
}

type BalanceResult struct {
	Identity types.Identity `json:"identity"`
	Balance  *big.Int       `json:"balance"`
}

type EventsParams struct {
	From  uint64 `json:"from"`
	Limit int    `json:"limit,omitempty"`
}

// readOnly lists the methods that may be called without a caller identity.
var readOnly = map[string]bool{
	MethodBalance:             true,
	MethodOperations:          true,
	MethodEvents:              true,
	escrow.OpGetMatch:         true,
	escrow.OpListUnstarted:    true,
	escrow.OpListOngoing:      true,
	escrow.OpListByController: true,
	escrow.OpListMatches:      true,
	admin.OpGetConfig:         true,
	admin.OpListOperations:    true,
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if status <= 0 {
		status = http.StatusBadRequest
	}
	w.WriteHeader(status)
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

// Handler returns the HTTP routes served by the daemon.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestID)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(api chi.Router) {
		api.Use(s.limiter.Middleware)
		api.Post("/", s.handle)
		api.Get("/events", s.handleEvents)
		api.Get("/events/ws", s.handleEventsWS)
	})
	return r
}

// Serve runs the HTTP server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string, readHeaderTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(s.Handler(), "matchpool.rpc"),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc listening", slog.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type requestIDKey struct{}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// RequestID returns the request id assigned to ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	caller, err := s.auth.Caller(r, readOnly[req.Method])
	if err != nil {
		s.logger.Debug("caller rejected",
			slog.String("requestId", RequestID(r.Context())),
			logging.MaskField("authorization", r.Header.Get("Authorization")),
			slog.String("reason", err.Error()))
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "unauthorized", err.Error())
		return
	}

	switch req.Method {
	case MethodBalance:
		s.handleBalance(w, req)
	case MethodOperations:
		s.handleOperations(w, req)
	case MethodEvents:
		var params EventsParams
		if err := decodeParams(req.Params, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
			return
		}
		writeResult(w, req.ID, s.eventsSince(params.From, params.Limit))
	default:
		s.handleDispatch(w, r, req, caller)
	}
}

func decodeParams(raw json.RawMessage, out interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func parseValue(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid value %q", raw)
	}
	return value, nil
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest, caller types.Identity) {
	value, err := parseValue(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid value", err.Error())
		return
	}
	result, err := s.backend.Dispatch(r.Context(), req.Method, req.Params, caller, value)
	if err != nil {
		status, code := statusFor(err)
		s.logger.Debug("dispatch rejected",
			slog.String("requestId", RequestID(r.Context())),
			slog.String("method", req.Method),
			slog.String("error", err.Error()))
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	if len(result) == 0 {
		writeResult(w, req.ID, true)
		return
	}
	writeResult(w, req.ID, json.RawMessage(result))
}

func (s *Server) handleBalance(w http.ResponseWriter, req *RPCRequest) {
	var params BalanceParams
	if err := decodeParams(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	balance, err := s.backend.Balance(params.Identity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "balance unavailable", err.Error())
		return
	}
	writeResult(w, req.ID, BalanceResult{Identity: params.Identity, Balance: balance})
}

func (s *Server) handleOperations(w http.ResponseWriter, req *RPCRequest) {
	ops, err := s.backend.Operations()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "operations unavailable", err.Error())
		return
	}
	writeResult(w, req.ID, ops)
}

func (s *Server) eventsSince(from uint64, limit int) []*types.Event {
	if s.events == nil {
		return []*types.Event{}
	}
	if limit <= 0 || limit > escrow.MaxPageLimit {
		limit = escrow.DefaultPageLimit
	}
	return s.events.Since(from, limit)
}
