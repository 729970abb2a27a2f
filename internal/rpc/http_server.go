package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const maxRequestBody = 4 << 20

// HTTPServer exposes the actor fleet over HTTP. Operations are addressed
// as POST /v1/{operation} with a JSON body carrying user_id and args.
type HTTPServer struct {
	rpcServer  *Server
	httpServer *http.Server
	listener   net.Listener
	addr       string
	token      string // Bearer token; empty disables auth
	mu         sync.RWMutex
}

// NewHTTPServer creates an HTTP wrapper around an RPC server.
func NewHTTPServer(rpcServer *Server, addr string, token string) *HTTPServer {
	return &HTTPServer{
		rpcServer: rpcServer,
		addr:      addr,
		token:     token,
	}
}

// Start listens and serves until ctx is cancelled.
func (h *HTTPServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	// Health endpoints (no auth required)
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/readyz", h.handleReadiness)

	mux.HandleFunc("/v1/", h.handleRPC)

	h.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.addr, err)
	}
	h.mu.Lock()
	h.listener = listener
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.httpServer.Shutdown(shutdownCtx)
	}()

	return h.httpServer.Serve(listener)
}

// Addr returns the address the server is listening on.
func (h *HTTPServer) Addr() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return h.addr
}

// Handler returns the RPC mux for tests that serve over httptest.
func (h *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/readyz", h.handleReadiness)
	mux.HandleFunc("/v1/", h.handleRPC)
	return mux
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *HTTPServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

func (h *HTTPServer) authorized(r *http.Request) bool {
	if h.token == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	return strings.TrimPrefix(auth, "Bearer ") == h.token
}

func (h *HTTPServer) handleRPC(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "method not allowed"})
		return
	}
	if !h.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
		return
	}

	op := strings.TrimPrefix(r.URL.Path, "/v1/")
	if op == "" || strings.Contains(op, "/") || !h.rpcServer.HasOperation(op) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unknown operation: " + op})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "read body: " + err.Error()})
		return
	}

	var req Request
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "decode request: " + err.Error()})
			return
		}
	}
	req.Operation = op

	resp := h.rpcServer.HandleRequest(r.Context(), &req)
	if !resp.Success {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": resp.Error})
		return
	}
	_ = json.NewEncoder(w).Encode(resp)
}
