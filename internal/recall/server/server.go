// Package server is the recall service's HTTP API: the remote memory store
// the companion saves to, lists from and asks questions of.
//
// Endpoints:
//
//	GET  /health      -> recall.HealthResponse (no auth)
//	POST /add-memory  recall.AddMemoryRequest -> recall.AddMemoryResponse
//	GET  /memories    -> recall.MemoriesResponse, newest first (?limit=N)
//	POST /ask         recall.AskRequest -> recall.AskResponse
//
// When Config.Token is set every endpoint but /health requires
// "Authorization: Bearer <token>". Bodies are validated against the JSON
// Schemas in common/spec/recall.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HrishitaRaj/smriti-ai/common/spec/memory"
	"github.com/HrishitaRaj/smriti-ai/common/spec/recall"
	"github.com/HrishitaRaj/smriti-ai/common/trace"
	"github.com/HrishitaRaj/smriti-ai/common/version"
	"github.com/HrishitaRaj/smriti-ai/internal/recall/embed"
	"github.com/HrishitaRaj/smriti-ai/internal/recall/llm"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/observability"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 * 1024

// MemoryStore persists memories. *store.Store satisfies it.
type MemoryStore interface {
	InsertMemory(ctx context.Context, m store.Memory) (bool, error)
	ListMemories(ctx context.Context, limit int) ([]store.Memory, error)
	CountMemories(ctx context.Context) (int, error)
}

// Answerer answers questions. *answer.Answerer satisfies it.
type Answerer interface {
	Answer(ctx context.Context, question string) (*recall.AskResponse, error)
}

// Config configures the server.
type Config struct {
	Addr  string
	Token string
	// AllowedOrigins enables CORS for browser clients. "*" allows any.
	AllowedOrigins []string

	Store    MemoryStore
	Answerer Answerer
	// Embedder embeds memories on save. Nil stores them unembedded.
	Embedder embed.Embedder
	Logger   *slog.Logger

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// Server is the recall HTTP server.
type Server struct {
	cfg    Config
	server *http.Server
	logger *slog.Logger
}

// New builds the server; nothing listens until Start.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Embedder == nil {
		cfg.Embedder = embed.Noop{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.NewString() }
	}
	s := &Server{cfg: cfg, logger: cfg.Logger}

	inner := http.NewServeMux()
	inner.HandleFunc("/add-memory", s.handleAddMemory)
	inner.HandleFunc("/memories", s.handleMemories)
	inner.HandleFunc("/ask", s.handleAsk)

	outer := http.NewServeMux()
	outer.HandleFunc("/health", s.handleHealth)
	outer.Handle("/", s.authMiddleware(inner))

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.traceMiddleware(s.corsMiddleware(outer)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// /ask waits on the LLM, including retries.
		WriteTimeout: 3 * time.Minute,
	}
	return s
}

// Start binds the listener and serves in the background until ctx is done
// or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}
	s.logger.Info("recall server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("recall server error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
}

// Handler exposes the full handler chain for httptest.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// --- middleware ---

func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := strings.TrimSpace(r.Header.Get("X-Trace-ID")); id != "" && len(id) <= 128 {
			ctx = trace.WithTraceID(ctx, id)
		} else {
			ctx, _ = trace.Ensure(ctx, trace.Request)
		}
		w.Header().Set("X-Trace-ID", trace.FromContext(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Trace-ID")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Add("Vary", "Origin")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// authMiddleware rejects requests without the configured bearer token. An
// empty token disables authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if auth[len("Bearer "):] != s.cfg.Token {
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	n, err := s.cfg.Store.CountMemories(r.Context())
	if err != nil {
		observability.WithTrace(r.Context(), s.logger).Error("recall: health count failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, recall.HealthResponse{Status: "degraded", Version: version.Version})
		return
	}
	writeJSON(w, http.StatusOK, recall.HealthResponse{Status: "ok", Version: version.Version, Memories: n})
}

func (s *Server) handleAddMemory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ctx := r.Context()
	logger := observability.WithTrace(ctx, s.logger)

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	req, err := recall.ParseAddMemory(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	m := store.Memory{Record: memory.Record{
		ID:      req.ID,
		Text:    req.Text,
		Emotion: req.Emotion,
	}}
	if m.ID == "" {
		m.ID = s.cfg.NewID()
	}
	if req.Timestamp != nil {
		m.Timestamp = req.Timestamp.UTC()
	} else {
		m.Timestamp = s.cfg.Now().UTC()
	}

	vec, err := s.cfg.Embedder.Embed(ctx, m.Text)
	if err != nil {
		logger.Warn("recall: embed failed, storing without embedding", "id", m.ID, "err", err)
	}
	m.Embedding = vec

	inserted, err := s.cfg.Store.InsertMemory(ctx, m)
	if err != nil {
		logger.Error("recall: insert memory failed", "id", m.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "could not store memory")
		return
	}
	logger.Info("recall: memory stored", "id", m.ID, "duplicate", !inserted, "embedded", vec != nil)
	writeJSON(w, http.StatusOK, recall.AddMemoryResponse{OK: true, ID: m.ID})
}

func (s *Server) handleMemories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	rows, err := s.cfg.Store.ListMemories(r.Context(), limit)
	if err != nil {
		observability.WithTrace(r.Context(), s.logger).Error("recall: list memories failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not list memories")
		return
	}
	out := recall.MemoriesResponse{Memories: make([]memory.Record, len(rows))}
	for i, m := range rows {
		out.Memories[i] = m.Record
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ctx := r.Context()

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	req, err := recall.ParseAsk(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if s.cfg.Answerer == nil {
		writeError(w, http.StatusServiceUnavailable, "question answering not available")
		return
	}

	resp, err := s.cfg.Answerer.Answer(ctx, req.Question)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "question answering not available")
		return
	case err != nil:
		observability.WithTrace(ctx, s.logger).Error("recall: answer failed", "err", err)
		writeError(w, http.StatusBadGateway, "could not answer right now")
		return
	}
	if resp == nil {
		resp = &recall.AskResponse{}
	}
	if resp.Context == nil {
		resp.Context = []recall.ContextItem{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- helpers ---

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read body")
		return nil, false
	}
	if len(body) > maxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, recall.ErrorResponse{Error: msg})
}
