// Package api exposes the executor and the bridge read models over HTTP.
package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"NftBridge/internal/bridge"
	"NftBridge/internal/collection"
	"NftBridge/internal/derive"
	"NftBridge/internal/errs"
	"NftBridge/internal/logger"
	"NftBridge/internal/runtime"
	"NftBridge/internal/snapshot"
)

const (
	// maxRequestSize is the maximum request envelope size in bytes.
	maxRequestSize = 1 << 20 // 1 MB

	// requestIDHeader carries the per-call correlation id.
	requestIDHeader = "X-Request-Id"

	// checksumHeader carries the hex checksum of a served snapshot.
	checksumHeader = "X-Snapshot-Checksum"
)

// Backend groups what the server reads from and writes to.
type Backend struct {
	Executor   *runtime.Executor
	Escrow     *bridge.Escrow
	Collection *collection.Controller
}

// Server is the HTTP API server.
type Server struct {
	addr    string       // addr is the HTTP listen address
	backend Backend      // backend executes requests and serves queries
	server  *http.Server // server is the underlying HTTP server
}

// New creates a new HTTP API server.
func New(addr string, backend Backend) *Server {
	return &Server{addr: addr, backend: backend}
}

// Handler returns the routed handler with request ids attached.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tx", s.handleSubmit)
	mux.HandleFunc("GET /tx/{hash}", s.handleReceipt)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /accounts/{address}", s.handleAccount)
	mux.HandleFunc("GET /bridge/custody", s.handleCustody)
	mux.HandleFunc("GET /collection/mirror", s.handleMirror)
	mux.HandleFunc("GET /collection/item", s.handleItem)
	mux.HandleFunc("GET /snapshot", s.handleSnapshot)

	return withRequestID(mux)
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// withRequestID tags every call with a uuid, echoed in the response header
// and attached to the access log.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(requestIDHeader, id)

		log := logger.With("request_id", id)

		start := time.Now()
		next.ServeHTTP(w, r)

		log.Debug("http request", "method", r.Method, "path", r.URL.Path, logger.Timed(start))
	})
}

// handleSubmit handles POST /tx: execute one signed request envelope.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty request")
		return
	}

	rcpt, err := s.backend.Executor.Execute(body)
	if err != nil {
		writeKindError(w, err)
		return
	}

	logger.Debug("request submitted", "hash", shortHash(rcpt.Hash), "success", rcpt.Success)

	writeJSON(w, http.StatusOK, receiptView(rcpt))
}

// handleReceipt handles GET /tx/{hash}.
func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	raw, err := hex.DecodeString(r.PathValue("hash"))
	if err != nil || len(raw) != 32 {
		writeError(w, http.StatusBadRequest, "hash must be 64 hex characters")
		return
	}

	var hash [32]byte
	copy(hash[:], raw)

	rcpt, err := s.backend.Executor.Receipt(hash)
	if err != nil {
		writeKindError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, receiptView(rcpt))
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleStatus handles GET /status requests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ex := s.backend.Executor

	progs := make([]programView, 0)
	for _, p := range ex.Programs() {
		progs = append(progs, programView{ID: p.ID.String(), Name: p.Name, Functions: p.Functions})
	}

	status := map[string]any{
		"height":   ex.Height(),
		"programs": progs,
	}

	if s.backend.Escrow != nil {
		status["escrowRoot"] = s.backend.Escrow.RootAddress().String()
	}

	writeJSON(w, http.StatusOK, status)
}

// handleAccount handles GET /accounts/{address}.
func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := derive.ParseAddress(r.PathValue("address"))
	if err != nil {
		writeKindError(w, err)
		return
	}

	view, err := accountView(s.backend.Executor.Ledger().View(), addr)
	if err != nil {
		writeKindError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// handleCustody handles GET /bridge/custody?chain=&contract=&id=.
func (s *Server) handleCustody(w http.ResponseWriter, r *http.Request) {
	if s.backend.Escrow == nil {
		writeError(w, http.StatusServiceUnavailable, "bridge not available")
		return
	}

	q := r.URL.Query()

	id, err := parseID(q.Get("id"))
	if err != nil {
		writeKindError(w, err)
		return
	}

	key := bridge.Key{OriginChain: q.Get("chain"), OriginContract: q.Get("contract"), AssetID: id}

	c, err := s.backend.Escrow.Custody(s.backend.Executor.Ledger().View(), key)
	if err != nil {
		writeKindError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, custodyView(c))
}

// handleMirror handles GET /collection/mirror?chain=&contract=.
func (s *Server) handleMirror(w http.ResponseWriter, r *http.Request) {
	if s.backend.Collection == nil {
		writeError(w, http.StatusServiceUnavailable, "collection controller not available")
		return
	}

	q := r.URL.Query()
	o := collection.Origin{Chain: q.Get("chain"), Contract: q.Get("contract")}

	m, err := s.backend.Collection.Mirror(s.backend.Executor.Ledger().View(), o)
	if err != nil {
		writeKindError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mirrorView(m))
}

// handleItem handles GET /collection/item?chain=&contract=&id=.
func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	if s.backend.Collection == nil {
		writeError(w, http.StatusServiceUnavailable, "collection controller not available")
		return
	}

	q := r.URL.Query()

	id, err := parseID(q.Get("id"))
	if err != nil {
		writeKindError(w, err)
		return
	}

	o := collection.Origin{Chain: q.Get("chain"), Contract: q.Get("contract")}

	it, err := s.backend.Collection.Item(s.backend.Executor.Ledger().View(), o, id)
	if err != nil {
		writeKindError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ItemView{Asset: it.Asset.String(), Supply: it.Supply, Verified: it.Verified})
}

// handleSnapshot handles GET /snapshot: the compressed store export.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	data, info, err := snapshot.Create(s.backend.Executor.Ledger().Storage())
	if err != nil {
		logger.Error("snapshot failed", "error", err)
		writeError(w, http.StatusInternalServerError, "snapshot failed")
		return
	}

	logger.Info("snapshot served", "entries", info.Entries, "accounts", info.Accounts, "bytes", len(data))

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set(checksumHeader, hex.EncodeToString(info.Checksum[:]))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errs.Malformed("invalid id %q", s)
	}
	return id, nil
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindMalformed:
		return http.StatusBadRequest
	case errs.KindAuthority:
		return http.StatusForbidden
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindInvariant:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeKindError writes err with the status of its kind.
func writeKindError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}

	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  errs.KindOf(err).String(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// shortHash formats the first bytes of a hash for logs.
func shortHash(h [32]byte) string {
	return fmt.Sprintf("%x", h[:8])
}
