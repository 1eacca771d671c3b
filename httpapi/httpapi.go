// Package httpapi carries the ambient HTTP surface that sits outside
// the PSG wire protocol proper: health, Prometheus metrics, and debug
// endpoints dumping the current schema snapshot, the per-group worker
// counts and a single public-comment resolution, for operators rather
// than PSG clients.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ncbi/psg-cassvc/logger"
	"github.com/ncbi/psg-cassvc/schema"
)

// SchemaSource is the read side of a schema.Provider.
type SchemaSource interface {
	GetSchema() *schema.Schema
	LastRefreshError() string
	SchemaVersion() uint64
}

// GroupCounts reports the live worker-goroutine count of each
// processor group's pool, keyed by group name; idle workers are
// counted too, so this is the group's capacity, not its busy count.
type GroupCounts func() map[string]int

// ResolvePublicComment drives a blob id through the processor
// dispatcher and returns its resolved public comment. This is a debug
// entrypoint standing in for the PSG wire protocol proper, which
// remains out of scope for this module; it exists so the dispatcher's
// registration/race/aggregation path has a reachable caller outside
// tests. flags carries the blob's withdrawn/suppressed bits, since
// this module doesn't itself read blob_prop.
type ResolvePublicComment func(blobID string, flags uint64) (comment string, found bool, err error)

// Handler is the top-level http.Handler for the ambient surface.
type Handler struct {
	http.Handler

	log         logger.Logger
	schemaSrc   SchemaSource
	groupCounts GroupCounts
	resolveBlob ResolvePublicComment
	server      *http.Server
}

// New builds a Handler. groupCounts and resolveBlob may be nil if the
// dispatcher isn't wired into this daemon build.
func New(schemaSrc SchemaSource, groupCounts GroupCounts, resolveBlob ResolvePublicComment, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NopLogger
	}
	h := &Handler{log: log, schemaSrc: schemaSrc, groupCounts: groupCounts, resolveBlob: resolveBlob}
	router := mux.NewRouter()
	router.HandleFunc("/healthz", h.handleHealthz).Methods("GET").Name("Healthz")
	router.Handle("/metrics", promhttp.Handler()).Name("Metrics")
	router.HandleFunc("/debug/schema", h.handleDebugSchema).Methods("GET").Name("DebugSchema")
	router.HandleFunc("/debug/processors", h.handleDebugProcessors).Methods("GET").Name("DebugProcessors")
	router.HandleFunc("/debug/resolve", h.handleDebugResolve).Methods("GET").Name("DebugResolve")
	h.Handler = handlers.CombinedLoggingHandler(logAdapter{log}, router)
	return h
}

// ServeHTTP recovers panics at the top level, logging the stack
// instead of crashing the listener goroutine.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if err := recover(); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			h.log.Errorf("PANIC: %v\n%s", err, debug.Stack())
		}
	}()
	h.Handler.ServeHTTP(w, r)
}

// ListenAndServe starts serving on bind and blocks until the listener
// fails or Close is called.
func (h *Handler) ListenAndServe(bind string) error {
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}
	h.server = &http.Server{Handler: h}
	return h.server.Serve(ln)
}

// Close closes the underlying listener.
func (h *Handler) Close() error {
	if h.server == nil {
		return nil
	}
	return h.server.Close()
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.schemaSrc != nil && h.schemaSrc.GetSchema() == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "schema not yet loaded")
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

type debugSchemaResponse struct {
	Sats          []int32 `json:"sats"`
	NAKeyspaces   int     `json:"na_keyspaces"`
	HasResolver   bool    `json:"has_resolver"`
	HasIPG        bool    `json:"has_ipg"`
	SchemaVersion uint64  `json:"schema_version"`
	LastError     string  `json:"last_refresh_error,omitempty"`
}

func (h *Handler) handleDebugSchema(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.schemaSrc == nil {
		json.NewEncoder(w).Encode(debugSchemaResponse{})
		return
	}
	s := h.schemaSrc.GetSchema()
	resp := debugSchemaResponse{}
	if s != nil {
		resp.Sats = s.Sats()
		resp.NAKeyspaces = len(s.NAKeyspaces())
		_, resp.HasResolver = s.ResolverKeyspace()
		_, resp.HasIPG = s.IPGKeyspace()
	}
	resp.SchemaVersion = h.schemaSrc.SchemaVersion()
	resp.LastError = h.schemaSrc.LastRefreshError()
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) handleDebugProcessors(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	counts := map[string]int{}
	if h.groupCounts != nil {
		counts = h.groupCounts()
	}
	json.NewEncoder(w).Encode(counts)
}

type debugResolveResponse struct {
	Comment string `json:"comment,omitempty"`
	Found   bool   `json:"found"`
	Error   string `json:"error,omitempty"`
}

// handleDebugResolve resolves ?id=<sat.sat_key>&flags=<uint> through
// the registered processors, e.g. GET /debug/resolve?id=12.34&flags=1.
func (h *Handler) handleDebugResolve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.resolveBlob == nil {
		w.WriteHeader(http.StatusNotImplemented)
		json.NewEncoder(w).Encode(debugResolveResponse{Error: "no processor dispatcher wired into this daemon"})
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(debugResolveResponse{Error: "missing id query parameter"})
		return
	}
	var flags uint64
	if f := r.URL.Query().Get("flags"); f != "" {
		parsed, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(debugResolveResponse{Error: "invalid flags query parameter: " + err.Error()})
			return
		}
		flags = parsed
	}

	comment, found, err := h.resolveBlob(id, flags)
	resp := debugResolveResponse{Comment: comment, Found: found}
	if err != nil {
		resp.Error = err.Error()
	}
	json.NewEncoder(w).Encode(resp)
}

// logAdapter lets gorilla/handlers write its combined access log
// lines through the same logger everything else uses.
type logAdapter struct{ log logger.Logger }

func (a logAdapter) Write(p []byte) (int, error) {
	a.log.Infof("%s", p)
	return len(p), nil
}
