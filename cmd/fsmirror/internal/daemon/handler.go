package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/albertocavalcante/fsmirror/cmd/fsmirror/internal/incremental"
	"github.com/albertocavalcante/fsmirror/cmd/fsmirror/internal/watch"
	"github.com/albertocavalcante/fsmirror/internal/log"
	"github.com/albertocavalcante/fsmirror/pkg/lifecycle"
	"github.com/albertocavalcante/fsmirror/pkg/logical"
	"github.com/albertocavalcante/fsmirror/pkg/mirror"
	"github.com/albertocavalcante/fsmirror/pkg/snapshotter"
)

// errNoEngine answers mirror requests on a server started without one.
var errNoEngine = errors.New("daemon has no mirror configured")

// shutdownDelay gives the shutdown response time to reach the client.
const shutdownDelay = 100 * time.Millisecond

// HandlerConfig holds the long-lived mirror stack the handler serves.
type HandlerConfig struct {
	Mirror  *mirror.Mirror
	FS      *snapshotter.FileSystemSnapshotter
	Outputs *snapshotter.OutputSnapshotter
	Signals *lifecycle.Broadcaster
	Tracker *incremental.Tracker
}

// Handler dispatches RPC methods to the mirror stack.
type Handler struct {
	server *Server
	cfg    HandlerConfig

	watchMu     sync.RWMutex
	watcher     *watch.Watcher
	watchCancel context.CancelFunc
	watchDone   chan struct{}
	watchPaths  []string
	lastUpdate  time.Time
}

// NewHandler creates a handler over cfg.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{cfg: cfg}
}

func (h *Handler) hasEngine() bool {
	return h.cfg.Mirror != nil && h.cfg.FS != nil && h.cfg.Outputs != nil &&
		h.cfg.Signals != nil && h.cfg.Tracker != nil
}

// HandleRequest dispatches a request to its method.
func (h *Handler) HandleRequest(client *ClientConn, req *Request) *Response {
	log.Component("daemon").Debugw("handling request", "method", req.Method, "id", req.ID)

	switch req.Method {
	case MethodPing:
		return h.handlePing(req)
	case MethodShutdown:
		return h.handleShutdown(req)
	}

	if !h.hasEngine() {
		if !isKnownMethod(req.Method) {
			return methodNotFound(req)
		}
		return NewErrorResponse(req.ID, ErrCodeInternalError, errNoEngine.Error(), nil)
	}

	switch req.Method {
	case MethodOutputsChanging:
		h.cfg.Signals.BeforeOutputsChange()
		return h.signalResult(req, "outputs_changing")
	case MethodBuildComplete:
		h.cfg.Signals.BuildComplete()
		return h.signalResult(req, "build_complete")
	case MethodSnapshot:
		return h.handleSnapshot(req)
	case MethodBaselineCapture:
		return h.handleCapture(req)
	case MethodBaselineChanges:
		return h.handleChanges(req)
	case MethodMirrorStats:
		immutable, mutable := h.cfg.Mirror.Stats()
		return respond(req, MirrorStatsResult{Immutable: immutable, Mutable: mutable})
	case MethodWatchStart:
		return h.handleWatchStart(client, req)
	case MethodWatchStop:
		return h.handleWatchStop(req)
	case MethodWatchStatus:
		return respond(req, h.GetWatchStatus())
	default:
		return methodNotFound(req)
	}
}

func isKnownMethod(method string) bool {
	switch method {
	case MethodOutputsChanging, MethodBuildComplete, MethodSnapshot,
		MethodBaselineCapture, MethodBaselineChanges, MethodMirrorStats,
		MethodWatchStart, MethodWatchStop, MethodWatchStatus:
		return true
	}
	return false
}

func methodNotFound(req *Request) *Response {
	return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
}

// respond wraps result in a response to req.
func respond(req *Request, result any) *Response {
	resp, err := NewResponse(req.ID, result)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "Failed to create response", err.Error())
	}
	return resp
}

// decodeParams unmarshals the request params into v. Missing params leave v
// untouched.
func decodeParams(req *Request, v any) *Response {
	if len(req.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "Invalid params", err.Error())
	}
	return nil
}

// checkPaths rejects empty and relative path lists. The daemon's working
// directory is unrelated to the client's.
func checkPaths(req *Request, paths []string) *Response {
	if len(paths) == 0 {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "Invalid params", "no paths given")
	}
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, "Invalid params", fmt.Sprintf("path is not absolute: %s", p))
		}
	}
	return nil
}

func (h *Handler) handlePing(req *Request) *Response {
	result := PingResult{Pong: true}
	if h.server != nil {
		result.Version = h.server.version
		result.Uptime = h.server.Uptime().String()
		result.StartTime = h.server.startTime.Format(time.RFC3339)
	}
	return respond(req, result)
}

func (h *Handler) handleShutdown(req *Request) *Response {
	resp := respond(req, ShutdownResult{Message: "daemon shutting down"})
	if h.server != nil {
		server := h.server
		time.AfterFunc(shutdownDelay, server.RequestShutdown)
	}
	return resp
}

func (h *Handler) signalResult(req *Request, signal string) *Response {
	immutable, mutable := h.cfg.Mirror.Stats()
	return respond(req, SignalResult{Signal: signal, Immutable: immutable, Mutable: mutable})
}

func (h *Handler) handleSnapshot(req *Request) *Response {
	var params SnapshotParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if resp := checkPaths(req, params.Paths); resp != nil {
		return resp
	}

	c, err := h.cfg.Outputs.Snapshot(snapshotter.Files(params.Paths...))
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "Snapshot failed", err.Error())
	}
	result := SnapshotResult{Roots: make([]RootSummary, 0, c.Len())}
	for _, path := range c.Paths() {
		node, _ := c.Root(path)
		content, err := h.cfg.FS.SnapshotContent(path)
		if err != nil {
			return NewErrorResponse(req.ID, ErrCodeInternalError, "Snapshot failed", err.Error())
		}
		result.Roots = append(result.Roots, RootSummary{
			Path:        path,
			Type:        node.Type(),
			Files:       logical.CountFiles(node),
			Fingerprint: content.Fingerprint(),
		})
	}
	return respond(req, result)
}

func (h *Handler) handleCapture(req *Request) *Response {
	var params CaptureParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if params.Name == "" {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "Invalid params", "name is required")
	}
	if resp := checkPaths(req, params.Outputs); resp != nil {
		return resp
	}

	// The outputs may have been rewritten since the mirror last saw them.
	h.cfg.Signals.BeforeOutputsChange()
	c, err := h.cfg.Tracker.Capture(params.Name, snapshotter.Files(params.Outputs...))
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "Capture failed", err.Error())
	}
	return respond(req, CaptureResult{Name: params.Name, Files: c.FileCount()})
}

func (h *Handler) handleChanges(req *Request) *Response {
	var params ChangesParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if params.Name == "" {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "Invalid params", "name is required")
	}
	if resp := checkPaths(req, params.Outputs); resp != nil {
		return resp
	}

	var opts []incremental.TrackOption
	if params.First {
		opts = append(opts, incremental.FirstChangeOnly())
	}
	changes, err := h.cfg.Tracker.Status(params.Name, snapshotter.Files(params.Outputs...), opts...)
	if errors.Is(err, incremental.ErrNoBaseline) {
		return NewErrorResponse(req.ID, ErrCodeNoBaseline, "No baseline", err.Error())
	}
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "Comparison failed", err.Error())
	}
	if changes == nil {
		changes = []logical.FileChange{}
	}
	return respond(req, ChangesResult{
		Name:    params.Name,
		Changed: len(changes) > 0,
		Changes: changes,
		Summary: logical.NewChangeSet(changes),
	})
}

func (h *Handler) handleWatchStart(client *ClientConn, req *Request) *Response {
	var params WatchStartParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}

	h.watchMu.Lock()
	defer h.watchMu.Unlock()

	if h.watcher != nil {
		if client != nil {
			client.Subscribe()
		}
		return respond(req, WatchStartResult{Status: "already_watching", Paths: h.watchPaths})
	}
	if resp := checkPaths(req, params.Paths); resp != nil {
		return resp
	}

	debounce := time.Duration(params.Debounce) * time.Millisecond
	w, err := watch.New(watch.Config{
		Roots:     params.Paths,
		Debounce:  debounce,
		NoColor:   true,
		Writer:    io.Discard,
		OnChanges: h.BroadcastChanges,
	}, h.cfg.Outputs, h.cfg.Signals)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "Failed to start watcher", err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	h.watcher = w
	h.watchCancel = cancel
	h.watchDone = done
	h.watchPaths = params.Paths
	go h.runWatcher(ctx, w, done)

	if client != nil {
		client.Subscribe()
	}
	return respond(req, WatchStartResult{Status: "watching", Paths: params.Paths})
}

// runWatcher runs w until it stops and clears the watch state if w is still
// the current watcher.
func (h *Handler) runWatcher(ctx context.Context, w *watch.Watcher, done chan struct{}) {
	logger := log.Component("daemon")
	defer close(done)

	if err := w.Run(ctx); err != nil {
		logger.Warnw("watcher stopped with error", "error", err)
	}
	_ = w.Close()

	h.watchMu.Lock()
	if h.watcher == w {
		h.watcher = nil
		h.watchCancel = nil
		h.watchDone = nil
		h.watchPaths = nil
	}
	h.watchMu.Unlock()
	logger.Infow("watcher stopped")
}

func (h *Handler) handleWatchStop(req *Request) *Response {
	if !h.stopWatcher() {
		return respond(req, WatchStopResult{Status: "not_watching"})
	}
	return respond(req, WatchStopResult{Status: "stopped"})
}

// stopWatcher cancels the running watcher and waits for it to exit. It
// reports whether a watcher was running.
func (h *Handler) stopWatcher() bool {
	h.watchMu.Lock()
	cancel, done := h.watchCancel, h.watchDone
	running := h.watcher != nil
	h.watcher = nil
	h.watchCancel = nil
	h.watchDone = nil
	h.watchPaths = nil
	h.watchMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	return running
}

// GetWatchStatus returns the current watch status.
func (h *Handler) GetWatchStatus() *WatchStatusResult {
	h.watchMu.RLock()
	w := h.watcher
	result := &WatchStatusResult{
		Watching: w != nil,
		Paths:    h.watchPaths,
	}
	if !h.lastUpdate.IsZero() {
		result.UpdateTime = h.lastUpdate.Format(time.RFC3339)
	}
	h.watchMu.RUnlock()

	// The watcher holds its own lock while reporting changes back here.
	if w != nil {
		result.FileCount = w.FileCount()
	}
	return result
}

// Stop stops any running watcher.
func (h *Handler) Stop() {
	h.stopWatcher()
}

// BroadcastChanges sends a change event to every subscribed client.
func (h *Handler) BroadcastChanges(changes []logical.FileChange) {
	now := time.Now()
	h.watchMu.Lock()
	h.lastUpdate = now
	h.watchMu.Unlock()

	if h.server == nil {
		return
	}
	notif, err := NewNotification(MethodWatchEvent, WatchEventParams{
		Type:      EventChange,
		Changes:   changes,
		Timestamp: now.Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	h.server.Broadcast(notif)
}
