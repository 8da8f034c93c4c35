// Package daemon keeps a mirror alive between fsmirror invocations. A server
// listens on a Unix socket and answers JSON-RPC 2.0 requests, one JSON value
// per message, against a single long-lived mirror.
package daemon

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/albertocavalcante/fsmirror/pkg/logical"
	"github.com/albertocavalcante/fsmirror/pkg/mirror"
	"github.com/albertocavalcante/fsmirror/pkg/snapshot"
)

// JSON-RPC 2.0 version string.
const JSONRPCVersion = "2.0"

// JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603

	// ErrCodeNoBaseline is returned by baseline/changes for a unit that was
	// never captured.
	ErrCodeNoBaseline = -32001
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"` // nil for notifications
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Notification represents a JSON-RPC 2.0 notification (no ID, no response expected).
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if len(e.Data) > 0 {
		var detail string
		if json.Unmarshal(e.Data, &detail) == nil && detail != "" {
			return fmt.Sprintf("RPC error %d: %s: %s", e.Code, e.Message, detail)
		}
	}
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// NewRequest creates a new JSON-RPC request.
func NewRequest(id int64, method string, params any) (*Request, error) {
	req := &Request{
		JSONRPC: JSONRPCVersion,
		ID:      &id,
		Method:  method,
	}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		req.Params = data
	}
	return req, nil
}

// NewNotification creates a new JSON-RPC notification.
func NewNotification(method string, params any) (*Notification, error) {
	notif := &Notification{
		JSONRPC: JSONRPCVersion,
		Method:  method,
	}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		notif.Params = data
	}
	return notif, nil
}

// NewResponse creates a successful JSON-RPC response.
func NewResponse(id *int64, result any) (*Response, error) {
	// A successful response always carries a result, possibly null.
	resp := &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  json.RawMessage("null"),
	}
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
		resp.Result = data
	}
	return resp, nil
}

// NewErrorResponse creates an error JSON-RPC response.
func NewErrorResponse(id *int64, code int, message string, data any) *Response {
	resp := &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error: &RPCError{
			Code:    code,
			Message: message,
		},
	}
	if data != nil {
		if d, err := json.Marshal(data); err == nil {
			resp.Error.Data = d
		}
	}
	return resp
}

// RPC methods.
const (
	MethodPing            = "ping"
	MethodShutdown        = "shutdown"
	MethodOutputsChanging = "outputs/changing"
	MethodBuildComplete   = "build/complete"
	MethodSnapshot        = "snapshot"
	MethodBaselineCapture = "baseline/capture"
	MethodBaselineChanges = "baseline/changes"
	MethodMirrorStats     = "mirror/stats"
	MethodWatchStart      = "watch/start"
	MethodWatchStop       = "watch/stop"
	MethodWatchStatus     = "watch/status"
	MethodWatchEvent      = "watch/event" // notification from server to client
)

// PingResult is the response to a ping request.
type PingResult struct {
	Pong      bool   `json:"pong"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	StartTime string `json:"start_time"`
}

// ShutdownResult is the response to a shutdown request.
type ShutdownResult struct {
	Message string `json:"message"`
}

// SignalResult is the response to outputs/changing and build/complete.
type SignalResult struct {
	Signal    string       `json:"signal"`
	Immutable mirror.Stats `json:"immutable"`
	Mutable   mirror.Stats `json:"mutable"`
}

// SnapshotParams are the parameters for snapshot. Paths must be absolute.
type SnapshotParams struct {
	Paths []string `json:"paths"`
}

// RootSummary describes one snapshotted root.
type RootSummary struct {
	Path        string            `json:"path"`
	Type        snapshot.FileType `json:"type"`
	Files       int               `json:"files"`
	Fingerprint snapshot.HashCode `json:"fingerprint,omitzero"`
}

// SnapshotResult is the response to snapshot. Missing paths are omitted.
type SnapshotResult struct {
	Roots []RootSummary `json:"roots"`
}

// CaptureParams are the parameters for baseline/capture.
type CaptureParams struct {
	Name    string   `json:"name"`
	Outputs []string `json:"outputs"`
}

// CaptureResult is the response to baseline/capture.
type CaptureResult struct {
	Name  string `json:"name"`
	Files int    `json:"files"`
}

// ChangesParams are the parameters for baseline/changes.
type ChangesParams struct {
	Name    string   `json:"name"`
	Outputs []string `json:"outputs"`
	First   bool     `json:"first,omitempty"` // stop at the first difference
}

// ChangesResult is the response to baseline/changes.
type ChangesResult struct {
	Name    string               `json:"name"`
	Changed bool                 `json:"changed"`
	Changes []logical.FileChange `json:"changes"`
	Summary *logical.ChangeSet   `json:"summary"`
}

// MirrorStatsResult is the response to mirror/stats.
type MirrorStatsResult struct {
	Immutable mirror.Stats `json:"immutable"`
	Mutable   mirror.Stats `json:"mutable"`
}

// WatchStartParams are the parameters for watch/start. Paths must be absolute.
type WatchStartParams struct {
	Paths    []string `json:"paths"`
	Debounce int      `json:"debounce,omitempty"` // milliseconds
}

// WatchStartResult is the response to watch/start.
type WatchStartResult struct {
	Status string   `json:"status"`
	Paths  []string `json:"paths"`
}

// WatchStopResult is the response to watch/stop.
type WatchStopResult struct {
	Status string `json:"status"`
}

// WatchStatusResult is the response to watch/status.
type WatchStatusResult struct {
	Watching   bool     `json:"watching"`
	Paths      []string `json:"paths,omitempty"`
	FileCount  int      `json:"file_count,omitempty"`
	UpdateTime string   `json:"update_time,omitempty"` // time of the last reported change
}

// Watch event types.
const (
	EventChange   = "change"
	EventShutdown = "shutdown"
)

// WatchEventParams are the parameters for watch/event notifications.
type WatchEventParams struct {
	Type      string               `json:"type"`
	Changes   []logical.FileChange `json:"changes,omitempty"`
	Message   string               `json:"message,omitempty"`
	Timestamp string               `json:"timestamp"`
}

// IDGenerator generates unique request IDs.
type IDGenerator struct {
	counter atomic.Int64
}

// Next returns the next unique ID.
func (g *IDGenerator) Next() int64 {
	return g.counter.Add(1)
}

// DaemonInfo contains information about the running daemon.
type DaemonInfo struct {
	PID         int       `json:"pid"`
	SocketPath  string    `json:"socket_path"`
	StartTime   time.Time `json:"start_time"`
	Version     string    `json:"version"`
	Watching    bool      `json:"watching"`
	WatchPaths  []string  `json:"watch_paths,omitempty"`
	ClientCount int       `json:"client_count"`
}
