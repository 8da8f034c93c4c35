package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/albertocavalcante/fsmirror/internal/log"
)

// ErrNotConnected is returned when the connection to the daemon is gone.
var ErrNotConnected = errors.New("not connected to daemon")

// ErrDaemonNotRunning is returned when nothing listens on the socket.
var ErrDaemonNotRunning = errors.New("daemon not running")

// dialTimeout bounds Connect.
const dialTimeout = 5 * time.Second

// eventBuffer is how many notifications are queued before new ones are
// dropped.
const eventBuffer = 100

// message is any value the server sends: a response or a notification.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Client is a connection to the daemon. Calls may be issued concurrently;
// one reader goroutine routes responses to their callers and notifications
// to Events.
type Client struct {
	conn      net.Conn
	encoder   *json.Encoder
	encoderMu sync.Mutex
	idGen     IDGenerator

	mu      sync.Mutex
	pending map[int64]chan *Response

	events    chan *Notification
	done      chan struct{}
	closeOnce sync.Once
}

// Connect connects to the daemon listening on socketPath.
func Connect(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		if isConnectionRefused(err) {
			return nil, ErrDaemonNotRunning
		}
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return newClient(conn), nil
}

func newClient(conn net.Conn) *Client {
	c := &Client{
		conn:    conn,
		encoder: json.NewEncoder(conn),
		pending: make(map[int64]chan *Response),
		events:  make(chan *Notification, eventBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop(json.NewDecoder(bufio.NewReader(conn)))
	return c
}

// isConnectionRefused reports whether err means no daemon is listening: the
// socket file is missing or nobody accepts on it.
func isConnectionRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT)
}

// Close closes the connection. Pending calls fail with ErrNotConnected.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Events returns the channel of notifications sent by the daemon. It is
// closed when the connection is gone. Notifications are dropped while the
// channel is full.
func (c *Client) Events() <-chan *Notification {
	return c.events
}

func (c *Client) readLoop(dec *json.Decoder) {
	defer func() {
		c.mu.Lock()
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		close(c.done)
		c.mu.Unlock()
		close(c.events)
	}()

	for {
		var msg message
		if err := dec.Decode(&msg); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Component("daemon").Debugw("connection to daemon lost", "error", err)
			}
			return
		}

		if msg.ID == nil {
			if msg.Method == "" {
				// An error about a request the server could not parse.
				continue
			}
			select {
			case c.events <- &Notification{JSONRPC: msg.JSONRPC, Method: msg.Method, Params: msg.Params}:
			default:
			}
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[*msg.ID]
		delete(c.pending, *msg.ID)
		c.mu.Unlock()
		if ok {
			ch <- &Response{JSONRPC: msg.JSONRPC, ID: msg.ID, Result: msg.Result, Error: msg.Error}
		}
	}
}

// Call sends a request and waits for its response, decoding the result into
// result when it is not nil.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	id := c.idGen.Next()
	req, err := NewRequest(id, method, params)
	if err != nil {
		return err
	}

	ch := make(chan *Response, 1)
	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return ErrNotConnected
	default:
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.encoderMu.Lock()
	err = c.encoder.Encode(req)
	c.encoderMu.Unlock()
	if err != nil {
		c.forget(id)
		return fmt.Errorf("failed to send request: %w", err)
	}

	var resp *Response
	select {
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case r, ok := <-ch:
		if !ok {
			return ErrNotConnected
		}
		resp = r
	}

	if resp.Error != nil {
		return resp.Error
	}
	if result != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return nil
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Ping checks that the daemon answers.
func (c *Client) Ping(ctx context.Context) (*PingResult, error) {
	var result PingResult
	if err := c.Call(ctx, MethodPing, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Shutdown asks the daemon to exit.
func (c *Client) Shutdown(ctx context.Context) (*ShutdownResult, error) {
	var result ShutdownResult
	if err := c.Call(ctx, MethodShutdown, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// OutputsChanging tells the daemon that outputs are about to change.
func (c *Client) OutputsChanging(ctx context.Context) (*SignalResult, error) {
	var result SignalResult
	if err := c.Call(ctx, MethodOutputsChanging, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// BuildComplete tells the daemon that the build has finished.
func (c *Client) BuildComplete(ctx context.Context) (*SignalResult, error) {
	var result SignalResult
	if err := c.Call(ctx, MethodBuildComplete, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Snapshot summarizes absolute paths through the daemon's mirror.
func (c *Client) Snapshot(ctx context.Context, paths []string) (*SnapshotResult, error) {
	var result SnapshotResult
	if err := c.Call(ctx, MethodSnapshot, SnapshotParams{Paths: paths}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Capture records the current outputs as the baseline of name.
func (c *Client) Capture(ctx context.Context, params *CaptureParams) (*CaptureResult, error) {
	var result CaptureResult
	if err := c.Call(ctx, MethodBaselineCapture, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Changes compares the current outputs with the baseline of name.
func (c *Client) Changes(ctx context.Context, params *ChangesParams) (*ChangesResult, error) {
	var result ChangesResult
	if err := c.Call(ctx, MethodBaselineChanges, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MirrorStats returns the entry counts of both mirror partitions.
func (c *Client) MirrorStats(ctx context.Context) (*MirrorStatsResult, error) {
	var result MirrorStatsResult
	if err := c.Call(ctx, MethodMirrorStats, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WatchStart starts watching absolute paths and subscribes this connection
// to change events.
func (c *Client) WatchStart(ctx context.Context, params *WatchStartParams) (*WatchStartResult, error) {
	var result WatchStartResult
	if err := c.Call(ctx, MethodWatchStart, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WatchStop stops watching.
func (c *Client) WatchStop(ctx context.Context) (*WatchStopResult, error) {
	var result WatchStopResult
	if err := c.Call(ctx, MethodWatchStop, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WatchStatus returns the current watch status.
func (c *Client) WatchStatus(ctx context.Context) (*WatchStatusResult, error) {
	var result WatchStatusResult
	if err := c.Call(ctx, MethodWatchStatus, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// IsDaemonRunningAt checks the PID file at paths.
func IsDaemonRunningAt(paths *Paths) bool {
	return GetStatus(paths).Running
}
