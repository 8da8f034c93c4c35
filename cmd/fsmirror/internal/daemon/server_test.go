package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// waitForSocketReady waits for a Unix socket to accept connections.
func waitForSocketReady(socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("unix", socketPath, 100*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

// startServer runs a daemon over a fresh mirror stack until the test ends.
// It returns the server and a channel receiving Start's result.
func startServer(t *testing.T, withEngine bool) (*Server, <-chan error) {
	t.Helper()
	paths := PathsIn(shortTempDir(t))

	var handler *Handler
	if withEngine {
		handler = NewHandler(newTestConfig())
	}
	server := NewServer(ServerConfig{Paths: paths, Version: "test", Handler: handler})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = server.Shutdown()
	})

	if !waitForSocketReady(paths.Socket, 5*time.Second) {
		t.Fatal("daemon socket never became ready")
	}
	return server, errCh
}

func connect(t *testing.T, server *Server) *Client {
	t.Helper()
	client, err := Connect(server.paths.Socket)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNewServer(t *testing.T) {
	paths := PathsIn(shortTempDir(t))
	server := NewServer(ServerConfig{Paths: paths, Version: "1.0.0"})

	if server.paths != paths {
		t.Error("paths not set correctly")
	}
	if server.version != "1.0.0" {
		t.Errorf("version = %q, want %q", server.version, "1.0.0")
	}
	if server.handler == nil || server.handler.server != server {
		t.Error("default handler should be wired back to the server")
	}
	if server.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", server.ClientCount())
	}

	info := server.GetInfo()
	if info.PID != os.Getpid() || info.SocketPath != paths.Socket || info.Watching {
		t.Errorf("GetInfo() = %+v", info)
	}
}

func TestServer_StartWritesFiles(t *testing.T) {
	server, _ := startServer(t, false)

	status := GetStatus(server.paths)
	if !status.Running || status.PID != os.Getpid() {
		t.Errorf("GetStatus() = %+v, want running under this process", status)
	}
	fi, err := os.Stat(server.paths.Socket)
	if err != nil {
		t.Fatal(err)
	}
	if perm := fi.Mode().Perm(); perm != 0o600 {
		t.Errorf("socket permissions = %o, want 600", perm)
	}
	if !IsDaemonRunningAt(server.paths) {
		t.Error("IsDaemonRunningAt() = false")
	}
}

func TestServer_ShutdownViaClient(t *testing.T) {
	server, errCh := startServer(t, false)
	client := connect(t, server)

	res, err := client.Shutdown(testContext(t))
	if err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if res.Message == "" {
		t.Error("Shutdown() should return a message")
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after shutdown request")
	}

	for _, f := range []string{server.paths.Socket, server.paths.PID} {
		if _, err := os.Stat(f); !os.IsNotExist(err) {
			t.Errorf("%s should be removed after shutdown", f)
		}
	}
	select {
	case <-client.Done():
	case <-time.After(5 * time.Second):
		t.Error("client connection should close when the daemon stops")
	}

	// A second shutdown is a no-op.
	if err := server.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestConnect_NotRunning(t *testing.T) {
	_, err := Connect(filepath.Join(shortTempDir(t), "missing.sock"))
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Errorf("Connect() error = %v, want ErrDaemonNotRunning", err)
	}
	if IsDaemonRunningAt(PathsIn(shortTempDir(t))) {
		t.Error("IsDaemonRunningAt() = true for an empty directory")
	}
}

func TestServer_MalformedInput(t *testing.T) {
	server, _ := startServer(t, false)

	tests := []struct {
		name  string
		input string
		code  int
	}{
		{"syntax error", "{not json\n", ErrCodeParseError},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}` + "\n", ErrCodeInvalidRequest},
		{"wrong field type", `{"jsonrpc":"2.0","id":1,"method":42}` + "\n", ErrCodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := net.Dial("unix", server.paths.Socket)
			if err != nil {
				t.Fatal(err)
			}
			defer conn.Close()
			_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

			if _, err := conn.Write([]byte(tt.input)); err != nil {
				t.Fatal(err)
			}
			var resp Response
			if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&resp); err != nil {
				t.Fatalf("reading response: %v", err)
			}
			if resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %d", resp.Error, tt.code)
			}
		})
	}
}

func TestServer_NotificationGetsNoResponse(t *testing.T) {
	server, _ := startServer(t, false)

	conn, err := net.Dial("unix", server.paths.Socket)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	// The notification is followed by a request; the first answer must
	// belong to the request.
	input := `{"jsonrpc":"2.0","method":"ping"}` + "\n" + `{"jsonrpc":"2.0","id":9,"method":"ping"}` + "\n"
	if _, err := conn.Write([]byte(input)); err != nil {
		t.Fatal(err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID == nil || *resp.ID != 9 {
		t.Errorf("first response ID = %v, want 9", resp.ID)
	}
}

func TestIntegration_Baselines(t *testing.T) {
	server, _ := startServer(t, true)
	client := connect(t, server)
	ctx := testContext(t)

	ping, err := client.Ping(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !ping.Pong || ping.Version != "test" {
		t.Errorf("Ping() = %+v", ping)
	}

	out := filepath.Join(t.TempDir(), "out")
	writeFile(t, filepath.Join(out, "a.txt"), "a")
	outputs := []string{out}

	_, err = client.Changes(ctx, &ChangesParams{Name: "gen", Outputs: outputs})
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != ErrCodeNoBaseline {
		t.Errorf("Changes() before capture error = %v, want no baseline", err)
	}

	captured, err := client.Capture(ctx, &CaptureParams{Name: "gen", Outputs: outputs})
	if err != nil {
		t.Fatal(err)
	}
	if captured.Files != 1 {
		t.Errorf("Capture().Files = %d, want 1", captured.Files)
	}

	writeFile(t, filepath.Join(out, "b.txt"), "b")
	res, err := client.Changes(ctx, &ChangesParams{Name: "gen", Outputs: outputs})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Changed || len(res.Summary.Added) != 1 || res.Summary.Added[0] != filepath.Join(out, "b.txt") {
		t.Errorf("Changes() = %+v, want b.txt added", res)
	}

	stats, err := client.MirrorStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Mutable.Trees == 0 {
		t.Errorf("MirrorStats().Mutable = %+v, want the output tree cached", stats.Mutable)
	}

	signal, err := client.OutputsChanging(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if signal.Mutable.Trees != 0 {
		t.Errorf("OutputsChanging().Mutable = %+v, want trees dropped", signal.Mutable)
	}
	if _, err := client.BuildComplete(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestIntegration_ConcurrentClients(t *testing.T) {
	server, _ := startServer(t, true)
	ctx := testContext(t)

	const clients = 4
	errCh := make(chan error, clients)
	for i := range clients {
		go func() {
			client, err := Connect(server.paths.Socket)
			if err != nil {
				errCh <- err
				return
			}
			defer func() { _ = client.Close() }()
			for range 10 {
				if _, err := client.Ping(ctx); err != nil {
					errCh <- fmt.Errorf("client %d: %w", i, err)
					return
				}
			}
			errCh <- nil
		}()
	}
	for range clients {
		if err := <-errCh; err != nil {
			t.Error(err)
		}
	}
}

func TestIntegration_WatchEvents(t *testing.T) {
	server, errCh := startServer(t, true)
	client := connect(t, server)
	ctx := testContext(t)

	out := filepath.Join(shortTempDir(t), "out")
	writeFile(t, filepath.Join(out, "a.txt"), "a")

	res, err := client.WatchStart(ctx, &WatchStartParams{Paths: []string{out}, Debounce: 20})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != "watching" {
		t.Fatalf("WatchStart().Status = %q, want watching", res.Status)
	}

	// The watcher records its baseline asynchronously, so keep producing
	// changes until one is reported.
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	var event WatchEventParams
	for n := 0; event.Type != EventChange; {
		select {
		case notif, ok := <-client.Events():
			if !ok {
				t.Fatal("event stream closed")
			}
			if notif.Method != MethodWatchEvent {
				continue
			}
			if err := json.Unmarshal(notif.Params, &event); err != nil {
				t.Fatal(err)
			}
		case <-ticker.C:
			n++
			writeFile(t, filepath.Join(out, fmt.Sprintf("new-%d.txt", n)), "x")
		case <-ctx.Done():
			t.Fatal("no change event received")
		}
	}
	if len(event.Changes) == 0 {
		t.Error("change event carried no changes")
	}

	status, err := client.WatchStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !status.Watching || status.UpdateTime == "" {
		t.Errorf("WatchStatus() = %+v, want watching with an update time", status)
	}

	server.RequestShutdown()
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}
	if server.handler.GetWatchStatus().Watching {
		t.Error("watcher should stop with the daemon")
	}
}
