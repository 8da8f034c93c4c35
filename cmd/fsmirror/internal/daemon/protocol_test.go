package daemon

import (
	"encoding/json"
	"sync"
	"testing"
)

func TestRPCError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *RPCError
		want string
	}{
		{
			name: "no data",
			err:  &RPCError{Code: ErrCodeMethodNotFound, Message: "Method not found: x"},
			want: "RPC error -32601: Method not found: x",
		},
		{
			name: "string data",
			err:  &RPCError{Code: ErrCodeInvalidParams, Message: "Invalid params", Data: json.RawMessage(`"name is required"`)},
			want: "RPC error -32602: Invalid params: name is required",
		},
		{
			name: "structured data",
			err:  &RPCError{Code: ErrCodeInternalError, Message: "boom", Data: json.RawMessage(`{"a":1}`)},
			want: "RPC error -32603: boom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewRequest(t *testing.T) {
	req, err := NewRequest(7, MethodSnapshot, SnapshotParams{Paths: []string{"/out"}})
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if req.JSONRPC != JSONRPCVersion {
		t.Errorf("JSONRPC = %q, want %q", req.JSONRPC, JSONRPCVersion)
	}
	if req.ID == nil || *req.ID != 7 {
		t.Errorf("ID = %v, want 7", req.ID)
	}
	var params SnapshotParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		t.Fatal(err)
	}
	if len(params.Paths) != 1 || params.Paths[0] != "/out" {
		t.Errorf("Paths = %v, want [/out]", params.Paths)
	}

	bare, err := NewRequest(1, MethodPing, nil)
	if err != nil {
		t.Fatal(err)
	}
	if bare.Params != nil {
		t.Errorf("Params = %s, want none", bare.Params)
	}

	if _, err := NewRequest(1, MethodPing, make(chan int)); err == nil {
		t.Error("NewRequest() with unmarshalable params should fail")
	}
}

func TestNewResponse(t *testing.T) {
	id := int64(3)

	resp, err := NewResponse(&id, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(resp.Result) != "null" {
		t.Errorf("Result = %s, want null", resp.Result)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"jsonrpc":"2.0","id":3,"result":null}`; string(data) != want {
		t.Errorf("encoded = %s, want %s", data, want)
	}

	resp, err = NewResponse(&id, ShutdownResult{Message: "bye"})
	if err != nil {
		t.Fatal(err)
	}
	var res ShutdownResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatal(err)
	}
	if res.Message != "bye" {
		t.Errorf("Message = %q, want bye", res.Message)
	}
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(nil, ErrCodeParseError, "Parse error", "unexpected EOF")
	if resp.ID != nil {
		t.Errorf("ID = %v, want nil", *resp.ID)
	}
	if resp.Result != nil {
		t.Errorf("Result = %s, want none", resp.Result)
	}
	if resp.Error.Code != ErrCodeParseError {
		t.Errorf("Code = %d, want %d", resp.Error.Code, ErrCodeParseError)
	}
	if got, want := resp.Error.Error(), "RPC error -32700: Parse error: unexpected EOF"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestIDGenerator(t *testing.T) {
	var gen IDGenerator
	const workers, perWorker = 8, 100

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				id := gen.Next()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("unique IDs = %d, want %d", len(seen), workers*perWorker)
	}
	if seen[0] {
		t.Error("IDs should start at 1")
	}
}
