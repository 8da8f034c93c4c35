package watch

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/albertocavalcante/fsmirror/pkg/logical"
	"github.com/albertocavalcante/fsmirror/pkg/snapshot"
)

var sampleChanges = []logical.FileChange{
	{Path: "/out/new.txt", Title: logical.OutputTitle, Kind: logical.Added, Previous: snapshot.TypeMissing, Current: snapshot.TypeRegularFile},
	{Path: "/out/a.txt", Title: logical.OutputTitle, Kind: logical.Modified, Previous: snapshot.TypeRegularFile, Current: snapshot.TypeRegularFile},
	{Path: "/out/gone.txt", Title: logical.OutputTitle, Kind: logical.Removed, Previous: snapshot.TypeRegularFile, Current: snapshot.TypeMissing},
}

func TestLogger_Ready(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Writer: &buf, Verbose: true})

	logger.Ready([]string{"/ws/out", "/ws/report.txt"}, 42)

	output := buf.String()
	for _, want := range []string{"42 files", "2 roots", "/ws/out", "/ws/report.txt", "ready"} {
		if !strings.Contains(output, want) {
			t.Errorf("Ready() output missing %q: %s", want, output)
		}
	}
}

func TestLogger_Snapshotting(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		roots   []string
		want    string
	}{
		{"quiet", false, []string{"/out"}, ""},
		{"single", true, []string{"/out"}, "snapshotting /out"},
		{"multiple", true, []string{"/a", "/b", "/c"}, "snapshotting 3 roots"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(LoggerConfig{Writer: &buf, Verbose: tt.verbose})

			logger.Snapshotting(tt.roots)

			if tt.want == "" {
				if buf.Len() != 0 {
					t.Errorf("Snapshotting() output = %q, want none", buf.String())
				}
			} else if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("Snapshotting() output = %q, want %q", buf.String(), tt.want)
			}
			if got := logger.Stats().Snapshots; got != 1 {
				t.Errorf("Stats().Snapshots = %d, want 1", got)
			}
		})
	}
}

func TestLogger_Changes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Writer: &buf, NoColor: true})

	logger.Changes(sampleChanges)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Changes() wrote %d lines, want 3: %q", len(lines), buf.String())
	}
	wants := []string{
		"+ Output file /out/new.txt has been added.",
		"~ Output file /out/a.txt has changed.",
		"- Output file /out/gone.txt has been removed.",
	}
	for i, want := range wants {
		if !strings.HasSuffix(lines[i], want) {
			t.Errorf("line %d = %q, want suffix %q", i, lines[i], want)
		}
	}
	if strings.Contains(buf.String(), "\x1b[") {
		t.Error("NoColor output should not contain escape codes")
	}
}

func TestLogger_Changes_None(t *testing.T) {
	var quiet, verbose bytes.Buffer
	NewLogger(LoggerConfig{Writer: &quiet}).Changes(nil)
	NewLogger(LoggerConfig{Writer: &verbose, Verbose: true}).Changes(nil)

	if quiet.Len() != 0 {
		t.Errorf("Changes(nil) output = %q, want none", quiet.String())
	}
	if !strings.Contains(verbose.String(), "no output changes") {
		t.Errorf("verbose Changes(nil) output = %q", verbose.String())
	}
}

func TestLogger_Error(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Writer: &buf, NoColor: true})

	logger.Error(errors.New("walk failed"))

	if !strings.Contains(buf.String(), "error: walk failed") {
		t.Errorf("Error() output = %q", buf.String())
	}
}

func TestLogger_Shutdown(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Writer: &buf})

	logger.Snapshotting([]string{"/out"})
	logger.Changes(sampleChanges)
	logger.Error(errors.New("oops"))
	logger.Shutdown()

	if !strings.Contains(buf.String(), "1 snapshots, 3 changes, 1 errors") {
		t.Errorf("Shutdown() output = %q", buf.String())
	}

	stats := logger.Stats()
	if stats.Snapshots != 1 || stats.Changes != 3 || stats.Errors != 1 {
		t.Errorf("Stats() = %+v, want 1 snapshot, 3 changes, 1 error", stats)
	}
}

func decodeEvents(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(data), []byte("\n")) {
		var event map[string]any
		if err := json.Unmarshal(line, &event); err != nil {
			t.Fatalf("failed to parse JSON %q: %v", line, err)
		}
		events = append(events, event)
	}
	return events
}

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Writer: &buf, JSON: true})

	logger.Ready([]string{"/out"}, 7)
	logger.Changes(sampleChanges[:1])
	logger.Error(errors.New("boom"))

	events := decodeEvents(t, buf.Bytes())
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	if events[0]["event"] != "ready" || events[0]["files"].(float64) != 7 {
		t.Errorf("ready event = %v", events[0])
	}

	change, ok := events[1]["change"].(map[string]any)
	if !ok {
		t.Fatalf("change event = %v", events[1])
	}
	if change["path"] != "/out/new.txt" || change["kind"] != "added" {
		t.Errorf("change = %v, want path /out/new.txt kind added", change)
	}
	if change["previous"] != "Missing" || change["current"] != "RegularFile" {
		t.Errorf("change types = %v -> %v", change["previous"], change["current"])
	}

	if events[2]["event"] != "error" || events[2]["error"] != "boom" {
		t.Errorf("error event = %v", events[2])
	}
}
