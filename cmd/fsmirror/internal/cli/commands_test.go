package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/albertocavalcante/fsmirror/cmd/fsmirror/internal/runner"
	"github.com/albertocavalcante/fsmirror/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags restores every flag to its default so commands can be executed
// more than once per test binary.
func resetFlags(root *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	root.PersistentFlags().VisitAll(reset)
	for _, c := range root.Commands() {
		c.Flags().VisitAll(reset)
		c.PersistentFlags().VisitAll(reset)
		resetFlags(c)
	}
}

// execute runs the root command with args and returns what it printed.
// Global and user configuration are isolated to temporary directories.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	root := RootCmd()
	resetFlags(root)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	t.Cleanup(func() {
		root.SetOut(nil)
		root.SetErr(nil)
		root.SetArgs(nil)
	})

	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// ============================================================================
// Version Command Tests
// ============================================================================

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "fsmirror dev (unknown)") {
		t.Errorf("version output = %q", out)
	}
}

// ============================================================================
// Setup Tests
// ============================================================================

func TestSetup_FlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	if _, err := execute(t, "--hash", "sha256", "--immutable", dir, "status", dir); err != nil {
		t.Fatalf("status error = %v", err)
	}
	if cfg.Hash.Algorithm != "sha256" {
		t.Errorf("Hash.Algorithm = %q, want sha256", cfg.Hash.Algorithm)
	}
	if len(cfg.Locations.Immutable) != 1 || cfg.Locations.Immutable[0] != dir {
		t.Errorf("Locations.Immutable = %v, want [%s]", cfg.Locations.Immutable, dir)
	}
	if *cfg.Log.Verbosity != config.DefaultVerbosity {
		t.Errorf("Log.Verbosity = %d, want default %d", *cfg.Log.Verbosity, config.DefaultVerbosity)
	}
}

func TestSetup_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"hash", []string{"--hash", "md5", "status", "."}},
		{"log format", []string{"--log-format", "xml", "status", "."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
				t.Errorf("error = %v, want invalid configuration", err)
			}
		})
	}
}

func TestColorMode(t *testing.T) {
	on, off := true, false
	tests := []struct {
		name        string
		setting     *bool
		flag        bool
		changed     bool
		wantDisable bool
		wantForce   bool
	}{
		{"unset follows flag default", nil, false, false, false, false},
		{"unset with flag", nil, true, true, true, false},
		{"config on", &on, false, false, false, true},
		{"config off", &off, false, false, true, false},
		{"flag beats config", &on, true, true, true, false},
	}

	saved := cfg
	t.Cleanup(func() { cfg = saved })
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg = config.NewConfig()
			cfg.Log.Color = tt.setting
			disable, force := colorMode(tt.flag, tt.changed)
			if disable != tt.wantDisable || force != tt.wantForce {
				t.Errorf("colorMode(%v, %v) = %v, %v, want %v, %v",
					tt.flag, tt.changed, disable, force, tt.wantDisable, tt.wantForce)
			}
		})
	}
}

// ============================================================================
// Snapshot Command Tests
// ============================================================================

func TestSnapshotCmd(t *testing.T) {
	base := t.TempDir()
	out := filepath.Join(base, "out")
	writeFile(t, filepath.Join(out, "a.txt"), "a")
	writeFile(t, filepath.Join(out, "sub", "b.txt"), "b")

	got, err := execute(t, "snapshot", out, filepath.Join(base, "missing"))
	if err != nil {
		t.Fatalf("snapshot error = %v", err)
	}
	for _, want := range []string{out + " (Directory, 2 files,", "  a.txt  ", "  sub/", "    b.txt  "} {
		if !strings.Contains(got, want) {
			t.Errorf("snapshot output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "missing") {
		t.Errorf("missing paths should be ignored:\n%s", got)
	}
}

func TestSnapshotCmd_JSON(t *testing.T) {
	base := t.TempDir()
	report := filepath.Join(base, "report.txt")
	writeFile(t, report, "r")
	writeFile(t, filepath.Join(base, "tree", "x.txt"), "x")

	got, err := execute(t, "snapshot", "--json", "--tree", filepath.Join(base, "tree"), report)
	if err != nil {
		t.Fatalf("snapshot error = %v", err)
	}

	var roots []SnapshotRoot
	if err := json.Unmarshal([]byte(got), &roots); err != nil {
		t.Fatalf("failed to parse JSON: %v\n%s", err, got)
	}
	if len(roots) != 2 {
		t.Fatalf("got %d roots, want 2", len(roots))
	}
	if roots[0].Path != report || roots[0].Files != 1 {
		t.Errorf("roots[0] = %+v, want the report file", roots[0])
	}
	if roots[1].Tree.Children[0].Name != "x.txt" {
		t.Errorf("tree children = %+v, want x.txt", roots[1].Tree.Children)
	}
	if roots[1].Fingerprint.IsZero() {
		t.Error("directory fingerprint should not be zero")
	}
}

func TestSnapshotCmd_Errors(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "out", "sub", "a.txt"), "a")
	writeFile(t, filepath.Join(base, "file.txt"), "f")

	tests := []struct {
		name string
		args []string
	}{
		{"no paths", []string{"snapshot"}},
		{"nested roots", []string{"snapshot", filepath.Join(base, "out"), filepath.Join(base, "out", "sub")}},
		{"tree of a file", []string{"snapshot", "--tree", filepath.Join(base, "file.txt")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Errorf("snapshot %v expected error", tt.args[1:])
			}
		})
	}
}

// ============================================================================
// Check Command Tests
// ============================================================================

func TestCheckCmd_FlagDefaults(t *testing.T) {
	cmd := findCommand(RootCmd(), "check")
	if cmd == nil {
		t.Fatal("check command not found")
	}

	tests := []struct {
		flagName     string
		wantDefault  string
		wantShortcut string
	}{
		{"output", "[]", "o"},
		{"name", "", ""},
		{"json", "false", ""},
		{"first", "false", ""},
		{"no-color", "false", ""},
	}
	for _, tt := range tests {
		t.Run(tt.flagName, func(t *testing.T) {
			flag := cmd.Flags().Lookup(tt.flagName)
			if flag == nil {
				t.Fatalf("flag %q not found on check command", tt.flagName)
			}
			if flag.DefValue != tt.wantDefault {
				t.Errorf("flag %q default = %q, want %q", tt.flagName, flag.DefValue, tt.wantDefault)
			}
			if flag.Shorthand != tt.wantShortcut {
				t.Errorf("flag %q shorthand = %q, want %q", tt.flagName, flag.Shorthand, tt.wantShortcut)
			}
		})
	}
}

func TestCheckCmd(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	writeFile(t, filepath.Join(out, "a.txt"), "a")
	writeFile(t, filepath.Join(out, "gone.txt"), "gone")

	got, err := execute(t, "check", "--output", out, "--dir", out, "--no-color", "--",
		"sh", "-c", "echo new > new.txt && echo changed > a.txt && rm gone.txt")
	if err != nil {
		t.Fatalf("check error = %v\n%s", err, got)
	}
	for _, want := range []string{
		"+ Output file " + filepath.Join(out, "new.txt") + " has been added.",
		"~ Output file " + filepath.Join(out, "a.txt") + " has changed.",
		"- Output file " + filepath.Join(out, "gone.txt") + " has been removed.",
		"1 added, 1 modified, 1 removed",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("check output missing %q:\n%s", want, got)
		}
	}
}

func TestCheckCmd_JSONFirst(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	writeFile(t, filepath.Join(out, "a.txt"), "a")

	got, err := execute(t, "check", "-o", out, "--dir", out, "--json", "--first", "--name", "gen", "--",
		"sh", "-c", "echo b > b.txt && echo c > c.txt")
	if err != nil {
		t.Fatalf("check error = %v\n%s", err, got)
	}

	var res CheckOutput
	if err := json.Unmarshal([]byte(got), &res); err != nil {
		t.Fatalf("failed to parse JSON: %v\n%s", err, got)
	}
	if res.Name != "gen" || !res.Changed {
		t.Errorf("result = %+v, want changed unit gen", res)
	}
	if len(res.Changes) != 1 || res.Changes[0].Path != filepath.Join(out, "b.txt") {
		t.Errorf("changes = %+v, want only b.txt", res.Changes)
	}
	if res.ExitCode != 0 || res.Error != "" {
		t.Errorf("exit = %d, error = %q, want success", res.ExitCode, res.Error)
	}
}

func TestCheckCmd_CommandFails(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	writeFile(t, filepath.Join(out, "a.txt"), "a")

	got, err := execute(t, "check", "-o", out, "--dir", out, "--no-color", "--",
		"sh", "-c", "echo partial > a.txt; exit 3")
	if err == nil {
		t.Fatal("check expected error for failing command")
	}
	if code := runner.ExitCode(err); code != 3 {
		t.Errorf("ExitCode() = %d, want 3", code)
	}
	if !strings.Contains(got, "has changed.") {
		t.Errorf("changes should be reported for a failing command:\n%s", got)
	}
}

func TestCheckCmd_Errors(t *testing.T) {
	out := t.TempDir()

	tests := []struct {
		name string
		args []string
	}{
		{"missing output flag", []string{"check", "--", "true"}},
		{"missing command", []string{"check", "-o", out}},
		{"unknown command", []string{"check", "-o", out, "--", "fsmirror-no-such-command"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Errorf("check %v expected error", tt.args[1:])
			}
		})
	}
}

// ============================================================================
// Status Command Tests
// ============================================================================

func TestStatusCmd(t *testing.T) {
	base := t.TempDir()
	out := filepath.Join(base, "out")
	writeFile(t, filepath.Join(out, "a.txt"), "a")
	writeFile(t, filepath.Join(out, "sub", "b.txt"), "b")
	report := filepath.Join(base, "report.txt")
	writeFile(t, report, "r")

	got, err := execute(t, "status", "--metrics", out, report, filepath.Join(base, "missing"))
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	for _, want := range []string{
		out + ": directory, 2 files, 1 dirs,",
		report + ": file ",
		filepath.Join(base, "missing") + ": missing",
		"(mutable)",
		"fsmirror_walked_files_total",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("status output missing %q:\n%s", want, got)
		}
	}
}

func TestStatusCmd_JSON(t *testing.T) {
	base := t.TempDir()
	cache := filepath.Join(base, "cache")
	writeFile(t, filepath.Join(cache, "lib.jar"), "lib")

	got, err := execute(t, "--immutable", cache, "status", "--json", filepath.Join(cache, "lib.jar"))
	if err != nil {
		t.Fatalf("status error = %v", err)
	}

	var res StatusOutput
	if err := json.Unmarshal([]byte(got), &res); err != nil {
		t.Fatalf("failed to parse JSON: %v\n%s", err, got)
	}
	if len(res.Paths) != 1 {
		t.Fatalf("paths = %+v, want 1", res.Paths)
	}
	st := res.Paths[0]
	if !st.Immutable || st.Files != 1 || st.Fingerprint.IsZero() {
		t.Errorf("status = %+v, want an immutable hashed file", st)
	}
	if res.Immutable.Files != 1 {
		t.Errorf("immutable mirror files = %d, want 1", res.Immutable.Files)
	}
}

func TestStatusCmd_JSONAndMetricsExclusive(t *testing.T) {
	if _, err := execute(t, "status", "--json", "--metrics", t.TempDir()); err == nil {
		t.Error("status --json --metrics expected error")
	}
}

// ============================================================================
// Watch Command Tests
// ============================================================================

func TestWatchCmd_FlagDefaults(t *testing.T) {
	cmd := findCommand(RootCmd(), "watch")
	if cmd == nil {
		t.Fatal("watch command not found")
	}

	for _, name := range []string{"debounce", "verbose", "json", "no-color"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("flag %q not found on watch command", name)
		}
	}
	if got := cmd.Flags().Lookup("debounce").DefValue; got != "0" {
		t.Errorf("debounce default = %q, want %q", got, "0")
	}
}

func TestWatchCmd_RequiresPath(t *testing.T) {
	if _, err := execute(t, "watch"); err == nil {
		t.Error("watch without paths expected error")
	}
}
