package cmd

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/iksnae/justchat/internal/config"
	"github.com/iksnae/justchat/testutil"
)

var day = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

// testEnv runs commands against a fake backend with an isolated config,
// session database and cache
type testEnv struct {
	fb      *testutil.FakeBackend
	dir     string
	cfgPath string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fb := testutil.NewFakeBackend(t)
	fb.AddUser(testutil.UserRecord("u1", "alice", "Alice", "a.png"), "secret")
	fb.AddUser(testutil.UserRecord("u2", "bob", "Bob", ""), "hunter2")
	fb.AddUser(testutil.UserRecord("u3", "carol", "Carol", ""), "pw")

	dir := t.TempDir()
	cfg := config.Default()
	cfg.BaseURL = fb.URL
	cfg.Timezone = "UTC"
	cfg.HTTPTimeout = 5 * time.Second
	cfg.Realtime.ReconnectDelay = 0
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := cfg.Save(cfgPath); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}
	return &testEnv{fb: fb, dir: dir, cfgPath: cfgPath}
}

func (e *testEnv) args(args ...string) []string {
	return append(args,
		"--config", e.cfgPath,
		"--base-url", e.fb.URL,
		"--session-db", filepath.Join(e.dir, "session.db"),
		"--cache-dir", filepath.Join(e.dir, "cache"),
	)
}

// run executes the command line with stdin and returns what it printed
func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := e.exec(strings.NewReader(stdin), &out, args...)
	return out.String(), err
}

func (e *testEnv) exec(in io.Reader, out io.Writer, args ...string) error {
	resetFlags()
	rootCmd.SetArgs(e.args(args...))
	rootCmd.SetIn(in)
	rootCmd.SetOut(out)
	rootCmd.SetErr(io.Discard)
	return rootCmd.Execute()
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	if _, err := e.run(t, "secret\n", "login", "--username", "alice"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
}

// resetFlags restores every flag to its default between runs
func resetFlags() {
	reset := func(c *cobra.Command) {
		for _, fs := range []*pflag.FlagSet{c.Flags(), c.PersistentFlags()} {
			fs.VisitAll(func(f *pflag.Flag) {
				_ = f.Value.Set(f.DefValue)
				f.Changed = false
			})
		}
	}
	reset(rootCmd)
	for _, c := range rootCmd.Commands() {
		reset(c)
	}
}

// lockedBuffer is a bytes.Buffer safe to read while a command writes to it
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func assertContains(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
}
