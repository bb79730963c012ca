package slickreporter_test

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	reporterPath string

	// tmpDir is a function used to create a tempdir
	// -test.keepdir flag says test to use os.MkdirTemp
	// default is t.TempDir, which will be cleaned up
	tmpDir func(t *testing.T) string
)

func TestMain(m *testing.M) {
	var keepTestDir bool
	flag.BoolVar(&keepTestDir, "test.keepdir", false, "use os.TempDir instead of t.TempDir to keep test artifacts")
	flag.Parse()

	if testing.Short() {
		slog.Warn("integration tests with -short are ignored")
		os.Exit(0)
	}

	if !keepTestDir {
		tmpDir = func(t *testing.T) string {
			t.Helper()
			return t.TempDir()
		}
	} else {
		tmpDir = func(t *testing.T) string {
			t.Helper()
			dir, err := os.MkdirTemp("", t.Name()+"*")
			require.NoError(t, err)
			t.Logf("TEMPDIR %s: -test.keepdir used, so it won't be automatically deleted", dir)
			return dir
		}
	}

	if !isExecutable("slick-reporter-ci") {
		slog.Error("cannot locate slick-reporter-ci binary: run go build -race -cover -covermode=atomic -o slick-reporter-ci ./cmd/slick-reporter/ first")
		os.Exit(1)
	}

	var err error
	reporterPath, err = filepath.Abs("slick-reporter-ci")
	if err != nil {
		slog.Error("can't get abspath for slick-reporter-ci", "error", err)
		os.Exit(1)
	}
	coverDir, err := filepath.Abs("coverage")
	if err != nil {
		slog.Error("can't get value for GOCOVERDIR for slick-reporter-ci", "error", err)
		os.Exit(1)
	}
	err = rmRfMkdirp(coverDir)
	if err != nil {
		slog.Error("can't reset GOCOVERDIR for slick-reporter-ci", "error", err, "coverdir", coverDir)
		os.Exit(1)
	}

	err = os.Setenv("GOCOVERDIR", coverDir)
	if err != nil {
		slog.Error("can't set GOCOVERDIR env variable", "error", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func TestDryRun(t *testing.T) {
	_ = chDir(t)

	const config = `
[Slick]
url = http://localhost:8080
project = Another Project

[Test]
command = printf 'RESULT: PASS (3 of 3 in 142ms) LoginTest\nRESULT: FAIL (1 of 4 in 500ms) CheckoutTest\n'
output.regex = RESULT: (?P<result>[A-Z_]+) \((?P<counts>\d+ of \d+) in (?P<runlength>\d+)ms\) (?P<name>\w+)
name = Search {name}
reason = Output Indicated {result}: {counts}

[Logging]
stdout = False
logfile = reporter.log
`
	creat(t, "slick-reporter.conf", []byte(config))

	ctx, cancel := context.WithTimeout(t.Context(), 60*time.Second)
	t.Cleanup(cancel)
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, reporterPath, "run", "--dry-run", "--config", "slick-reporter.conf")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		t.Logf("%s", stderr.String())
		require.NoError(t, err)
	}

	// store the $TEST_NAME json lines
	creat(t, t.Name()+".json", stdout.Bytes())

	type filed struct {
		Name   string `json:"name"`
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	var results []filed
	dec := json.NewDecoder(bytes.NewReader(stdout.Bytes()))
	for dec.More() {
		var r filed
		require.NoError(t, dec.Decode(&r))
		results = append(results, r)
	}

	require.Len(t, results, 2)
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Name
	}
	require.ElementsMatch(t, []string{"Search LoginTest", "Search CheckoutTest"}, names)
	for _, r := range results {
		switch r.Name {
		case "Search LoginTest":
			require.Equal(t, "PASS", r.Status)
			require.Equal(t, "Output Indicated PASS: 3 of 3", r.Reason)
		case "Search CheckoutTest":
			require.Equal(t, "FAIL", r.Status)
			require.Equal(t, "Output Indicated FAIL: 1 of 4", r.Reason)
		}
	}
}

func TestConfigure(t *testing.T) {
	dir := chDir(t)

	ctx, cancel := context.WithTimeout(t.Context(), 60*time.Second)
	t.Cleanup(cancel)
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, reporterPath, "configure", "--config", "generated.conf")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		t.Logf("%s", stderr.String())
		require.NoError(t, err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "generated.conf"))
	require.NoError(t, err)
	require.Contains(t, string(b), "[Slick]")
	require.Contains(t, string(b), "[Test]")
	require.Contains(t, string(b), "[Logging]")
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().Perm()&0111 != 0
}

func rmRfMkdirp(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

func chDir(t *testing.T) string {
	t.Helper()
	tempdir := tmpDir(t)
	err := os.Chdir(tempdir)
	require.NoError(t, err)
	return tempdir
}

func creat(t *testing.T, path string, content []byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, f.Close())
	}()
	_, err = f.Write(content)
	require.NoError(t, err)
	err = f.Sync()
	require.NoError(t, err)
}
