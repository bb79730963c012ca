package config_test

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/slickqa/slick-reporter/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNewFromDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.New(config.Default())
	require.NoError(t, err)

	require.Equal(t, "http://localhost:8080", cfg.Slick.URL)
	require.Equal(t, "Another Project", cfg.Slick.Project)
	require.Equal(t, "echo 1.0.0-7", cfg.Slick.BuildCommand)
	require.NotNil(t, cfg.Slick.BuildPattern)
	require.True(t, cfg.Slick.BuildPattern.Has("build"))

	require.Equal(t, "cat example-output.txt", cfg.Test.Command)
	require.NotNil(t, cfg.Test.Output)
	require.Equal(t, "Search {name}", cfg.Test.Name)
	require.Equal(t, "{reason}: {counts}", cfg.Test.Reason)

	require.Equal(t, "slick-reporter.log", cfg.Logging.Logfile)
	require.Equal(t, config.LevelInfo, cfg.Logging.Level)
	require.True(t, cfg.Logging.Stdout)
	require.Equal(t, "text", cfg.Logging.Format)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	t.Run("missing required test keys", func(t *testing.T) {
		doc := config.NewDocument()
		doc.Set("Slick", "build", "42")
		_, err := config.New(doc)
		var verr *config.ValidationError
		require.ErrorAs(t, err, &verr)
		require.Contains(t, err.Error(), "[Test] command: required")
		require.Contains(t, err.Error(), "[Test] output.regex: required")
	})

	t.Run("template referencing undefined group", func(t *testing.T) {
		doc := config.Default()
		doc.Set("Test", "name", "Search {nonexistent}")
		_, err := config.New(doc)
		var verr *config.ValidationError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, "name", verr.Key)
		require.Contains(t, verr.Message, "nonexistent")
	})

	t.Run("build regex without build group", func(t *testing.T) {
		doc := config.Default()
		doc.Set("Slick", "build.regex", `.*-(?P<version>\d+)`)
		_, err := config.New(doc)
		require.ErrorContains(t, err, "no (?P<build>...) group")
	})

	t.Run("no build source at all", func(t *testing.T) {
		doc := config.Default()
		doc.Set("Slick", "build.command", "")
		_, err := config.New(doc)
		require.ErrorContains(t, err, "either build, or build.command")
	})

	t.Run("bad output regex", func(t *testing.T) {
		doc := config.Default()
		doc.Set("Test", "output.regex", `(?P<oops`)
		_, err := config.New(doc)
		var verr *config.ValidationError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, "output.regex", verr.Key)
	})

	t.Run("bad boolean", func(t *testing.T) {
		doc := config.Default()
		doc.Set("Logging", "stdout", "maybe")
		_, err := config.New(doc)
		require.ErrorContains(t, err, "not a boolean")
	})

	t.Run("bad level", func(t *testing.T) {
		doc := config.Default()
		doc.Set("Logging", "level", "LOUD")
		_, err := config.New(doc)
		require.ErrorContains(t, err, "unknown level")
	})

	t.Run("schedule exclusivity", func(t *testing.T) {
		doc := config.Default()
		doc.Set("Schedule", "cron", "*/5 * * * *")
		doc.Set("Schedule", "every", "PT5M")
		_, err := config.New(doc)
		require.ErrorContains(t, err, "mutually exclusive")
	})

	t.Run("timeouts", func(t *testing.T) {
		doc := config.Default()
		doc.Set("Test", "timeout", "90s")
		doc.Set("Slick", "build.timeout", "10s")
		cfg, err := config.New(doc)
		require.NoError(t, err)
		require.Equal(t, 90*time.Second, cfg.Test.Timeout)
		require.Equal(t, 10*time.Second, cfg.Slick.BuildTimeout)

		doc.Set("Test", "timeout", "ninety seconds")
		_, err = config.New(doc)
		require.Error(t, err)
	})
}

func TestLoadDocumentMissingFile(t *testing.T) {
	t.Parallel()
	doc, err := config.LoadDocument("does/not/exist.conf")
	require.NoError(t, err)
	v, _ := doc.Get("Slick", "url")
	require.Equal(t, "http://localhost:8080", v)
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()
	path := t.TempDir() + "/slick-reporter.conf"
	text := strings.Join([]string{
		"[Slick]",
		"url = http://slick.example.com:8080",
		"build = 42",
		"build.command =",
		"[Test]",
		"command = ./run-tests.sh",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://slick.example.com:8080", cfg.Slick.URL)
	require.Equal(t, "42", cfg.Slick.Build)
	require.Equal(t, "./run-tests.sh", cfg.Test.Command)
	// defaults still fill the gaps
	require.Equal(t, "Search {name}", cfg.Test.Name)
}
