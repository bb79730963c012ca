package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/slickqa/slick-reporter/internal/extract"

	_ "embed"
)

// Log level names accepted in the Logging section.
const (
	LevelDebug    = "DEBUG"
	LevelInfo     = "INFO"
	LevelWarning  = "WARNING"
	LevelError    = "ERROR"
	LevelCritical = "CRITICAL"
)

//go:embed defaults.conf
var defaultsSource string

func init() {
	if len(defaultsSource) == 0 {
		panic("variable defaultsSource is empty")
	}
	if _, err := Parse(strings.NewReader(defaultsSource)); err != nil {
		panic(err)
	}
}

// Default returns a fresh Document holding the built-in configuration.
func Default() *Document {
	doc, err := Parse(strings.NewReader(defaultsSource))
	if err != nil {
		panic(err)
	}
	return doc
}

// LoadDocument returns the built-in defaults overlaid with the configuration
// file at path. A missing file is not an error: the defaults are used alone.
func LoadDocument(path string) (*Document, error) {
	doc := Default()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("config file not found, using defaults", "path", path)
			return doc, nil
		}
		return nil, fmt.Errorf("opening config file %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	overlay, err := Parse(f)
	if err != nil {
		return nil, err
	}
	doc.Merge(overlay)
	return doc, nil
}

// ValidationError reports a configuration value which is present but unusable,
// or a required value which is missing.
type ValidationError struct {
	Section string
	Key     string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Section, e.Key, e.Message)
}

// Slick holds the [Slick] section: where results go and how the build number
// is discovered.
type Slick struct {
	URL       string
	Project   string
	Component string
	Release   string
	Testplan  string

	// Either a literal build number, or a command whose output is matched
	// against BuildPattern's `build` group.
	Build        string
	BuildCommand string
	BuildPattern *extract.Pattern
	BuildTimeout time.Duration
}

// Test holds the [Test] section: the command to run, the output pattern and
// the report field templates.
type Test struct {
	Command string
	Output  *extract.Pattern

	// {group} templates, empty when unset.
	Name      string
	Reason    string
	Result    string
	Runlength string

	Timeout time.Duration
}

// Logging holds the [Logging] section.
type Logging struct {
	Logfile    string
	Level      string
	Stdout     bool
	Format     string // "text" or "json"
	DateFormat string
}

// Schedule holds the optional [Schedule] section. Both empty means oneshot.
type Schedule struct {
	Cron  string
	Every string
}

// Config is the typed, validated view of a Document.
type Config struct {
	Slick    Slick
	Test     Test
	Logging  Logging
	Schedule Schedule

	doc *Document
}

// Document returns the raw document the Config was decoded from.
func (c *Config) Document() *Document {
	return c.doc
}

// New decodes and validates a Document. All regular expressions are compiled
// and every template placeholder is checked against the output pattern's
// group set here, so a bad reference fails at startup rather than on first
// use. All problems are reported together.
func New(doc *Document) (*Config, error) {
	c := &Config{doc: doc}
	var errs []error

	c.Slick = Slick{
		URL:          doc.GetDefault("Slick", "url", ""),
		Project:      doc.GetDefault("Slick", "project", ""),
		Component:    doc.GetDefault("Slick", "component", ""),
		Release:      doc.GetDefault("Slick", "release", ""),
		Testplan:     doc.GetDefault("Slick", "testplan", ""),
		Build:        doc.GetDefault("Slick", "build", ""),
		BuildCommand: doc.GetDefault("Slick", "build.command", ""),
	}
	if expr, ok := doc.Get("Slick", "build.regex"); ok {
		pattern, err := extract.Compile(expr)
		if err != nil {
			errs = append(errs, &ValidationError{Section: "Slick", Key: "build.regex", Message: err.Error()})
		} else if !pattern.Has("build") {
			errs = append(errs, &ValidationError{Section: "Slick", Key: "build.regex",
				Message: "pattern has no (?P<build>...) group"})
		} else {
			c.Slick.BuildPattern = pattern
		}
	}
	if c.Slick.Build == "" && c.Slick.BuildCommand == "" {
		errs = append(errs, &ValidationError{Section: "Slick", Key: "build",
			Message: "either build, or build.command and build.regex must be set"})
	}
	if c.Slick.BuildCommand != "" && c.Slick.Build == "" && c.Slick.BuildPattern == nil {
		errs = append(errs, &ValidationError{Section: "Slick", Key: "build.regex",
			Message: "required when build.command is used without a literal build"})
	}
	if d, err := duration(doc, "Slick", "build.timeout"); err != nil {
		errs = append(errs, err)
	} else {
		c.Slick.BuildTimeout = d
	}

	c.Test = Test{
		Command:   doc.GetDefault("Test", "command", ""),
		Name:      doc.GetDefault("Test", "name", ""),
		Reason:    doc.GetDefault("Test", "reason", ""),
		Result:    doc.GetDefault("Test", "result", ""),
		Runlength: doc.GetDefault("Test", "runlength", ""),
	}
	if c.Test.Command == "" {
		errs = append(errs, &ValidationError{Section: "Test", Key: "command", Message: "required"})
	}
	if expr, ok := doc.Get("Test", "output.regex"); !ok || expr == "" {
		errs = append(errs, &ValidationError{Section: "Test", Key: "output.regex", Message: "required"})
	} else if pattern, err := extract.Compile(expr); err != nil {
		errs = append(errs, &ValidationError{Section: "Test", Key: "output.regex", Message: err.Error()})
	} else {
		c.Test.Output = pattern
	}
	if c.Test.Output != nil {
		for key, template := range map[string]string{
			"name":      c.Test.Name,
			"reason":    c.Test.Reason,
			"result":    c.Test.Result,
			"runlength": c.Test.Runlength,
		} {
			if template == "" {
				continue
			}
			if err := c.Test.Output.ValidateTemplate(template); err != nil {
				errs = append(errs, &ValidationError{Section: "Test", Key: key, Message: err.Error()})
			}
		}
	}
	if d, err := duration(doc, "Test", "timeout"); err != nil {
		errs = append(errs, err)
	} else {
		c.Test.Timeout = d
	}

	c.Logging = Logging{
		Logfile:    doc.GetDefault("Logging", "logfile", ""),
		Level:      doc.GetDefault("Logging", "level", LevelDebug),
		Format:     doc.GetDefault("Logging", "format", "text"),
		DateFormat: doc.GetDefault("Logging", "dateformat", ""),
	}
	if b, err := boolean(doc, "Logging", "stdout", true); err != nil {
		errs = append(errs, err)
	} else {
		c.Logging.Stdout = b
	}
	switch strings.ToUpper(c.Logging.Level) {
	case LevelDebug, LevelInfo, LevelWarning, LevelError, LevelCritical:
		c.Logging.Level = strings.ToUpper(c.Logging.Level)
	default:
		errs = append(errs, &ValidationError{Section: "Logging", Key: "level",
			Message: fmt.Sprintf("unknown level %q", c.Logging.Level)})
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, &ValidationError{Section: "Logging", Key: "format",
			Message: fmt.Sprintf("must be text or json, got %q", c.Logging.Format)})
	}

	c.Schedule = Schedule{
		Cron:  doc.GetDefault("Schedule", "cron", ""),
		Every: doc.GetDefault("Schedule", "every", ""),
	}
	if c.Schedule.Cron != "" && c.Schedule.Every != "" {
		errs = append(errs, &ValidationError{Section: "Schedule", Key: "cron",
			Message: "cron and every are mutually exclusive"})
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Load is the common path: defaults, file overlay, typed validation.
func Load(path string) (*Config, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}
	return New(doc)
}

func boolean(doc *Document, section, key string, def bool) (bool, error) {
	v, ok := doc.Get(section, key)
	if !ok {
		return def, nil
	}
	// configparser's getboolean vocabulary
	switch strings.ToLower(v) {
	case "1", "yes", "true", "on":
		return true, nil
	case "0", "no", "false", "off":
		return false, nil
	}
	return false, &ValidationError{Section: section, Key: key,
		Message: fmt.Sprintf("not a boolean: %q", v)}
}

func duration(doc *Document, section, key string) (time.Duration, error) {
	v, ok := doc.Get(section, key)
	if !ok || v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, &ValidationError{Section: section, Key: key, Message: err.Error()}
	}
	if d < 0 {
		return 0, &ValidationError{Section: section, Key: key, Message: "must not be negative"}
	}
	return d, nil
}
