package report

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/slickqa/slick-reporter/internal/config"
	"github.com/slickqa/slick-reporter/internal/extract"
	"github.com/slickqa/slick-reporter/internal/slick"
)

// FiledResult is one rendered test outcome, ready for a Sink.
type FiledResult struct {
	Name      string             `json:"name"`
	Status    slick.ResultStatus `json:"status"`
	Reason    string             `json:"reason,omitempty"`
	RunLength int64              `json:"runlength"` // milliseconds
}

// Summary describes one completed pipeline run. A failing command and an
// unparseable output are distinct signals: ExitCode reports the former,
// Unparseable the latter, and neither is an error by itself.
type Summary struct {
	Filed       int
	Skipped     int
	ByStatus    map[slick.ResultStatus]int
	ExitCode    int
	Unparseable bool
	Elapsed     time.Duration
}

func (s *Summary) count(status slick.ResultStatus) {
	if s.ByStatus == nil {
		s.ByStatus = make(map[slick.ResultStatus]int)
	}
	s.ByStatus[status]++
	s.Filed++
}

// renderRecord turns one match into a FiledResult. For each field a [Test]
// template wins over a same-named capture group, which wins over the
// built-in default.
func renderRecord(cfg config.Test, rec extract.Record) (FiledResult, error) {
	pattern := cfg.Output

	status := string(slick.StatusBrokenTest)
	if cfg.Result != "" {
		rendered, err := pattern.Render(cfg.Result, rec)
		if err != nil {
			return FiledResult{}, fmt.Errorf("rendering result: %w", err)
		}
		status = rendered
	} else if v, ok := rec.Lookup("result"); ok {
		status = v
	}

	// a missing optional reason group reports the bare outcome
	if pattern.Has("reason") {
		if _, ok := rec.Lookup("reason"); !ok {
			rec["reason"] = "Output Indicated " + status
		}
	}

	var reason string
	if cfg.Reason != "" {
		rendered, err := pattern.Render(cfg.Reason, rec)
		if err != nil {
			return FiledResult{}, fmt.Errorf("rendering reason: %w", err)
		}
		reason = rendered
	} else if v, ok := rec.Lookup("reason"); ok {
		reason = v
	}

	name := "Command " + cfg.Command
	if cfg.Name != "" {
		rendered, err := pattern.Render(cfg.Name, rec)
		if err != nil {
			return FiledResult{}, fmt.Errorf("rendering name: %w", err)
		}
		name = rendered
	} else if v, ok := rec.Lookup("name"); ok {
		name = v
	}

	var runlength int64
	if cfg.Runlength != "" {
		rendered, err := pattern.Render(cfg.Runlength, rec)
		if err != nil {
			return FiledResult{}, fmt.Errorf("rendering runlength: %w", err)
		}
		runlength = parseRunlength(rendered)
	} else if v, ok := rec.Lookup("runlength"); ok {
		runlength = parseRunlength(v)
	}

	return FiledResult{
		Name:      name,
		Status:    slick.ResultStatus(status),
		Reason:    reason,
		RunLength: runlength,
	}, nil
}

func parseRunlength(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		slog.Warn("runlength is not a number, using 0", "value", s, "error", err)
		return 0
	}
	return n
}
