package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/slickqa/slick-reporter/internal/slick"
)

// Sink is a destination for filed results.
type Sink interface {
	File(ctx context.Context, result FiledResult) error
}

// SlickSink files results against a testrun on a Slick server, creating
// testcases on first use. Safe for concurrent filing.
type SlickSink struct {
	client *slick.Client

	project   slick.Ref
	release   slick.Ref
	build     slick.Ref
	component *slick.Ref
	testrun   slick.Ref

	mx        sync.Mutex
	testcases map[string]slick.Ref
}

func (s *SlickSink) File(ctx context.Context, result FiledResult) error {
	testcase, err := s.testcase(ctx, result.Name)
	if err != nil {
		return err
	}

	end := time.Now().UnixMilli()
	filed := slick.Result{
		Testrun:   s.testrun,
		Testcase:  testcase,
		Project:   s.project,
		Release:   s.release,
		Build:     s.build,
		Component: s.component,
		Status:    result.Status,
		Reason:    result.Reason,
		RunLength: result.RunLength,
		Started:   end - result.RunLength,
		End:       end,
	}
	slog.DebugContext(ctx, "filing result", "test", result.Name, "status", result.Status)
	created, err := s.client.CreateResult(ctx, filed)
	if err != nil {
		return fmt.Errorf("filing result for test %q: %w", result.Name, err)
	}
	slog.InfoContext(ctx, "filed result",
		"test", result.Name, "status", result.Status, "result_id", created.ID)
	return nil
}

// testcase resolves a testcase reference by name, creating the testcase when
// the server has none. Known names are served from a local cache so parallel
// filings of the same test do not create duplicates.
func (s *SlickSink) testcase(ctx context.Context, name string) (slick.Ref, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.testcases == nil {
		s.testcases = make(map[string]slick.Ref)
	}
	if ref, ok := s.testcases[name]; ok {
		return ref, nil
	}

	found, err := s.client.FindTestcase(ctx, s.project.ID, name)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "found testcase for result", "test", name, "testcase_id", found.ID)
	case errors.Is(err, slick.ErrNotFound):
		slog.DebugContext(ctx, "creating testcase", "test", name)
		found, err = s.client.CreateTestcase(ctx, slick.Testcase{Name: name, Project: s.project})
		if err != nil {
			return slick.Ref{}, fmt.Errorf("creating testcase %q: %w", name, err)
		}
		slog.InfoContext(ctx, "using newly created testcase", "test", name, "testcase_id", found.ID)
	default:
		return slick.Ref{}, fmt.Errorf("looking up testcase %q: %w", name, err)
	}

	ref := found.Ref()
	s.testcases[name] = ref
	return ref, nil
}

// WriteSink writes each filed result as a JSON line, the dry-run output.
type WriteSink struct {
	mx sync.Mutex
	w  io.Writer
}

func NewWriteSink(w io.Writer) *WriteSink {
	return &WriteSink{w: w}
}

func (s *WriteSink) File(_ context.Context, result FiledResult) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	return json.NewEncoder(s.w).Encode(result)
}
