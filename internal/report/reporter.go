// Package report drives the pipeline: resolve the Slick testrun context, run
// the configured test command, extract match records from its output and
// file one result per record.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/slickqa/slick-reporter/internal/config"
	"github.com/slickqa/slick-reporter/internal/parallel"
	"github.com/slickqa/slick-reporter/internal/run"
	"github.com/slickqa/slick-reporter/internal/slick"
)

// fileParallelism bounds concurrent result filings. Each filing is
// independent, only the shared testcase cache is synchronized.
const fileParallelism = 4

// Reporter owns one testrun on a Slick server and files results into it.
type Reporter struct {
	cfg    *config.Config
	client *slick.Client
	runner *run.Runner

	project   slick.Project
	release   slick.Release
	build     slick.Build
	component *slick.Component
	testplan  *slick.Testplan
	testrun   slick.Testrun
}

func New(cfg *config.Config, client *slick.Client) *Reporter {
	return &Reporter{
		cfg:    cfg,
		client: client,
		runner: run.NewRunner(),
	}
}

// Init resolves everything a result needs to point at: the project must
// already exist, release, build, component and testplan are created on
// demand, and a RUNNING testrun is opened.
func (r *Reporter) Init(ctx context.Context) error {
	slog.DebugContext(ctx, "initializing slick reporting")
	for _, step := range []func(context.Context) error{
		r.initProject,
		r.initRelease,
		r.initBuild,
		r.initComponent,
		r.initTestplan,
		r.initTestrun,
	} {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reporter) initProject(ctx context.Context) error {
	name := r.cfg.Slick.Project
	slog.DebugContext(ctx, "looking for project", "project", name)
	project, err := r.client.FindProjectByName(ctx, name)
	if err != nil {
		return fmt.Errorf("unable to find project with name %q on slick at %q: %w", name, r.cfg.Slick.URL, err)
	}
	r.project = project
	slog.InfoContext(ctx, "found project", "project", project.Name, "project_id", project.ID)
	return nil
}

func (r *Reporter) initRelease(ctx context.Context) error {
	name := r.cfg.Slick.Release
	slog.DebugContext(ctx, "looking for release", "release", name, "project", r.project.Name)
	for _, release := range r.project.Releases {
		if release.Name == name {
			slog.InfoContext(ctx, "found release", "release", release.Name, "release_id", release.ID)
			r.release = release
			return nil
		}
	}

	slog.InfoContext(ctx, "adding release to project", "release", name, "project", r.project.Name)
	created, err := r.client.CreateRelease(ctx, r.project.ID, slick.Release{Name: name})
	if err != nil {
		return fmt.Errorf("creating release %q: %w", name, err)
	}
	r.release = created
	slog.InfoContext(ctx, "using newly created release", "release", created.Name, "release_id", created.ID)
	return nil
}

func (r *Reporter) initBuild(ctx context.Context) error {
	number, err := r.buildNumber(ctx)
	if err != nil {
		return err
	}

	slog.DebugContext(ctx, "looking for build", "build", number, "release", r.release.Name)
	for _, build := range r.release.Builds {
		if build.Name == number {
			slog.DebugContext(ctx, "found build", "build", build.Name, "build_id", build.ID)
			r.build = build
			return nil
		}
	}

	slog.InfoContext(ctx, "adding build to release", "build", number, "release", r.release.Name)
	created, err := r.client.CreateBuild(ctx, r.project.ID, r.release.ID, slick.Build{Name: number})
	if err != nil {
		return fmt.Errorf("creating build %q: %w", number, err)
	}
	r.build = created
	slog.InfoContext(ctx, "using newly created build", "build", created.Name, "build_id", created.ID)
	return nil
}

// buildNumber resolves the build identifier: the literal `build` key when
// set, otherwise build.command's output matched against build.regex. A
// non-zero exit of build.command is logged and its output examined anyway;
// with several matches the first wins.
func (r *Reporter) buildNumber(ctx context.Context) (string, error) {
	if r.cfg.Slick.Build != "" {
		return r.cfg.Slick.Build, nil
	}

	command := r.cfg.Slick.BuildCommand
	slog.DebugContext(ctx, "running build command", "command", command)
	res, err := r.runner.Run(ctx, run.Command{
		Shell:   command,
		Timeout: r.cfg.Slick.BuildTimeout,
	}, logStderr)
	if err != nil {
		return "", fmt.Errorf("running build command %q: %w", command, err)
	}
	if res.ExitCode() != 0 {
		slog.WarnContext(ctx, "build command had an invalid return code",
			"command", command, "exit_code", res.ExitCode(), "output", res.Stdout.String())
	}

	rec, ok := r.cfg.Slick.BuildPattern.First(res.Stdout.String())
	if !ok {
		return "", fmt.Errorf("no build number found: output of %q does not match build.regex", command)
	}
	number := rec["build"]
	slog.DebugContext(ctx, "found build number in command output", "build", number)
	return number, nil
}

func (r *Reporter) initComponent(ctx context.Context) error {
	name := r.cfg.Slick.Component
	if name == "" {
		slog.WarnContext(ctx, "no component specified, results will not have an associated component")
		return nil
	}

	slog.DebugContext(ctx, "looking for component", "component", name, "project", r.project.Name)
	for _, component := range r.project.Components {
		if component.Name == name {
			slog.InfoContext(ctx, "found component", "component", component.Name, "component_id", component.ID)
			r.component = &component
			return nil
		}
	}

	slog.InfoContext(ctx, "adding component to project", "component", name, "project", r.project.Name)
	created, err := r.client.CreateComponent(ctx, r.project.ID, slick.Component{Name: name})
	if err != nil {
		return fmt.Errorf("creating component %q: %w", name, err)
	}
	r.component = &created
	slog.InfoContext(ctx, "using newly created component", "component", created.Name, "component_id", created.ID)
	return nil
}

func (r *Reporter) initTestplan(ctx context.Context) error {
	name := r.cfg.Slick.Testplan
	if name == "" {
		slog.WarnContext(ctx, "no testplan specified for the testrun")
		return nil
	}

	plan, err := r.client.FindTestplan(ctx, r.project.ID, name)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "found existing testplan", "testplan", plan.Name, "testplan_id", plan.ID)
	case errors.Is(err, slick.ErrNotFound):
		slog.DebugContext(ctx, "creating testplan", "testplan", name, "project", r.project.Name)
		plan, err = r.client.CreateTestplan(ctx, slick.Testplan{
			Name:      name,
			Project:   r.project.Ref(),
			CreatedBy: "slick-reporter",
		})
		if err != nil {
			return fmt.Errorf("creating testplan %q: %w", name, err)
		}
		slog.InfoContext(ctx, "using newly created testplan", "testplan", plan.Name, "testplan_id", plan.ID)
	default:
		return fmt.Errorf("looking up testplan %q: %w", name, err)
	}
	r.testplan = &plan
	return nil
}

func (r *Reporter) initTestrun(ctx context.Context) error {
	testrun := slick.Testrun{
		Name:       "Tests run from slick-reporter",
		Project:    r.project.Ref(),
		Release:    r.release.Ref(),
		Build:      r.build.Ref(),
		State:      slick.RunStatusRunning,
		RunStarted: time.Now().UnixMilli(),
	}
	if r.testplan != nil {
		testrun.Name = "Testrun for testplan " + r.testplan.Name
		testrun.TestplanID = r.testplan.ID
	}

	slog.DebugContext(ctx, "creating testrun", "testrun", testrun.Name)
	created, err := r.client.CreateTestrun(ctx, testrun)
	if err != nil {
		return fmt.Errorf("creating testrun: %w", err)
	}
	r.testrun = created
	return nil
}

// Sink returns the SlickSink pointing at the testrun opened by Init.
func (r *Reporter) Sink() Sink {
	s := &SlickSink{
		client:  r.client,
		project: r.project.Ref(),
		release: r.release.Ref(),
		build:   r.build.Ref(),
		testrun: r.testrun.Ref(),
	}
	if r.component != nil {
		ref := r.component.Ref()
		s.component = &ref
	}
	return s
}

// Run executes the [Test] command, extracts one record per output match and
// files the rendered results through sink. A record whose templates cannot
// be rendered is logged and skipped; a command that cannot be launched is an
// error; a non-zero exit code or an output with no matches is not.
func (r *Reporter) Run(ctx context.Context, sink Sink) (Summary, error) {
	command := r.cfg.Test.Command
	slog.InfoContext(ctx, "running command and examining its output", "command", command)
	res, err := r.runner.Run(ctx, run.Command{
		Shell:         command,
		Timeout:       r.cfg.Test.Timeout,
		CombineOutput: true,
	}, nil)
	if err != nil {
		return Summary{}, fmt.Errorf("running test command %q: %w", command, err)
	}

	summary := Summary{
		ExitCode: res.ExitCode(),
		Elapsed:  res.Elapsed(),
	}
	if res.ExitCode() != 0 {
		slog.WarnContext(ctx, "test command exited non-zero, examining output anyway",
			"command", command, "exit_code", res.ExitCode())
	}

	var filed []FiledResult
	for rec := range r.cfg.Test.Output.Extract(res.Stdout.String()) {
		slog.DebugContext(ctx, "matched output", "record", map[string]string(rec))
		result, err := renderRecord(r.cfg.Test, rec)
		if err != nil {
			slog.ErrorContext(ctx, "skipping unrenderable result", "error", err)
			summary.Skipped++
			continue
		}
		filed = append(filed, result)
	}

	if len(filed) == 0 && summary.Skipped == 0 {
		summary.Unparseable = true
		slog.WarnContext(ctx, "command output contained no recognizable result lines", "command", command)
		return summary, nil
	}

	err = parallel.ForEach(ctx, fileParallelism, slices.Values(filed), sink.File)
	if err != nil {
		return summary, err
	}
	for _, f := range filed {
		summary.count(f.Status)
	}
	return summary, nil
}

// Finish marks the testrun FINISHED. Always call it, even when Run failed,
// so the server never keeps a testrun open.
func (r *Reporter) Finish(ctx context.Context) error {
	if r.testrun.ID == "" {
		return nil
	}
	_, err := r.client.UpdateTestrun(ctx, slick.Testrun{
		ID:          r.testrun.ID,
		State:       slick.RunStatusFinished,
		RunFinished: time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("finishing testrun: %w", err)
	}
	return nil
}

func logStderr(ctx context.Context, line string) {
	slog.DebugContext(ctx, "command stderr", "line", line)
}
