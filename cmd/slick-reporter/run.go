package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/slickqa/slick-reporter/internal/log"
	"github.com/slickqa/slick-reporter/internal/report"
	"github.com/slickqa/slick-reporter/internal/schedule"
	"github.com/slickqa/slick-reporter/internal/slick"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const displayPrecision = 10 * time.Millisecond

func doRun(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if !schedule.Enabled(cfg.Schedule) {
		_, err := runPipeline(ctx)
		return err
	}

	// scheduled mode: repeat the pipeline until interrupted, logging
	// failures instead of giving up
	scheduler, err := schedule.New(cfg.Schedule, func() {
		if _, err := runPipeline(ctx); err != nil {
			slog.ErrorContext(ctx, "scheduled run failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.InfoContext(ctx, "starting scheduled runs",
		"cron", cfg.Schedule.Cron, "every", cfg.Schedule.Every)
	scheduler.Start()
	<-ctx.Done()
	return scheduler.Shutdown()
}

// runPipeline performs one full report: connect, open a testrun, run the
// test command, file results and close the testrun.
func runPipeline(ctx context.Context) (report.Summary, error) {
	attrs := slog.Group("slick-reporter",
		slog.String("run_id", uuid.NewString()),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	if flagDryRun {
		// stdout carries the JSON lines, so the summary goes to stderr
		reporter := report.New(cfg, nil)
		summary, err := reporter.Run(ctx, report.NewWriteSink(os.Stdout))
		if err != nil {
			return summary, err
		}
		printSummary(os.Stderr, summary)
		return summary, nil
	}

	client, err := slick.NewClient(cfg.Slick.URL)
	if err != nil {
		return report.Summary{}, err
	}

	slog.DebugContext(ctx, "attempting to connect to slick", "url", cfg.Slick.URL)
	info, err := client.Version(ctx)
	if err != nil {
		return report.Summary{}, fmt.Errorf("validating slick connection at %q: %w", cfg.Slick.URL, err)
	}
	slog.InfoContext(ctx, "connected to slick",
		"product", info.ProductName, "version", info.VersionString, "url", cfg.Slick.URL)

	reporter := report.New(cfg, client)
	if err := reporter.Init(ctx); err != nil {
		return report.Summary{}, err
	}
	defer func() {
		if err := reporter.Finish(ctx); err != nil {
			slog.ErrorContext(ctx, "unable to finish testrun", "error", err)
		}
	}()

	summary, err := reporter.Run(ctx, reporter.Sink())
	if err != nil {
		return summary, err
	}
	printSummary(os.Stdout, summary)
	return summary, nil
}

func printSummary(w io.Writer, s report.Summary) {
	if s.Unparseable {
		color.New(color.FgYellow).Fprintln(w, "no recognizable result lines in the command output")
		return
	}

	for status, count := range s.ByStatus {
		line := fmt.Sprintf("%-12s %d", status, count)
		switch status {
		case slick.StatusPass:
			color.New(color.FgGreen).Fprintln(w, line)
		case slick.StatusFail, slick.StatusBrokenTest:
			color.New(color.FgRed).Fprintln(w, line)
		default:
			color.New(color.FgYellow).Fprintln(w, line)
		}
	}
	fmt.Fprintf(w, "filed %d result(s) in %s", s.Filed, s.Elapsed.Round(displayPrecision))
	if s.Skipped > 0 {
		fmt.Fprintf(w, ", skipped %d", s.Skipped)
	}
	if s.ExitCode != 0 {
		fmt.Fprintf(w, ", command exit code %d", s.ExitCode)
	}
	fmt.Fprintln(w)
}
