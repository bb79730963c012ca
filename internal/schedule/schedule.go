// Package schedule repeats the reporter pipeline on a timer. The [Schedule]
// section accepts either a 5-field cron expression (or @macro) or an
// ISO-8601 duration like PT15M.
package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	gocron "github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"

	"github.com/slickqa/slick-reporter/internal/config"
)

// Enabled reports whether the configuration asks for scheduled runs.
func Enabled(cfg config.Schedule) bool {
	return cfg.Cron != "" || cfg.Every != ""
}

// ValidateCron checks a 5-field cron expression. Macros and @every are
// accepted too.
func ValidateCron(expr string) error {
	e := strings.TrimSpace(expr)
	if e == "" {
		return fmt.Errorf("empty cron expression")
	}

	if strings.HasPrefix(e, "@") {
		_, err := cron.ParseStandard(e)
		return err
	}

	parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser5.Parse(e)
	return err
}

var ErrISOFormat = errors.New("invalid ISO8601 duration")

var isoDurationRx = regexp.MustCompile(`^P(?:(?P<day>\d+)D)?(?:T(?:(?P<hour>\d+)H)?(?:(?P<minute>\d+)M)?(?:(?P<second>\d+(?:[.,]\d+)?)S)?)?$`)

// ParseEvery parses an ISO-8601 duration with day, hour, minute and second
// components, e.g. P1D, PT15M, PT1H30M, PT0.5S.
func ParseEvery(dur string) (time.Duration, error) {
	if dur == "" || dur == "P" || dur == "PT" {
		return 0, ErrISOFormat
	}
	match := isoDurationRx.FindStringSubmatch(dur)
	if match == nil {
		return 0, ErrISOFormat
	}

	var total time.Duration
	for i, name := range isoDurationRx.SubexpNames() {
		part := match[i]
		if i == 0 || name == "" || part == "" {
			continue
		}
		var unit time.Duration
		switch name {
		case "day":
			unit = 24 * time.Hour
		case "hour":
			unit = time.Hour
		case "minute":
			unit = time.Minute
		case "second":
			unit = time.Second
		}
		value, err := strconv.ParseFloat(strings.Replace(part, ",", ".", 1), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: parsing %s", ErrISOFormat, part)
		}
		total += time.Duration(value * float64(unit))
	}
	if total <= 0 {
		return 0, ErrISOFormat
	}
	return total, nil
}

// New builds a scheduler which calls task per the configuration. The caller
// starts it and shuts it down.
func New(cfg config.Schedule, task func()) (gocron.Scheduler, error) {
	var job gocron.JobDefinition
	switch {
	case cfg.Cron != "":
		if err := ValidateCron(cfg.Cron); err != nil {
			return nil, fmt.Errorf("parsing schedule.cron: %w", err)
		}
		job = gocron.CronJob(cfg.Cron, false)
	case cfg.Every != "":
		d, err := ParseEvery(cfg.Every)
		if err != nil {
			return nil, fmt.Errorf("parsing schedule.every: %w", err)
		}
		job = gocron.DurationJob(d)
	default:
		return nil, errors.New("both cron and every are empty")
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing scheduler: %w", err)
	}
	_, err = s.NewJob(
		job,
		gocron.NewTask(task),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing scheduled job: %w", err)
	}
	return s, nil
}
