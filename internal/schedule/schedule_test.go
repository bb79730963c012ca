package schedule_test

import (
	"testing"
	"time"

	"github.com/slickqa/slick-reporter/internal/config"
	"github.com/slickqa/slick-reporter/internal/schedule"
	"github.com/stretchr/testify/require"
)

func TestEnabled(t *testing.T) {
	t.Parallel()
	require.False(t, schedule.Enabled(config.Schedule{}))
	require.True(t, schedule.Enabled(config.Schedule{Cron: "*/5 * * * *"}))
	require.True(t, schedule.Enabled(config.Schedule{Every: "PT5M"}))
}

func TestValidateCron(t *testing.T) {
	t.Parallel()
	for _, ok := range []string{"*/5 * * * *", "0 3 * * 1", "@hourly", "@every 1h"} {
		require.NoError(t, schedule.ValidateCron(ok), "expression %q", ok)
	}
	for _, bad := range []string{"", "not a cron", "61 * * * *", "* * * *"} {
		require.Error(t, schedule.ValidateCron(bad), "expression %q", bad)
	}
}

func TestParseEvery(t *testing.T) {
	t.Parallel()
	cases := map[string]time.Duration{
		"P1D":      24 * time.Hour,
		"PT15M":    15 * time.Minute,
		"PT1H30M":  90 * time.Minute,
		"P1DT2H":   26 * time.Hour,
		"PT90S":    90 * time.Second,
		"PT0.5S":   500 * time.Millisecond,
		"PT0,5S":   500 * time.Millisecond,
		"PT1H0M5S": time.Hour + 5*time.Second,
	}
	for in, want := range cases {
		got, err := schedule.ParseEvery(in)
		require.NoError(t, err, "duration %q", in)
		require.Equal(t, want, got, "duration %q", in)
	}

	for _, bad := range []string{"", "P", "PT", "15m", "PT15", "P-1D", "5M"} {
		_, err := schedule.ParseEvery(bad)
		require.ErrorIs(t, err, schedule.ErrISOFormat, "duration %q", bad)
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("duration job fires", func(t *testing.T) {
		fired := make(chan struct{}, 8)
		s, err := schedule.New(config.Schedule{Every: "PT0.05S"}, func() {
			select {
			case fired <- struct{}{}:
			default:
			}
		})
		require.NoError(t, err)
		s.Start()
		defer func() {
			require.NoError(t, s.Shutdown())
		}()

		select {
		case <-fired:
		case <-time.After(5 * time.Second):
			t.Fatal("scheduled task never fired")
		}
	})

	t.Run("bad config", func(t *testing.T) {
		_, err := schedule.New(config.Schedule{}, func() {})
		require.Error(t, err)
		_, err = schedule.New(config.Schedule{Cron: "nope"}, func() {})
		require.Error(t, err)
		_, err = schedule.New(config.Schedule{Every: "nope"}, func() {})
		require.Error(t, err)
	})
}
