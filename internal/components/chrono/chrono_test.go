package chrono

import (
	"context"
	"testing"
	"time"

	"priceregistry/internal/components/telemetry/teltest"

	"github.com/stretchr/testify/require"
)

func TestFixedTime(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC)
	require.True(t, fixed.Equal(FixedTime(fixed).Now()))
	require.Equal(t, "Europe/Belgrade", Belgrade().String())

	// new year in Belgrade happens before new year in UTC
	require.Equal(t, 2024, time.Date(2023, 12, 31, 23, 30, 0, 0, time.UTC).In(Belgrade()).Year())
}

func TestCronLogger(t *testing.T) {
	rec := teltest.NewRecorder(t)
	logger := cronLogger{tel: rec}

	require.Equal(t, []any{"entry: 1", "next: soon"}, logger.formatParams([]any{"entry", 1, "next", "soon"}))

	logger.Error(errTest, "job failed", "entry", 1)
	broken := rec.Broken("cron")
	require.Len(t, broken, 1)
	require.Equal(t, []any{"entry: 1"}, broken[0].Params[1:])
}

func TestStandardCronRejectsBadSpec(t *testing.T) {
	// the scheduler goroutine may log after the test returns
	cron := NewStandardCron(teltest.NewRecorder(nil))
	t.Cleanup(func() { cron.Stop(context.Background()) })

	require.Error(t, cron.Cron("every monday", func() {}))
	require.NoError(t, cron.Cron("0 0 * * 1", func() {}))
}

type testError string

func (e testError) Error() string { return string(e) }

const errTest = testError("boom")
