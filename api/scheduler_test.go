package api

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lending-engine/backoffice"
	"github.com/warp/lending-engine/lending"
)

type countingSender struct {
	calls atomic.Int32
	err   error
}

func (s *countingSender) SendOverdueReminders(context.Context) (backoffice.ReminderRun, error) {
	n := s.calls.Add(1)
	return backoffice.ReminderRun{Today: lending.MustParseDate("2025-03-11"), Sent: int(n)}, s.err
}

func TestNewReminderScheduler_RejectsBadSchedule(t *testing.T) {
	_, err := NewReminderScheduler(&countingSender{}, "every tuesday", zerolog.Nop())
	assert.Error(t, err)

	for _, schedule := range []string{"@daily", "0 9 * * *", "@every 6h"} {
		_, err := NewReminderScheduler(&countingSender{}, schedule, zerolog.Nop())
		assert.NoError(t, err, schedule)
	}
}

func TestReminderScheduler_RunNow(t *testing.T) {
	sender := &countingSender{}
	rs, err := NewReminderScheduler(sender, "@daily", zerolog.Nop())
	require.NoError(t, err)

	_, ok := rs.LastRun()
	assert.False(t, ok)

	run, err := rs.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Sent)

	last, ok := rs.LastRun()
	require.True(t, ok)
	assert.Equal(t, "2025-03-11", last.Today.String())
}

func TestReminderScheduler_FailedRunKeepsLastRun(t *testing.T) {
	sender := &countingSender{}
	rs, err := NewReminderScheduler(sender, "@daily", zerolog.Nop())
	require.NoError(t, err)

	_, err = rs.RunNow(context.Background())
	require.NoError(t, err)

	sender.err = errors.New("store down")
	_, err = rs.RunNow(context.Background())
	assert.Error(t, err)

	last, ok := rs.LastRun()
	require.True(t, ok)
	assert.Equal(t, 1, last.Sent)
}

func TestReminderScheduler_StartStop(t *testing.T) {
	rs, err := NewReminderScheduler(&countingSender{}, "@every 1h", zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, rs.Start())
	require.NoError(t, rs.Start()) // second start is a no-op
	rs.Stop()
	rs.Stop()
}
