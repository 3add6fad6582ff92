package notify_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/notify"
)

func sampleReminder() notify.Reminder {
	return notify.Reminder{
		To:             "rosa@example.com",
		ClientName:     "Rosa Quispe",
		LoanID:         "l-1",
		SequenceNumber: 3,
		DueDate:        lending.MustParseDate("2025-03-01"),
		DaysOverdue:    10,
		BaseAmount:     lending.MustParseMoney("458.33"),
		LateInterest:   lending.MustParseMoney("38.19"),
		AmountDue:      lending.MustParseMoney("496.52"),
		Currency:       "S/",
	}
}

func TestRenderReminder(t *testing.T) {
	body, err := notify.RenderReminder(sampleReminder())
	require.NoError(t, err)

	assert.Contains(t, body, "Rosa Quispe")
	assert.Contains(t, body, "01/03/2025")
	assert.Contains(t, body, "10 day(s) overdue")
	assert.Contains(t, body, "S/ 496.52")
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewLogNotifier(zerolog.New(&buf))

	require.NoError(t, n.SendReminder(context.Background(), sampleReminder()))
	assert.Contains(t, buf.String(), `"amount_due":"496.52"`)
	assert.Contains(t, buf.String(), `"days_overdue":10`)
}

func TestRecorder(t *testing.T) {
	var r notify.Recorder
	require.NoError(t, r.SendReminder(context.Background(), sampleReminder()))
	require.Len(t, r.Sent(), 1)
	assert.Equal(t, 3, r.Sent()[0].SequenceNumber)
}
