package kafka

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lending-engine/events"
)

func TestPublisher_Message(t *testing.T) {
	p := NewPublisher([]string{"localhost:9092"}, "lending")
	t.Cleanup(func() { p.Close() })

	msg, err := p.message(events.TopicInstallmentPaid, events.InstallmentPaid{
		LoanID:        "l-1",
		TotalAmount:   decimal.RequireFromString("496.52"),
		ReceiptNumber: "REC-20250311-000001",
	})
	require.NoError(t, err)

	assert.Equal(t, "lending.installment.paid", msg.Topic)
	assert.Equal(t, "l-1", string(msg.Key))

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "496.52", body["total_amount"])
	assert.Equal(t, "REC-20250311-000001", body["receipt_number"])
}

func TestPublisher_NoPrefix(t *testing.T) {
	p := NewPublisher([]string{"localhost:9092"}, "")
	t.Cleanup(func() { p.Close() })

	msg, err := p.message(events.TopicLoanCreated, events.LoanCreated{LoanID: "l-2"})
	require.NoError(t, err)
	assert.Equal(t, "loan.created", msg.Topic)
}
