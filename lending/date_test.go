package lending_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lending-engine/lending"
)

func TestParseDate(t *testing.T) {
	got, err := lending.ParseDate("2025-01-31")
	require.NoError(t, err)
	assert.Equal(t, lending.NewDate(2025, time.January, 31), got)

	for _, bad := range []string{"", "31/01/2025", "2025-02-30", "2025-1-5", "tomorrow"} {
		_, err := lending.ParseDate(bad)
		assert.ErrorIs(t, err, lending.ErrInvalidDate, bad)
	}
}

func TestDateOf_DropsTimeOfDay(t *testing.T) {
	lima := time.FixedZone("PET", -5*60*60)
	late := time.Date(2025, time.March, 10, 23, 30, 0, 0, lima)

	assert.Equal(t, "2025-03-10", lending.DateOf(late).String())
	assert.True(t, lending.DateOf(time.Time{}).IsZero())
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 0, lending.DaysBetween(d("2025-03-10"), d("2025-03-10")))
	assert.Equal(t, 10, lending.DaysBetween(d("2025-03-01"), d("2025-03-11")))
	assert.Equal(t, -10, lending.DaysBetween(d("2025-03-11"), d("2025-03-01")))
	assert.Equal(t, 366, lending.DaysBetween(d("2024-01-01"), d("2025-01-01")))
}

func TestEndOfMonth(t *testing.T) {
	assert.Equal(t, "2025-02-28", lending.EndOfMonth(2025, time.February).String())
	assert.Equal(t, "2025-12-31", lending.EndOfMonth(2025, time.December).String())
}

func TestFixedClock(t *testing.T) {
	var clock lending.Clock = lending.FixedClock{Date: d("2025-03-11")}
	assert.Equal(t, "2025-03-11", clock.Today().String())
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "458.33", money("458.333333").RoundCents().String())
	assert.Equal(t, "0.01", money("0.005").RoundCents().String())
	assert.Equal(t, int64(45833), money("458.33").Cents())
	assert.Equal(t, "1.50", lending.MoneyFromCents(150).String())
	assert.Equal(t, "6.00", lending.Sum(money("1.5"), money("2.25"), money("2.25")).String())

	_, err := lending.ParseMoney("abc")
	assert.Error(t, err)
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, lending.IsNotFound(lending.NotFound("loan", "x")))
	assert.Equal(t, "loan x not found", lending.NotFound("loan", "x").Error())
	assert.True(t, lending.IsClientError(&lending.InvalidLoanTermsError{Field: "principal", Reason: "must be greater than zero"}))
	assert.True(t, lending.IsConflict(lending.ErrAlreadyPaid))
	assert.False(t, lending.IsClientError(lending.ErrNotFound))
}
