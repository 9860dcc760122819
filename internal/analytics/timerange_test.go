package analytics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bendy545/charging-stations/internal/analytics"
)

func ptr(t time.Time) *time.Time { return &t }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNormalize_EmptyBoundsAreUnbounded(t *testing.T) {
	iv, err := analytics.Normalize(nil, nil)
	require.NoError(t, err)
	assert.True(t, iv.IsUnbounded())

	zero := time.Time{}
	iv, err = analytics.Normalize(&zero, nil)
	require.NoError(t, err)
	assert.True(t, iv.IsUnbounded())
}

func TestNormalize_StartAfterEnd(t *testing.T) {
	_, err := analytics.Normalize(ptr(day(2025, 3, 10)), ptr(day(2025, 3, 1)))
	require.Error(t, err)
	assert.True(t, analytics.IsValidation(err))
}

func TestNormalize_Idempotent(t *testing.T) {
	cases := []analytics.Interval{
		{},
		{Start: ptr(day(2025, 3, 1))},
		{End: ptr(day(2025, 3, 31))},
		{Start: ptr(day(2025, 3, 1)), End: ptr(day(2025, 3, 1))},
	}
	for _, c := range cases {
		first, err := analytics.Normalize(c.Start, c.End)
		require.NoError(t, err)
		second, err := analytics.Normalize(first.Start, first.End)
		require.NoError(t, err)
		assert.True(t, first.Equal(second), "interval %s", first)
	}
}

func TestParseInterval(t *testing.T) {
	iv, err := analytics.ParseInterval("2025-03-01", "2025-03-31")
	require.NoError(t, err)
	require.NotNil(t, iv.Start)
	require.NotNil(t, iv.End)
	assert.Equal(t, day(2025, 3, 1), *iv.Start)
	assert.True(t, iv.Contains(time.Date(2025, 3, 31, 23, 0, 0, 0, time.UTC)))
	assert.False(t, iv.Contains(day(2025, 4, 1)))

	iv, err = analytics.ParseInterval("", "2025-03-31T12:00:00Z")
	require.NoError(t, err)
	assert.Nil(t, iv.Start)
	assert.Equal(t, time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC), *iv.End)

	_, err = analytics.ParseInterval("yesterday", "")
	assert.True(t, analytics.IsValidation(err))

	_, err = analytics.ParseInterval("2025-04-01", "2025-03-01")
	assert.True(t, analytics.IsValidation(err))
}

func TestMonthInterval(t *testing.T) {
	iv := analytics.MonthInterval(2024, time.February)
	assert.Equal(t, day(2024, 2, 1), *iv.Start)
	assert.Equal(t, 29, iv.End.Day())
	assert.True(t, iv.Contains(time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC)))
	assert.False(t, iv.Contains(day(2024, 3, 1)))

	parsed, err := analytics.ParseMonth("2024-02")
	require.NoError(t, err)
	assert.True(t, parsed.Equal(iv))

	_, err = analytics.ParseMonth("02/2024")
	assert.True(t, analytics.IsValidation(err))
}
