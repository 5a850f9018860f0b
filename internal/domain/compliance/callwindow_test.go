package compliance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustZone(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func calculatorAt(t *testing.T, at time.Time) *Calculator {
	t.Helper()
	c, err := NewCalculator(nil, WithClock(func() time.Time { return at }))
	require.NoError(t, err)
	return c
}

func TestIsWithinCallHours_Eastern(t *testing.T) {
	ny := mustZone(t, "America/New_York")

	tests := []struct {
		hour, minute int
		want         bool
	}{
		{7, 59, false},
		{8, 0, true},
		{20, 59, true},
		{21, 0, false},
	}

	for _, tt := range tests {
		at := time.Date(2024, time.January, 15, tt.hour, tt.minute, 0, 0, ny)
		c := calculatorAt(t, at.UTC())
		assert.Equal(t, tt.want, c.IsWithinCallHours("2125550100"), "at %s", at.Format("15:04"))
	}
}

func TestNextCallWindow(t *testing.T) {
	ny := mustZone(t, "America/New_York")

	t.Run("late evening rolls to next morning", func(t *testing.T) {
		c := calculatorAt(t, time.Date(2024, time.January, 15, 22, 0, 0, 0, ny))
		got := c.NextCallWindow("212-555-0100")
		assert.True(t, got.Equal(time.Date(2024, time.January, 16, 8, 0, 0, 0, ny)), got)
	})

	t.Run("early morning waits for eight", func(t *testing.T) {
		c := calculatorAt(t, time.Date(2024, time.January, 15, 6, 30, 0, 0, ny))
		got := c.NextCallWindow("2125550100")
		assert.True(t, got.Equal(time.Date(2024, time.January, 15, 8, 0, 0, 0, ny)), got)
	})

	t.Run("inside window returns now", func(t *testing.T) {
		now := time.Date(2024, time.January, 15, 12, 0, 0, 0, ny)
		c := calculatorAt(t, now)
		assert.True(t, c.NextCallWindow("2125550100").Equal(now))
	})

	t.Run("month end", func(t *testing.T) {
		c := calculatorAt(t, time.Date(2024, time.January, 31, 23, 15, 0, 0, ny))
		got := c.NextCallWindow("2125550100")
		assert.True(t, got.Equal(time.Date(2024, time.February, 1, 8, 0, 0, 0, ny)), got)
	})
}

func TestCallWindow_UsesAreaCodeZone(t *testing.T) {
	// 10:00 in New York is 07:00 in Los Angeles and 05:00 in Honolulu.
	ny := mustZone(t, "America/New_York")
	c := calculatorAt(t, time.Date(2024, time.January, 15, 10, 0, 0, 0, ny))

	assert.True(t, c.IsWithinCallHours("2125550100"))
	assert.True(t, c.IsWithinCallHours("3125550100"), "Chicago is 09:00")
	assert.False(t, c.IsWithinCallHours("4155550100"))
	assert.False(t, c.IsWithinCallHours("8085550100"))

	la := mustZone(t, "America/Los_Angeles")
	assert.True(t, c.NextCallWindow("(415) 555-0100").Equal(time.Date(2024, time.January, 15, 8, 0, 0, 0, la)))
}

func TestCallWindow_UnknownAreaCodeDefaultsToEastern(t *testing.T) {
	ny := mustZone(t, "America/New_York")
	c := calculatorAt(t, time.Date(2024, time.January, 15, 7, 0, 0, 0, ny))

	assert.Equal(t, DefaultZone, c.Location("9995550100").String())
	assert.Equal(t, DefaultZone, c.Location("").String())
	assert.False(t, c.IsWithinCallHours("9995550100"))

	st := c.Check("9995550100")
	assert.Equal(t, "999", st.AreaCode)
	assert.Equal(t, DefaultZone, st.Timezone)
	assert.False(t, st.Allowed)
	assert.True(t, st.NextWindow.Equal(time.Date(2024, time.January, 15, 8, 0, 0, 0, ny)))
}

func TestAreaCode(t *testing.T) {
	tests := map[string]string{
		"2125550100":      "212",
		"+1 212 555 0100": "212",
		"1-808-555-0100":  "808",
		"(907) 555-0100":  "907",
		"12":              "12",
		"":                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, AreaCode(in), in)
	}
}

func TestAreaCodeTable(t *testing.T) {
	table := areaCodeTable()
	assert.Len(t, table, 183)
	assert.Equal(t, "America/Denver", table["303"])
	assert.Equal(t, "America/Anchorage", table["907"])
	assert.Equal(t, "Pacific/Honolulu", table["808"])
}
