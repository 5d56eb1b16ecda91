package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"batchflow/pkg/errutil"
)

func intPtr(v int) *int { return &v }

func TestNextRunDailyBeforeTimeOfDay(t *testing.T) {
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	spec := TriggerSpec{TimeOfDay: "09:00", Frequency: Daily}

	next, err := spec.NextRun(now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), next)
}

func TestNextRunDailyAfterTimeOfDay(t *testing.T) {
	// schedule a daily task at 09:00 when it is already 10:00
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	spec := TriggerSpec{TimeOfDay: "09:00", Frequency: Daily}

	next, err := spec.NextRun(now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), next)
}

func TestNextRunWeeklySameWeek(t *testing.T) {
	// Monday 08:00, scheduling Wednesday at 08:00 lands the same week
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	require.Equal(t, time.Monday, now.Weekday())

	spec := TriggerSpec{TimeOfDay: "08:00", Frequency: Weekly, DayOfWeek: intPtr(3)}

	next, err := spec.NextRun(now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC), next)
	require.Equal(t, time.Wednesday, next.Weekday())
}

func TestNextRunWeeklyWrapsToNextWeek(t *testing.T) {
	// Friday, scheduling Tuesday
	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	require.Equal(t, time.Friday, now.Weekday())

	spec := TriggerSpec{TimeOfDay: "09:00", Frequency: Weekly, DayOfWeek: intPtr(2)}

	next, err := spec.NextRun(now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 1, 9, 9, 0, 0, 0, time.UTC), next)
	require.Equal(t, time.Tuesday, next.Weekday())
}

func TestNextRunMonthlySameMonth(t *testing.T) {
	now := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
	spec := TriggerSpec{TimeOfDay: "11:00", Frequency: Monthly, DayOfMonth: intPtr(15)}

	next, err := spec.NextRun(now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC), next)
}

func TestNextRunMonthlyRollsToNextMonth(t *testing.T) {
	now := time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC)
	spec := TriggerSpec{TimeOfDay: "11:00", Frequency: Monthly, DayOfMonth: intPtr(15)}

	next, err := spec.NextRun(now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 2, 15, 11, 0, 0, 0, time.UTC), next)
}

func TestNextRunMonthlyYearRollover(t *testing.T) {
	now := time.Date(2024, 12, 20, 10, 0, 0, 0, time.UTC)
	spec := TriggerSpec{TimeOfDay: "11:00", Frequency: Monthly, DayOfMonth: intPtr(15)}

	next, err := spec.NextRun(now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 1, 15, 11, 0, 0, 0, time.UTC), next)
}

func TestNextRunMonthlyClampsShortMonth(t *testing.T) {
	// day 31 requested, April has 30 days
	now := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	spec := TriggerSpec{TimeOfDay: "09:00", Frequency: Monthly, DayOfMonth: intPtr(31)}

	next, err := spec.NextRun(now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC), next)
}

func TestNextRunMonthlyClampsFebruary(t *testing.T) {
	now := time.Date(2023, 1, 31, 12, 0, 0, 0, time.UTC)
	spec := TriggerSpec{TimeOfDay: "09:00", Frequency: Monthly, DayOfMonth: intPtr(30)}

	next, err := spec.NextRun(now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2023, 2, 28, 9, 0, 0, 0, time.UTC), next)
}

func TestNextRunStrictlyAfterNow(t *testing.T) {
	specs := []TriggerSpec{
		{TimeOfDay: "00:00", Frequency: Daily},
		{TimeOfDay: "23:59", Frequency: Daily},
		{TimeOfDay: "12:30", Frequency: Weekly, DayOfWeek: intPtr(0)},
		{TimeOfDay: "12:30", Frequency: Weekly, DayOfWeek: intPtr(6)},
		{TimeOfDay: "06:15", Frequency: Monthly, DayOfMonth: intPtr(1)},
		{TimeOfDay: "06:15", Frequency: Monthly, DayOfMonth: intPtr(31)},
	}

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for day := 0; day < 60; day++ {
		for _, spec := range specs {
			next, err := spec.NextRun(now)
			require.NoError(t, err)
			require.True(t, next.After(now), "spec %+v at %v returned %v", spec, now, next)
		}
		now = now.Add(17*time.Hour + 13*time.Minute)
	}
}

func TestNextRunWeeklyAlwaysMatchesWeekday(t *testing.T) {
	now := time.Date(2024, 3, 1, 7, 45, 0, 0, time.UTC)
	for dow := 0; dow <= 6; dow++ {
		spec := TriggerSpec{TimeOfDay: "10:00", Frequency: Weekly, DayOfWeek: intPtr(dow)}
		next, err := spec.NextRun(now)
		require.NoError(t, err)
		require.Equal(t, dow, int(next.Weekday()))
	}
}

func TestTriggerSpecValidation(t *testing.T) {
	cases := []struct {
		name string
		spec TriggerSpec
	}{
		{"bad time of day", TriggerSpec{TimeOfDay: "25:00", Frequency: Daily}},
		{"unknown frequency", TriggerSpec{TimeOfDay: "09:00", Frequency: "hourly"}},
		{"daily with selector", TriggerSpec{TimeOfDay: "09:00", Frequency: Daily, DayOfWeek: intPtr(1)}},
		{"weekly missing day", TriggerSpec{TimeOfDay: "09:00", Frequency: Weekly}},
		{"weekly day out of range", TriggerSpec{TimeOfDay: "09:00", Frequency: Weekly, DayOfWeek: intPtr(7)}},
		{"weekly negative day", TriggerSpec{TimeOfDay: "09:00", Frequency: Weekly, DayOfWeek: intPtr(-1)}},
		{"weekly with day of month", TriggerSpec{TimeOfDay: "09:00", Frequency: Weekly, DayOfWeek: intPtr(1), DayOfMonth: intPtr(3)}},
		{"monthly missing day", TriggerSpec{TimeOfDay: "09:00", Frequency: Monthly}},
		{"monthly day out of range", TriggerSpec{TimeOfDay: "09:00", Frequency: Monthly, DayOfMonth: intPtr(32)}},
		{"monthly day zero", TriggerSpec{TimeOfDay: "09:00", Frequency: Monthly, DayOfMonth: intPtr(0)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.spec.NextRun(time.Now())
			require.Error(t, err)
			require.True(t, errutil.HasStatus(err, errutil.StatusBadRequest))
		})
	}
}

func TestTriggerScheduleNext(t *testing.T) {
	spec := TriggerSpec{TimeOfDay: "09:00", Frequency: Daily}
	sched := triggerSchedule{spec: spec}

	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), sched.Next(now))

	// invalid spec deactivates the entry instead of firing
	bad := triggerSchedule{spec: TriggerSpec{TimeOfDay: "nope", Frequency: Daily}}
	require.True(t, bad.Next(now).IsZero())
}
