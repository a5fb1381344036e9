package schedule

import (
	"testing"
	"time"

	"github.com/JakeFAU/pagewatch/internal/monitor"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func checkedAgo(interval int, ago time.Duration) monitor.Target {
	last := base.Add(-ago)
	return monitor.Target{ID: "t", CheckIntervalMinutes: interval, IsActive: true, LastCheckedAt: &last}
}

func TestIsDueNeverChecked(t *testing.T) {
	t.Parallel()

	require.True(t, IsDue(monitor.Target{CheckIntervalMinutes: 60, IsActive: true}, base))
}

func TestIsDueFrequentTier(t *testing.T) {
	t.Parallel()

	require.True(t, IsDue(checkedAgo(5, 4*time.Minute), base))
	require.False(t, IsDue(checkedAgo(5, 3*time.Minute+54*time.Second), base))
	require.True(t, IsDue(checkedAgo(1, 48*time.Second), base))
	require.False(t, IsDue(checkedAgo(1, 47*time.Second), base))
}

func TestIsDueStandardTier(t *testing.T) {
	t.Parallel()

	require.False(t, IsDue(checkedAgo(60, 59*time.Minute), base))
	require.True(t, IsDue(checkedAgo(60, 60*time.Minute), base))
	require.False(t, IsDue(checkedAgo(6, 5*time.Minute), base))
}

func TestIsDueInactive(t *testing.T) {
	t.Parallel()

	target := checkedAgo(5, time.Hour)
	target.IsActive = false
	require.False(t, IsDue(target, base))
}

func TestIsDueComparesInUTC(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+5", 5*60*60)
	target := checkedAgo(60, 30*time.Minute)
	require.False(t, IsDue(target, base.In(loc)))
}

func TestDueFiltersAndKeepsOrder(t *testing.T) {
	t.Parallel()

	a := checkedAgo(60, 2*time.Hour)
	a.ID = "a"
	b := checkedAgo(60, time.Minute)
	b.ID = "b"
	c := monitor.Target{ID: "c", CheckIntervalMinutes: 10, IsActive: true}

	got := Due([]monitor.Target{a, b, c}, base)
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].ID)
	require.Equal(t, "c", got[1].ID)
}
