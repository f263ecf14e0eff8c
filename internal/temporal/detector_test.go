package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/refintel/api/schemas"
	"github.com/xkilldash9x/refintel/internal/config"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return day0.AddDate(0, 0, n)
}

func testDetector() *Detector {
	cfg := config.Default().Referral
	cfg.BurstWindow = 7 * 24 * time.Hour
	cfg.BurstMinCount = 3
	cfg.DormancyGap = 60 * 24 * time.Hour
	return NewDetector(cfg)
}

func TestProfileStates(t *testing.T) {
	t.Parallel()
	d := testDetector()

	testCases := []struct {
		name   string
		events []time.Time
		asOf   time.Time
		state  schemas.TemporalState
		bursts int
	}{
		{
			name:   "three referrals inside one window",
			events: []time.Time{day(1), day(2), day(3)},
			asOf:   day(3),
			state:  schemas.StateBurst,
			bursts: 1,
		},
		{
			name:   "no events",
			events: nil,
			asOf:   day(3),
			state:  schemas.StateInsufficientData,
		},
		{
			name:   "single event is never extrapolated",
			events: []time.Time{day(1)},
			asOf:   day(1),
			state:  schemas.StateInsufficientData,
		},
		{
			name:   "single old event is still insufficient",
			events: []time.Time{day(1)},
			asOf:   day(400),
			state:  schemas.StateInsufficientData,
		},
		{
			name:   "spread out activity is steady",
			events: []time.Time{day(0), day(20), day(40), day(60)},
			asOf:   day(70),
			state:  schemas.StateSteady,
		},
		{
			name:   "historic burst then silence reports dormant",
			events: []time.Time{day(1), day(2), day(3)},
			asOf:   day(100),
			state:  schemas.StateDormant,
			bursts: 1,
		},
		{
			name:   "two events below the burst threshold",
			events: []time.Time{day(1), day(2)},
			asOf:   day(2),
			state:  schemas.StateSteady,
		},
		{
			name:   "gap exactly at threshold is not dormant",
			events: []time.Time{day(0), day(30)},
			asOf:   day(90),
			state:  schemas.StateSteady,
		},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := d.Profile("e1", tt.events, tt.asOf)
			assert.Equal(t, tt.state, p.State)
			assert.Len(t, p.Bursts, tt.bursts)
			assert.Equal(t, len(tt.events), p.Events)
		})
	}
}

func TestBurstIntervalsMerge(t *testing.T) {
	t.Parallel()
	d := testDetector()

	// Days 1-6 form overlapping dense windows; days 30-32 form a second burst.
	events := []time.Time{day(32), day(1), day(2), day(3), day(5), day(6), day(30), day(31)}
	p := d.Profile("e1", events, day(32))

	require.Len(t, p.Bursts, 2)
	assert.Equal(t, day(1), p.Bursts[0].Start)
	assert.Equal(t, day(6), p.Bursts[0].End)
	assert.Equal(t, 5, p.Bursts[0].Count)
	assert.Equal(t, day(30), p.Bursts[1].Start)
	assert.Equal(t, day(32), p.Bursts[1].End)
	assert.Equal(t, 3, p.Bursts[1].Count)

	assert.Equal(t, day(1), p.FirstActivity)
	assert.Equal(t, day(32), p.LastActivity)
	assert.Equal(t, time.Duration(0), p.Gap)
	assert.Equal(t, day(32), events[0], "input slice must not be reordered")
}

func TestProfileGapAndEmerging(t *testing.T) {
	t.Parallel()
	d := testDetector()

	p := d.Profile("e1", []time.Time{day(10), day(40)}, day(50))
	assert.Equal(t, 10*24*time.Hour, p.Gap)
	assert.True(t, p.Emerging)

	old := d.Profile("e2", []time.Time{day(0), day(100)}, day(100))
	assert.False(t, old.Emerging)
}

func TestTimelineBuckets(t *testing.T) {
	t.Parallel()
	events := []time.Time{
		time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 1, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC),
	}

	cfg := config.Default().Referral
	monthly := NewDetector(cfg).Profile("e1", events, events[2])
	assert.Equal(t, []schemas.PeriodCount{{Period: "2024-01", Count: 1}, {Period: "2024-02", Count: 2}}, monthly.Timeline)

	cfg.Period = "week"
	weekly := NewDetector(cfg).Profile("e1", events, events[2])
	assert.Equal(t, []schemas.PeriodCount{{Period: "2024-W05", Count: 2}, {Period: "2024-W07", Count: 1}}, weekly.Timeline)

	cfg.Period = "day"
	daily := NewDetector(cfg).Profile("e1", events, events[2])
	assert.Len(t, daily.Timeline, 3)
	assert.Equal(t, "2024-01-31", daily.Timeline[0].Period)
}

func TestProfileAll(t *testing.T) {
	t.Parallel()
	d := testDetector()
	entities := []schemas.Entity{{Index: 0, ID: "a"}, {Index: 1, ID: "b"}}

	profiles := d.ProfileAll(entities, [][]time.Time{{day(1), day(2), day(3)}}, day(3))

	require.Len(t, profiles, 2)
	assert.Equal(t, "a", profiles[0].EntityID)
	assert.Equal(t, schemas.StateBurst, profiles[0].State)
	assert.Equal(t, "b", profiles[1].EntityID)
	assert.Equal(t, schemas.StateInsufficientData, profiles[1].State)
}

func TestAsOf(t *testing.T) {
	t.Parallel()
	cfg := config.Default().Referral

	derived, err := AsOf(cfg, [][]time.Time{{day(3), day(9)}, {day(5)}})
	require.NoError(t, err)
	assert.Equal(t, day(9), derived)

	cfg.AsOf = "2024-03-01"
	fixed, err := AsOf(cfg, [][]time.Time{{day(3)}})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), fixed)
}
