package primitive

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDrivingTimeTo(t *testing.T) {
	a := Location{Latitude: 0, Longitude: 0}
	b := Location{Latitude: 3, Longitude: 4}

	assert.Equal(t, int64(20000), a.DrivingTimeTo(b))
	assert.Equal(t, a.DrivingTimeTo(b), b.DrivingTimeTo(a))
	assert.Equal(t, int64(0), a.DrivingTimeTo(a))

	// 距离换算后恰好为 0.5、2.5、4.5 秒时舍入到偶数
	for lat, want := range map[float64]int64{0.000125: 0, 0.000625: 2, 0.001125: 4, 0.000375: 2} {
		assert.Equal(t, want, a.DrivingTimeTo(Location{Latitude: lat}), "latitude %v", lat)
	}
}

func TestOverlapLength(t *testing.T) {
	tests := []struct {
		name string
		a, b Interval
		want int64
	}{
		{"partial", Interval{0, 4}, Interval{2, 6}, 2},
		{"touching", Interval{0, 4}, Interval{4, 8}, 0},
		{"disjoint", Interval{0, 2}, Interval{5, 8}, 0},
		{"contained", Interval{0, 10}, Interval{3, 5}, 2},
		{"identical", Interval{1, 3}, Interval{1, 3}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OverlapLength(tt.a, tt.b))
			assert.Equal(t, tt.want > 0, Overlaps(tt.a, tt.b))
		})
	}
}

func TestOverlapSymmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		a := randomInterval(rng)
		b := randomInterval(rng)

		ab := OverlapLength(a, b)
		assert.Equal(t, ab, OverlapLength(b, a))
		assert.GreaterOrEqual(t, ab, int64(0))
		if !Overlaps(a, b) {
			assert.Zero(t, ab, "intervals %v %v", a, b)
		}
	}
}

func randomInterval(rng *rand.Rand) Interval {
	start := rng.Int63n(20)
	return Interval{Start: start, End: start + rng.Int63n(6)}
}

func TestCeilMinutes(t *testing.T) {
	assert.Equal(t, int64(0), CeilMinutes(0))
	assert.Equal(t, int64(0), CeilMinutes(-time.Minute))
	assert.Equal(t, int64(1), CeilMinutes(30*time.Second))
	assert.Equal(t, int64(1), CeilMinutes(time.Minute))
	assert.Equal(t, int64(2), CeilMinutes(time.Minute+time.Nanosecond))
}

func TestMinuteOverlap(t *testing.T) {
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, int64(120), MinuteOverlap(base.Add(6*time.Hour), base.Add(14*time.Hour), base.Add(12*time.Hour), base.Add(20*time.Hour)))
	assert.Equal(t, int64(0), MinuteOverlap(base, base.Add(time.Hour), base.Add(time.Hour), base.Add(2*time.Hour)))
}
