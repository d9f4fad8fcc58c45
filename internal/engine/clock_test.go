package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextLogicalTS(t *testing.T) {
	tests := []struct {
		name     string
		now      int64
		maxKnown int64
		want     int64
	}{
		{"empty store", 1000, 0, 1000},
		{"clock ahead", 1000, 500, 1000},
		{"clock equal", 1000, 1000, 1001},
		{"clock behind", 1000, 5000, 5001},
		{"zero clock", 0, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextLogicalTS(tt.now, tt.maxKnown))
		})
	}
}

func TestWallClock_Milliseconds(t *testing.T) {
	before := time.Now().UnixMilli()
	got := WallClock{}.NowMillis()
	after := time.Now().UnixMilli()

	assert.GreaterOrEqual(t, got, before)
	assert.LessOrEqual(t, got, after)
}

func TestClockFunc(t *testing.T) {
	c := ClockFunc(func() int64 { return 42 })
	assert.Equal(t, int64(42), c.NowMillis())
}
