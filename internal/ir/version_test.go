package ir

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Version
		want int
	}{
		{"logical ts dominates", Version{1, "z", 9}, Version{2, "a", 1}, -1},
		{"actor breaks ts tie", Version{5000, "a", 1}, Version{5000, "z", 1}, -1},
		{"counter breaks actor tie", Version{5000, "a", 2}, Version{5000, "a", 1}, 1},
		{"equal", Version{5, "a", 1}, Version{5, "a", 1}, 0},
		{"actor is lexicographic not numeric", Version{5, "10", 1}, Version{5, "9", 1}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
			assert.Equal(t, -tt.want, tt.b.Compare(tt.a), "Compare must be antisymmetric")
		})
	}
}

func TestVersionTotalOrderIsStable(t *testing.T) {
	versions := []Version{
		{5000, "z", 1},
		{4000, "m", 7},
		{5000, "a", 2},
		{5000, "a", 1},
	}
	a := slices.Clone(versions)
	b := slices.Clone(versions)
	slices.Reverse(b)

	slices.SortFunc(a, Version.Compare)
	slices.SortFunc(b, Version.Compare)

	assert.Equal(t, a, b)
	assert.Equal(t, Version{5000, "z", 1}, a[len(a)-1])
}

func TestVersionAfter(t *testing.T) {
	v := Version{LogicalTS: 10, ActorID: "a", ActorCounter: 1}
	assert.False(t, v.After(v), "a version never supersedes itself")
	assert.True(t, v.After(Version{}))
	assert.True(t, Version{}.IsZero())
	assert.Equal(t, "a:1", v.EventID())
}

func TestVersionVector(t *testing.T) {
	vv := VersionVector{}
	assert.True(t, vv.Observe("b", 3))
	assert.False(t, vv.Observe("b", 2), "lower counters never regress the entry")
	assert.True(t, vv.Observe("a", 1))

	assert.Equal(t, int64(3), vv.Get("b"))
	assert.Equal(t, int64(0), vv.Get("missing"))
	assert.True(t, vv.Covers("b", 3))
	assert.False(t, vv.Covers("b", 4))
	assert.Equal(t, []string{"a", "b"}, vv.Actors())

	clone := vv.Clone()
	clone.Observe("a", 10)
	assert.Equal(t, int64(1), vv.Get("a"))
}
