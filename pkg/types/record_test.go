package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDFormat(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	id, err := NewID(now)
	require.NoError(t, err)
	assert.Regexp(t, `^mem_1700000000000_[0-9a-f]{8}$`, id)
}

func TestStateForStrength(t *testing.T) {
	tests := []struct {
		strength float64
		want     State
	}{
		{1.0, StateActive},
		{0.30, StateActive},
		{0.29, StateWeak},
		{0.15, StateWeak},
		{0.14, StateArchived},
		{0.05, StateArchived},
		{0.04, StateDeleted},
		{0.0, StateDeleted},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StateForStrength(tt.strength), "strength=%v", tt.strength)
	}
}

func TestNeverForget(t *testing.T) {
	base := func() *Record {
		return &Record{Type: KindEpisodic, Importance: 0.1, AccessCount: 0}
	}

	r := base()
	assert.False(t, r.NeverForget(0.8, 50))

	r = base()
	r.Type = KindSystem
	assert.True(t, r.NeverForget(0.8, 50))

	r = base()
	r.AddTag(TagProtected)
	assert.True(t, r.NeverForget(0.8, 50))

	r = base()
	r.Importance = 0.9
	assert.True(t, r.NeverForget(0.8, 50))

	r = base()
	r.AccessCount = 51
	assert.True(t, r.NeverForget(0.8, 50))
}

func TestTombstoneExpired(t *testing.T) {
	r := &Record{}
	assert.False(t, r.TombstoneExpired(time.Now(), 7*24*time.Hour))

	past := time.Now().Add(-8 * 24 * time.Hour)
	r.TombstonedAt = &past
	assert.True(t, r.TombstoneExpired(time.Now(), 7*24*time.Hour))
	assert.False(t, r.TombstoneExpired(time.Now(), 30*24*time.Hour))
}

func TestAccessesSinceUsesBaselineSample(t *testing.T) {
	now := time.Now()
	r := &Record{
		AccessCount: 10,
		AccessSamples: []AccessSample{
			{At: now.Add(-10 * 24 * time.Hour), AccessCount: 2},
			{At: now.Add(-5 * 24 * time.Hour), AccessCount: 6},
		},
	}

	assert.Equal(t, 10-2, r.AccessesSince(now, 7*24*time.Hour))
	assert.Equal(t, 10, r.AccessesSince(now, 11*24*time.Hour))
}

func TestAccessesSinceWithNoSamplesReturnsFullCount(t *testing.T) {
	r := &Record{AccessCount: 4}
	assert.Equal(t, 4, r.AccessesSince(time.Now(), 24*time.Hour))
}

func TestRecordAccessSampleTrimsOld(t *testing.T) {
	now := time.Now()
	r := &Record{AccessCount: 1}
	r.RecordAccessSample(now.Add(-40*24*time.Hour), 30*24*time.Hour)
	r.RecordAccessSample(now, 30*24*time.Hour)

	require.Len(t, r.AccessSamples, 1)
	assert.Equal(t, now, r.AccessSamples[0].At)
}

func TestCloneIsIndependent(t *testing.T) {
	r := &Record{
		ID:        "mem_1_aaaaaaaa",
		Embedding: []float64{1, 2, 3},
		Tags:      map[string]struct{}{"a": {}},
		Links:     map[string]struct{}{"mem_2_bbbbbbbb": {}},
		ReviewState: &ReviewState{IntervalDays: 1},
	}

	c := r.Clone()
	c.Embedding[0] = 99
	c.AddTag("b")
	c.AddLink("mem_3_cccccccc")
	c.ReviewState.IntervalDays = 99

	assert.Equal(t, float64(1), r.Embedding[0])
	assert.False(t, r.HasTag("b"))
	assert.Len(t, r.Links, 1)
	assert.Equal(t, float64(1), r.ReviewState.IntervalDays)
}
