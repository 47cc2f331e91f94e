package overflow

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memcore-dev/memcore/pkg/types"
)

func TestAppendAndDepth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overflow.ndjson")
	l, err := New(path, nil)
	require.NoError(t, err)

	r := &types.Record{ID: "mem_1_aaaaaaaa", Content: "hello"}
	require.NoError(t, l.Append(Entry{Record: r, QueuedAt: time.Now().Format(time.RFC3339)}))
	require.NoError(t, l.Append(Entry{Record: r, QueuedAt: time.Now().Format(time.RFC3339)}))

	depth, err := l.Depth()
	require.NoError(t, err)
	assert.Equal(t, 2, depth)
}

func TestDrainRemovesProcessedEntriesOldestFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overflow.ndjson")
	l, err := New(path, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		r := &types.Record{ID: "mem_" + string(rune('a'+i)) + "_aaaaaaaa"}
		require.NoError(t, l.Append(Entry{Record: r}))
	}

	var seen []string
	drained, err := l.Drain(func(e Entry) error {
		seen = append(seen, e.Record.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, drained)
	assert.Len(t, seen, 3)

	depth, err := l.Depth()
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestDrainStopsOnFirstFailureAndRetainsRemainder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overflow.ndjson")
	l, err := New(path, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		r := &types.Record{ID: "mem_" + string(rune('a'+i)) + "_aaaaaaaa"}
		require.NoError(t, l.Append(Entry{Record: r}))
	}

	calls := 0
	_, err = l.Drain(func(e Entry) error {
		calls++
		if calls == 2 {
			return assertErr
		}
		return nil
	})
	require.Error(t, err)

	depth, err := l.Depth()
	require.NoError(t, err)
	assert.Equal(t, 2, depth)
}

func TestEncryptedLogRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overflow.ndjson")
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	l, err := New(path, key)
	require.NoError(t, err)

	r := &types.Record{ID: "mem_1_aaaaaaaa", Content: "secret content"}
	require.NoError(t, l.Append(Entry{Record: r}))

	var got *types.Record
	_, err = l.Drain(func(e Entry) error {
		got = e.Record
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "secret content", got.Content)
}

var assertErr = &drainTestError{}

type drainTestError struct{}

func (*drainTestError) Error() string { return "injected drain failure" }
