package stream

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra/moderation/internal/domain"
)

func TestMemoryBackendPutGetClear(t *testing.T) {
	b := NewMemoryBackend()
	key := uuid.New()

	_, ok := b.Get(key, userStateName)
	assert.False(t, ok)

	require.NoError(t, b.Put(key, userStateName, &userState{Velocity: 1.5}))
	v, ok := b.Get(key, userStateName)
	require.True(t, ok)
	assert.Equal(t, 1.5, v.(*userState).Velocity)
	assert.Len(t, b.Keys(), 1)

	require.NoError(t, b.Clear(key, userStateName))
	_, ok = b.Get(key, userStateName)
	assert.False(t, ok)
	assert.Empty(t, b.Keys())
}

func TestCheckpointIsolatesLaterWrites(t *testing.T) {
	b := NewMemoryBackend()
	key := uuid.New()
	require.NoError(t, b.Put(key, userStateName, &userState{Velocity: 1.0}))

	id, err := b.Checkpoint()
	require.NoError(t, err)

	// Mutate after the checkpoint.
	require.NoError(t, b.Put(key, userStateName, &userState{Velocity: 9.0}))
	other := uuid.New()
	require.NoError(t, b.Put(other, userStateName, &userState{}))

	require.NoError(t, b.Restore(id))

	v, ok := b.Get(key, userStateName)
	require.True(t, ok)
	assert.Equal(t, 1.0, v.(*userState).Velocity)
	_, ok = b.Get(other, userStateName)
	assert.False(t, ok)
}

func TestCheckpointDeepCopiesState(t *testing.T) {
	b := NewMemoryBackend()
	key := uuid.New()
	state := &userState{RecentHashes: []string{"aaaa"}}
	require.NoError(t, b.Put(key, userStateName, state))

	id, err := b.Checkpoint()
	require.NoError(t, err)

	// Mutating the live value must not reach into the snapshot.
	state.RecentHashes[0] = "bbbb"
	state.Velocity = 5

	require.NoError(t, b.Restore(id))
	v, _ := b.Get(key, userStateName)
	restored := v.(*userState)
	assert.Equal(t, []string{"aaaa"}, restored.RecentHashes)
	assert.Equal(t, 0.0, restored.Velocity)
}

func TestRestoreUnknownCheckpoint(t *testing.T) {
	b := NewMemoryBackend()

	err := b.Restore("ckpt-missing")

	require.Error(t, err)
	assert.Equal(t, domain.ErrStateUnavailable, domain.KindOf(err))
}

func TestRestoreIsRepeatable(t *testing.T) {
	b := NewMemoryBackend()
	key := uuid.New()
	require.NoError(t, b.Put(key, userStateName, &userState{Velocity: 2.0}))

	id, err := b.Checkpoint()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Put(key, userStateName, &userState{Velocity: 99}))
		require.NoError(t, b.Restore(id))
		v, _ := b.Get(key, userStateName)
		assert.Equal(t, 2.0, v.(*userState).Velocity)
	}
}

func TestUserStateCloneIsDeep(t *testing.T) {
	now := time.Now()
	orig := &userState{
		Timestamps:   []time.Time{now},
		RecentHashes: []string{"x"},
		LastMessage:  now,
		Velocity:     1.0,
		Session:      &Window{Start: now, End: now.Add(time.Minute)},
	}

	cp := orig.Clone().(*userState)
	cp.Timestamps[0] = now.Add(time.Hour)
	cp.RecentHashes[0] = "y"
	cp.Session.End = now.Add(2 * time.Hour)

	assert.Equal(t, now, orig.Timestamps[0])
	assert.Equal(t, "x", orig.RecentHashes[0])
	assert.Equal(t, now.Add(time.Minute), orig.Session.End)
}
