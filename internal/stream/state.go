package stream

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentra/moderation/internal/domain"
)

// StateValue is anything stored in the keyed state backend. Clone must
// return a deep copy so checkpoints capture a consistent cut.
type StateValue interface {
	Clone() StateValue
}

// Backend is the keyed state store behind the stream processor. The
// backend is single-writer per key; serialization is the processor's job.
type Backend interface {
	Get(key uuid.UUID, name string) (StateValue, bool)
	Put(key uuid.UUID, name string, value StateValue) error
	Clear(key uuid.UUID, name string) error
	Keys() []uuid.UUID

	Checkpoint() (string, error)
	Restore(id string) error
}

// MemoryBackend is the in-process Backend. Checkpoints are deep copies of
// the keyed maps, taken under the lock, so a restore replays exactly.
type MemoryBackend struct {
	mu    sync.RWMutex
	state map[uuid.UUID]map[string]StateValue

	checkpoints map[string]map[uuid.UUID]map[string]StateValue
	nextID      int
}

// NewMemoryBackend creates an empty state backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		state:       make(map[uuid.UUID]map[string]StateValue),
		checkpoints: make(map[string]map[uuid.UUID]map[string]StateValue),
	}
}

// Get returns the named value for a key.
func (b *MemoryBackend) Get(key uuid.UUID, name string) (StateValue, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.state[key][name]
	return v, ok
}

// Put stores the named value for a key.
func (b *MemoryBackend) Put(key uuid.UUID, name string, value StateValue) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state[key] == nil {
		b.state[key] = make(map[string]StateValue)
	}
	b.state[key][name] = value
	return nil
}

// Clear removes the named value for a key, dropping the key entirely when
// its last value goes.
func (b *MemoryBackend) Clear(key uuid.UUID, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if kv, ok := b.state[key]; ok {
		delete(kv, name)
		if len(kv) == 0 {
			delete(b.state, key)
		}
	}
	return nil
}

// Keys returns all keys with live state.
func (b *MemoryBackend) Keys() []uuid.UUID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]uuid.UUID, 0, len(b.state))
	for k := range b.state {
		keys = append(keys, k)
	}
	return keys
}

// Checkpoint snapshots the entire backend and returns the snapshot id.
func (b *MemoryBackend) Checkpoint() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := fmt.Sprintf("ckpt-%d-%d", b.nextID, time.Now().UnixNano())
	b.checkpoints[id] = deepCopy(b.state)
	return id, nil
}

// Restore atomically replaces the live state with a snapshot. The snapshot
// itself is kept, so a restore can run more than once.
func (b *MemoryBackend) Restore(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap, ok := b.checkpoints[id]
	if !ok {
		return domain.NewStateUnavailable(fmt.Sprintf("unknown checkpoint %q", id), nil)
	}
	b.state = deepCopy(snap)
	return nil
}

// DropCheckpoint discards a snapshot.
func (b *MemoryBackend) DropCheckpoint(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.checkpoints, id)
}

func deepCopy(src map[uuid.UUID]map[string]StateValue) map[uuid.UUID]map[string]StateValue {
	dst := make(map[uuid.UUID]map[string]StateValue, len(src))
	for key, kv := range src {
		inner := make(map[string]StateValue, len(kv))
		for name, v := range kv {
			inner[name] = v.Clone()
		}
		dst[key] = inner
	}
	return dst
}
