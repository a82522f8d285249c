// Package store persists per-conversation knowledge snapshots in their
// flat key-value form. The engine only depends on the SnapshotStore
// interface; the core is indifferent to the storage technology.
package store

import "context"

// SnapshotStore saves and loads flat knowledge snapshots keyed by
// conversation id.
type SnapshotStore interface {
	// Save replaces the stored snapshot for a conversation.
	Save(ctx context.Context, conversationID string, kv map[string]string) error

	// Load returns the stored snapshot, or ok=false when none exists.
	Load(ctx context.Context, conversationID string) (kv map[string]string, ok bool, err error)

	// Delete discards a conversation's snapshot.
	Delete(ctx context.Context, conversationID string) error

	// Close releases underlying resources.
	Close() error
}

// MemoryStore is an in-process SnapshotStore for tests and ephemeral
// sessions.
type MemoryStore struct {
	snapshots map[string]map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]map[string]string)}
}

// Save implements SnapshotStore.
func (m *MemoryStore) Save(_ context.Context, conversationID string, kv map[string]string) error {
	cp := make(map[string]string, len(kv))
	for k, v := range kv {
		cp[k] = v
	}
	m.snapshots[conversationID] = cp
	return nil
}

// Load implements SnapshotStore.
func (m *MemoryStore) Load(_ context.Context, conversationID string) (map[string]string, bool, error) {
	kv, ok := m.snapshots[conversationID]
	if !ok {
		return nil, false, nil
	}
	cp := make(map[string]string, len(kv))
	for k, v := range kv {
		cp[k] = v
	}
	return cp, true, nil
}

// Delete implements SnapshotStore.
func (m *MemoryStore) Delete(_ context.Context, conversationID string) error {
	delete(m.snapshots, conversationID)
	return nil
}

// Close implements SnapshotStore.
func (m *MemoryStore) Close() error { return nil }
