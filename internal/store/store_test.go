package store

import (
	"context"
	"path/filepath"
	"testing"
)

// Both implementations must satisfy the same contract; run the suite
// against each.
func stores(t *testing.T) map[string]SnapshotStore {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("sqlite store open failed: %v", err)
	}
	return map[string]SnapshotStore{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func sample() map[string]string {
	return map[string]string{
		"schema_version":                 "2",
		"dim.system.business_type":       "bakery",
		"dim.system.assessed_components": "3",
		"history.000001":                 "explain_process:1",
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			ctx := context.Background()

			if err := s.Save(ctx, "conv-1", sample()); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			kv, ok, err := s.Load(ctx, "conv-1")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if !ok {
				t.Fatal("saved snapshot not found")
			}
			want := sample()
			if len(kv) != len(want) {
				t.Fatalf("loaded %d keys, want %d", len(kv), len(want))
			}
			for k, v := range want {
				if kv[k] != v {
					t.Errorf("kv[%s] = %q, want %q", k, kv[k], v)
				}
			}
		})
	}
}

func TestLoadMissingConversation(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			_, ok, err := s.Load(context.Background(), "never-saved")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if ok {
				t.Error("missing conversation reported as present")
			}
		})
	}
}

func TestSaveReplacesPreviousSnapshot(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			ctx := context.Background()

			if err := s.Save(ctx, "conv-1", sample()); err != nil {
				t.Fatalf("first Save failed: %v", err)
			}
			// The replacement drops keys, it does not merge.
			if err := s.Save(ctx, "conv-1", map[string]string{"schema_version": "2"}); err != nil {
				t.Fatalf("second Save failed: %v", err)
			}

			kv, ok, err := s.Load(ctx, "conv-1")
			if err != nil || !ok {
				t.Fatalf("Load failed: ok=%v err=%v", ok, err)
			}
			if len(kv) != 1 {
				t.Errorf("stale keys survived replacement: %v", kv)
			}
		})
	}
}

func TestDeleteRemovesSnapshot(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			ctx := context.Background()

			if err := s.Save(ctx, "conv-1", sample()); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			if err := s.Delete(ctx, "conv-1"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if _, ok, _ := s.Load(ctx, "conv-1"); ok {
				t.Error("snapshot survived delete")
			}
			// Deleting again is a no-op, not an error.
			if err := s.Delete(ctx, "conv-1"); err != nil {
				t.Errorf("repeat Delete failed: %v", err)
			}
		})
	}
}

func TestConversationsAreIsolated(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			ctx := context.Background()

			if err := s.Save(ctx, "conv-a", map[string]string{"dim.system.business_type": "bakery"}); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			if err := s.Save(ctx, "conv-b", map[string]string{"dim.system.business_type": "garage"}); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			if err := s.Delete(ctx, "conv-a"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}

			kv, ok, err := s.Load(ctx, "conv-b")
			if err != nil || !ok {
				t.Fatalf("Load failed: ok=%v err=%v", ok, err)
			}
			if kv["dim.system.business_type"] != "garage" {
				t.Errorf("conv-b state = %v, want garage", kv)
			}
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	in := map[string]string{"k": "original"}
	if err := s.Save(ctx, "conv-1", in); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	in["k"] = "mutated-after-save"

	kv, _, _ := s.Load(ctx, "conv-1")
	if kv["k"] != "original" {
		t.Error("Save kept a reference to the caller's map")
	}

	kv["k"] = "mutated-after-load"
	again, _, _ := s.Load(ctx, "conv-1")
	if again["k"] != "original" {
		t.Error("Load handed out the internal map")
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := first.Save(ctx, "conv-1", sample()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()

	kv, ok, err := second.Load(ctx, "conv-1")
	if err != nil || !ok {
		t.Fatalf("Load after reopen failed: ok=%v err=%v", ok, err)
	}
	if kv["dim.system.business_type"] != "bakery" {
		t.Errorf("persisted value = %q, want bakery", kv["dim.system.business_type"])
	}
}
