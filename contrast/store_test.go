package contrast

import (
	"sync"
	"testing"
	"time"
)

// TestScreenStoreInterface verifies at compile time that both
// implementations satisfy ScreenStore.
func TestScreenStoreInterface(t *testing.T) {
	var _ ScreenStore = (*InMemoryScreenStore)(nil)
	var _ ScreenStore = (*PostgresScreenStore)(nil)
}

// TestInMemoryScreenStoreAdd verifies Add sets timestamps and the screen is
// retrievable.
func TestInMemoryScreenStoreAdd(t *testing.T) {
	store := NewInMemoryScreenStore()

	screen := &Screen{
		ID:         "test-1",
		Name:       "Excludes Zero",
		Expression: `lower > 0.0 || upper < 0.0`,
		Active:     true,
	}

	if err := store.Add(screen); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	retrieved, err := store.Get("test-1")
	if err != nil {
		t.Fatalf("Get() failed after Add(): %v", err)
	}
	if retrieved.Name != screen.Name {
		t.Errorf("Retrieved screen Name = %s, want %s", retrieved.Name, screen.Name)
	}
	if retrieved.CreatedAt.IsZero() || retrieved.UpdatedAt.IsZero() {
		t.Error("Add() should set CreatedAt and UpdatedAt")
	}
}

// TestInMemoryScreenStoreAddDuplicate verifies duplicate IDs return an
// error and the original survives.
func TestInMemoryScreenStoreAddDuplicate(t *testing.T) {
	store := NewInMemoryScreenStore()

	first := &Screen{ID: "dup", Name: "First", Expression: `estimate > 0.0`, Active: true}
	if err := store.Add(first); err != nil {
		t.Fatalf("First Add() should succeed: %v", err)
	}

	second := &Screen{ID: "dup", Name: "Second", Expression: `estimate < 0.0`, Active: true}
	if err := store.Add(second); err == nil {
		t.Fatal("Add() with duplicate ID should return error")
	}

	retrieved, err := store.Get("dup")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if retrieved.Name != "First" {
		t.Errorf("Screen should not have been overwritten, Name = %s", retrieved.Name)
	}
}

// TestInMemoryScreenStoreGetMissing verifies missing IDs return an error.
func TestInMemoryScreenStoreGetMissing(t *testing.T) {
	store := NewInMemoryScreenStore()
	if _, err := store.Get("missing"); err == nil {
		t.Error("Get() for missing ID should return error")
	}
}

// TestInMemoryScreenStoreListActive verifies only active screens are
// listed.
func TestInMemoryScreenStoreListActive(t *testing.T) {
	store := NewInMemoryScreenStore()

	screens := []*Screen{
		{ID: "s1", Name: "On", Expression: `estimate > 0.0`, Active: true},
		{ID: "s2", Name: "Off", Expression: `estimate < 0.0`, Active: false},
		{ID: "s3", Name: "On Too", Expression: `width < 5.0`, Active: true},
	}
	for _, screen := range screens {
		if err := store.Add(screen); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
	}

	active, err := store.ListActive()
	if err != nil {
		t.Fatalf("ListActive() failed: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("got %d active screens, want 2", len(active))
	}
	for _, screen := range active {
		if !screen.Active {
			t.Errorf("inactive screen %s in ListActive()", screen.ID)
		}
	}
}

// TestInMemoryScreenStoreUpdate verifies Update preserves CreatedAt and
// refreshes UpdatedAt.
func TestInMemoryScreenStoreUpdate(t *testing.T) {
	store := NewInMemoryScreenStore()

	screen := &Screen{ID: "u1", Name: "Before", Expression: `estimate > 0.0`, Active: true}
	if err := store.Add(screen); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	createdAt := screen.CreatedAt

	time.Sleep(time.Millisecond)

	updated := &Screen{ID: "u1", Name: "After", Expression: `estimate < 0.0`, Active: false}
	if err := store.Update(updated); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	retrieved, err := store.Get("u1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if retrieved.Name != "After" {
		t.Errorf("Name = %s, want After", retrieved.Name)
	}
	if !retrieved.CreatedAt.Equal(createdAt) {
		t.Error("Update() should preserve CreatedAt")
	}
	if !retrieved.UpdatedAt.After(createdAt) {
		t.Error("Update() should refresh UpdatedAt")
	}
}

// TestInMemoryScreenStoreDelete verifies Delete removes the screen and a
// second delete fails.
func TestInMemoryScreenStoreDelete(t *testing.T) {
	store := NewInMemoryScreenStore()

	screen := &Screen{ID: "d1", Name: "Doomed", Expression: `estimate > 0.0`, Active: true}
	if err := store.Add(screen); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	if err := store.Delete("d1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := store.Get("d1"); err == nil {
		t.Error("Get() after Delete() should fail")
	}
	if err := store.Delete("d1"); err == nil {
		t.Error("second Delete() should fail")
	}
}

// TestInMemoryScreenStoreConcurrency verifies the store under concurrent
// mixed access.
func TestInMemoryScreenStoreConcurrency(t *testing.T) {
	store := NewInMemoryScreenStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := "concurrent-" + string(rune('a'+n))
			screen := &Screen{ID: id, Name: id, Expression: `estimate > 0.0`, Active: true}
			if err := store.Add(screen); err != nil {
				t.Errorf("Add(%s) failed: %v", id, err)
				return
			}
			if _, err := store.Get(id); err != nil {
				t.Errorf("Get(%s) failed: %v", id, err)
			}
			if _, err := store.ListActive(); err != nil {
				t.Errorf("ListActive() failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	active, err := store.ListActive()
	if err != nil {
		t.Fatalf("ListActive() failed: %v", err)
	}
	if len(active) != 20 {
		t.Errorf("got %d screens, want 20", len(active))
	}
}
