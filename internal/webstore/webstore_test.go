package webstore

import (
	"os"
	"path/filepath"
	"testing"
)

func openTestArea(t *testing.T, persistent bool) *Area {
	t.Helper()
	st := NewState(t.TempDir())
	area, err := st.Open("test", persistent)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { area.Close() })
	return area
}

func TestArea_SetGetRemove(t *testing.T) {
	area := openTestArea(t, false)

	if err := area.SetItem("k", "v1"); err != nil {
		t.Fatalf("SetItem: %v", err)
	}
	got, ok, err := area.GetItem("k")
	if err != nil || !ok || got != "v1" {
		t.Fatalf("GetItem = %q, %v, %v", got, ok, err)
	}

	// Upsert overwrites.
	if err := area.SetItem("k", "v2"); err != nil {
		t.Fatalf("SetItem: %v", err)
	}
	got, _, _ = area.GetItem("k")
	if got != "v2" {
		t.Errorf("after upsert GetItem = %q, want v2", got)
	}

	if err := area.RemoveItem("k"); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if _, ok, _ := area.GetItem("k"); ok {
		t.Error("GetItem after remove should miss")
	}
}

func TestArea_LengthKeyOrder(t *testing.T) {
	area := openTestArea(t, false)

	for _, kv := range [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}} {
		if err := area.SetItem(kv[0], kv[1]); err != nil {
			t.Fatalf("SetItem: %v", err)
		}
	}
	n, err := area.Length()
	if err != nil || n != 3 {
		t.Fatalf("Length = %d, %v", n, err)
	}
	key, ok, err := area.Key(1)
	if err != nil || !ok {
		t.Fatalf("Key(1) = %v, %v", ok, err)
	}
	if key != "b" {
		t.Errorf("Key(1) = %q, want b (insertion order)", key)
	}
	if _, ok, _ := area.Key(3); ok {
		t.Error("Key out of range should miss")
	}
}

func TestArea_Clear(t *testing.T) {
	area := openTestArea(t, false)
	area.SetItem("x", "1")
	area.SetItem("y", "2")

	if err := area.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n, _ := area.Length(); n != 0 {
		t.Errorf("Length after Clear = %d", n)
	}
}

func TestState_PersistentSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	st1 := NewState(dir)
	area, err := st1.Open("mydb", true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := area.SetItem("k", "persisted"); err != nil {
		t.Fatalf("SetItem: %v", err)
	}
	area.Close()

	if _, err := os.Stat(filepath.Join(dir, "storage", "mydb.sqlite3")); err != nil {
		t.Fatalf("expected database file on disk: %v", err)
	}

	st2 := NewState(dir)
	area2, err := st2.Open("mydb", true)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer area2.Close()
	got, ok, err := area2.GetItem("k")
	if err != nil || !ok || got != "persisted" {
		t.Errorf("after reopen GetItem = %q, %v, %v", got, ok, err)
	}
}

func TestValidateAreaID(t *testing.T) {
	for _, id := range []string{"default", "my-db", "a_b.c"} {
		if err := ValidateAreaID(id); err != nil {
			t.Errorf("ValidateAreaID(%q) = %v, want nil", id, err)
		}
	}
	long := make([]byte, 129)
	for i := range long {
		long[i] = 'a'
	}
	for _, id := range []string{"", "../escape", "a/b", "a\\b", "nul\x00l", string(long)} {
		if err := ValidateAreaID(id); err == nil {
			t.Errorf("ValidateAreaID(%q) should fail", id)
		}
	}
}

func TestSessionAreaUsesOneConnection(t *testing.T) {
	area := openTestArea(t, false)

	// Every pooled connection would get its own :memory: database;
	// the pool must be pinned to one.
	if got := area.db.Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("MaxOpenConnections = %d, want 1", got)
	}

	for i := 0; i < 20; i++ {
		if err := area.SetItem(string(rune('a'+i)), "v"); err != nil {
			t.Fatalf("SetItem: %v", err)
		}
	}
	n, err := area.Length()
	if err != nil {
		t.Fatalf("Length: %v", err)
	}
	if n != 20 {
		t.Errorf("Length = %d, want 20; writes landed in another connection's database", n)
	}
}
