package core

import "testing"

func TestResourceTable_PushGetRemove(t *testing.T) {
	rt := NewResourceTable[string]()

	rid := rt.Push("hello")
	got, err := rt.Get(rid, "test")
	if err != nil {
		t.Fatalf("Get after Push: %v", err)
	}
	if got != "hello" {
		t.Errorf("Get = %q, want hello", got)
	}

	removed, ok := rt.Remove(rid)
	if !ok || removed != "hello" {
		t.Fatalf("Remove = %q, %v", removed, ok)
	}
	if _, err := rt.Get(rid, "test"); err == nil {
		t.Error("Get after Remove should fail")
	} else if KindOf(err) != KindResourceNotFound {
		t.Errorf("kind after Remove = %v, want %v", KindOf(err), KindResourceNotFound)
	}
}

func TestResourceTable_GetMissingIsNotFound(t *testing.T) {
	rt := NewResourceTable[int]()
	_, err := rt.Get(42, "lookup")
	if err == nil {
		t.Fatal("expected error for unknown rid")
	}
	if KindOf(err) != KindResourceNotFound {
		t.Errorf("kind = %v, want %v", KindOf(err), KindResourceNotFound)
	}
}

func TestResourceTable_DistinctRIDs(t *testing.T) {
	rt := NewResourceTable[int]()
	seen := map[RID]bool{}
	for i := 0; i < 100; i++ {
		rid := rt.Push(i)
		if seen[rid] {
			t.Fatalf("rid %d handed out twice", rid)
		}
		seen[rid] = true
	}
	if rt.Len() != 100 {
		t.Errorf("Len = %d, want 100", rt.Len())
	}
}

func TestResourceTable_RemoveDoesNotDisturbOthers(t *testing.T) {
	rt := NewResourceTable[int]()
	a := rt.Push(1)
	b := rt.Push(2)
	c := rt.Push(3)

	rt.Remove(b)

	for _, tc := range []struct {
		rid  RID
		want int
	}{{a, 1}, {c, 3}} {
		got, err := rt.Get(tc.rid, "test")
		if err != nil || got != tc.want {
			t.Errorf("Get(%d) = %d, %v; want %d", tc.rid, got, err, tc.want)
		}
	}
	if rt.Contains(b) {
		t.Error("removed rid still present")
	}
}
