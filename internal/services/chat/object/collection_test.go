package object

import "testing"

func TestCollectionPutKeepsArrivalOrder(t *testing.T) {
	c := NewCollection()
	for _, id := range []string{"a", "b", "c"} {
		if inserted, ok := c.Put(Raw{FieldID: id}); !inserted || !ok {
			t.Fatalf("put %q: inserted=%v ok=%v", id, inserted, ok)
		}
	}
	inserted, ok := c.Put(Raw{FieldID: "a", FieldContent: "updated"})
	if inserted || !ok {
		t.Fatalf("replace: inserted=%v ok=%v", inserted, ok)
	}

	snapshot := c.Snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("len = %d, want 3", len(snapshot))
	}
	if snapshot[0].ID() != "a" || snapshot[0][FieldContent] != "updated" {
		t.Fatalf("first = %v", snapshot[0])
	}
}

func TestCollectionIgnoresObjectsWithoutID(t *testing.T) {
	c := NewCollection()
	if _, ok := c.Put(Raw{FieldType: TypeNote}); ok {
		t.Fatal("expected object without id to be ignored")
	}
	if c.Len() != 0 {
		t.Fatalf("len = %d, want 0", c.Len())
	}
}

func TestCollectionRemoveAndReset(t *testing.T) {
	c := NewCollection()
	c.Put(Raw{FieldID: "a"})
	c.Put(Raw{FieldID: "b"})

	if !c.Remove("a") {
		t.Fatal("expected remove to report presence")
	}
	if c.Remove("a") {
		t.Fatal("expected second remove to be a no-op")
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected removed object to be gone")
	}
	if got := c.Snapshot(); len(got) != 1 || got[0].ID() != "b" {
		t.Fatalf("snapshot = %v", got)
	}

	c.Reset()
	if c.Len() != 0 {
		t.Fatalf("len after reset = %d", c.Len())
	}
}

func TestCollectionSnapshotIsolation(t *testing.T) {
	c := NewCollection()
	c.Put(Raw{FieldID: "a", FieldContent: "x"})
	snapshot := c.Snapshot()
	snapshot[0][FieldContent] = "changed"
	got, _ := c.Get("a")
	if got[FieldContent] != "x" {
		t.Fatal("snapshot aliased live state")
	}
}
