package projection

import (
	"fmt"
	"testing"
	"time"

	"github.com/designftw/graffiti-chat/internal/services/chat/object"
)

func note(id, actor, content, published string) object.Raw {
	return object.Raw{
		object.FieldID:        id,
		object.FieldType:      object.TypeNote,
		object.FieldActor:     actor,
		object.FieldContent:   content,
		object.FieldPublished: published,
	}
}

func privateNote(id, actor, to, content, published string) object.Raw {
	raw := note(id, actor, content, published)
	raw[object.FieldBto] = []any{to}
	return raw
}

func contents(notes []object.Note) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = n.Content
	}
	return out
}

func TestMessagesPublicOrdersNewestFirst(t *testing.T) {
	t.Parallel()
	raws := []object.Raw{
		note("1", "A", "hi", "2024-01-01T00:00:00Z"),
		note("2", "B", "yo", "2024-01-02T00:00:00Z"),
	}
	got := contents(Messages(raws, Filter{}))
	if len(got) != 2 || got[0] != "yo" || got[1] != "hi" {
		t.Fatalf("messages = %q, want [yo hi]", got)
	}
}

func TestMessagesEmptyCollection(t *testing.T) {
	t.Parallel()
	if got := Messages(nil, Filter{}); len(got) != 0 {
		t.Fatalf("messages = %v, want empty", got)
	}
}

func TestMessagesDropsInvalidObjects(t *testing.T) {
	t.Parallel()
	raws := []object.Raw{
		{object.FieldID: "1", object.FieldType: "Note"},
		{object.FieldID: "2", object.FieldType: "Note", object.FieldContent: 12.0},
		{object.FieldID: "3", object.FieldType: "Profile", object.FieldName: "x"},
		{object.FieldID: "4", object.FieldContent: "missing type"},
		note("5", "A", "ok", "2024-01-01T00:00:00Z"),
	}
	got := Messages(raws, Filter{})
	if len(got) != 1 || got[0].ID != "5" {
		t.Fatalf("messages = %+v, want only id 5", got)
	}
}

func TestMessagesTruncatesToMostRecentTen(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	raws := make([]object.Raw, 0, 25)
	for i := 0; i < 25; i++ {
		published := object.FormatTime(base.Add(time.Duration(i) * time.Minute))
		raws = append(raws, note(fmt.Sprint(i), "A", fmt.Sprint(i), published))
	}
	got := Messages(raws, Filter{})
	if len(got) != MaxMessages {
		t.Fatalf("len = %d, want %d", len(got), MaxMessages)
	}
	if got[0].Content != "24" || got[MaxMessages-1].Content != "15" {
		t.Fatalf("messages = %q", contents(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Published.After(got[i-1].Published) {
			t.Fatalf("order violated at %d: %v after %v", i, got[i].Published, got[i-1].Published)
		}
	}
}

func TestMessagesUnparsablePublishedSortsLast(t *testing.T) {
	t.Parallel()
	raws := []object.Raw{
		note("bad1", "A", "bad1", "not a date"),
		note("old", "A", "old", "2024-01-01T00:00:00Z"),
		note("bad2", "A", "bad2", ""),
		note("new", "A", "new", "2024-02-01T00:00:00Z"),
	}
	got := contents(Messages(raws, Filter{}))
	want := []string{"new", "old", "bad1", "bad2"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("messages = %q, want %q", got, want)
	}
}

func TestMessagesPrivateExcludesNonSingleBto(t *testing.T) {
	t.Parallel()
	raws := []object.Raw{
		note("public", "B", "public", "2024-01-01T00:00:00Z"),
		func() object.Raw {
			r := note("empty", "B", "empty", "2024-01-01T00:00:00Z")
			r[object.FieldBto] = []any{}
			return r
		}(),
		func() object.Raw {
			r := note("two", "B", "two", "2024-01-01T00:00:00Z")
			r[object.FieldBto] = []any{"A", "C"}
			return r
		}(),
		func() object.Raw {
			r := note("scalar", "B", "scalar", "2024-01-01T00:00:00Z")
			r[object.FieldBto] = "A"
			return r
		}(),
	}
	if got := Messages(raws, Filter{Private: true, Recipient: "B"}); len(got) != 0 {
		t.Fatalf("messages = %q, want none", contents(got))
	}
}

func TestMessagesPrivateIsSymmetric(t *testing.T) {
	t.Parallel()
	raws := []object.Raw{privateNote("1", "A", "B", "hey", "2024-01-01T00:00:00Z")}

	fromA := Messages(raws, Filter{Private: true, Recipient: "B"})
	fromB := Messages(raws, Filter{Private: true, Recipient: "A"})
	if len(fromA) != 1 || len(fromB) != 1 {
		t.Fatalf("A view = %d, B view = %d, want 1 each", len(fromA), len(fromB))
	}
}

func TestMessagesPrivateFiltersOtherThreads(t *testing.T) {
	t.Parallel()
	raws := []object.Raw{
		privateNote("1", "A", "B", "to B", "2024-01-01T00:00:00Z"),
		privateNote("2", "C", "A", "from C", "2024-01-02T00:00:00Z"),
		privateNote("3", "B", "A", "from B", "2024-01-03T00:00:00Z"),
	}
	got := contents(Messages(raws, Filter{Private: true, Recipient: "B"}))
	if fmt.Sprint(got) != fmt.Sprint([]string{"from B", "to B"}) {
		t.Fatalf("messages = %q", got)
	}
}

func TestMessagesPrivateWithoutRecipientShowsNothing(t *testing.T) {
	t.Parallel()
	nonString := note("1", "actor:a", "number", "2024-01-01T00:00:00Z")
	nonString[object.FieldBto] = []any{7.0}
	emptyString := note("2", "actor:a", "empty", "2024-01-02T00:00:00Z")
	emptyString[object.FieldBto] = []any{""}
	noActor := privateNote("3", "", "actor:b", "anonymous", "2024-01-03T00:00:00Z")
	delete(noActor, object.FieldActor)
	raws := []object.Raw{nonString, emptyString, noActor}

	if got := contents(Messages(raws, Filter{Private: true})); len(got) != 0 {
		t.Fatalf("messages = %q, want none for empty recipient", got)
	}
	if got := contents(Messages(raws, Filter{Private: true, Recipient: "actor:b"})); fmt.Sprint(got) != "[anonymous]" {
		t.Fatalf("messages = %q, want [anonymous]", got)
	}
}

func TestMessagesIgnoresDeliveryOrder(t *testing.T) {
	t.Parallel()
	a := note("1", "A", "first", "2024-01-01T00:00:00Z")
	b := note("2", "A", "second", "2024-01-02T00:00:00Z")
	forward := contents(Messages([]object.Raw{a, b}, Filter{}))
	reverse := contents(Messages([]object.Raw{b, a}, Filter{}))
	if fmt.Sprint(forward) != fmt.Sprint(reverse) {
		t.Fatalf("forward = %q, reverse = %q", forward, reverse)
	}
}

func TestUnread(t *testing.T) {
	t.Parallel()
	read := object.Note{Read: true}
	unread := object.Note{}
	if Unread([]object.Note{read}, false) {
		t.Fatal("expected all-read view to be seen")
	}
	if !Unread([]object.Note{read, unread}, false) {
		t.Fatal("expected unread note to count")
	}
	if !Unread(nil, true) {
		t.Fatal("expected new-message flag to count")
	}
}

func TestFilterUsernames(t *testing.T) {
	t.Parallel()
	index := []string{"alice", "bob", "albert"}
	got := FilterUsernames(index, "al")
	if fmt.Sprint(got) != fmt.Sprint([]string{"alice", "albert"}) {
		t.Fatalf("filtered = %q", got)
	}
	if got := FilterUsernames(index, ""); len(got) != 3 {
		t.Fatalf("empty prefix = %q, want all", got)
	}
}
