package object

import "testing"

func TestParseClassifiesVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  Raw
		want Kind
	}{
		{"note", Raw{FieldType: TypeNote, FieldContent: "hi"}, KindNote},
		{"empty note content is still a string", Raw{FieldType: TypeNote, FieldContent: ""}, KindNote},
		{"note without content", Raw{FieldType: TypeNote}, KindUnknown},
		{"note with numeric content", Raw{FieldType: TypeNote, FieldContent: 3.0}, KindUnknown},
		{"profile", Raw{FieldType: TypeProfile, FieldName: "Alice"}, KindProfile},
		{"profile without name", Raw{FieldType: TypeProfile}, KindUnknown},
		{"other activity", Raw{FieldType: "Like", FieldContent: "hi"}, KindUnknown},
		{"lowercase type", Raw{FieldType: "note", FieldContent: "hi"}, KindUnknown},
		{"nil", nil, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Parse(tt.raw).Kind; got != tt.want {
				t.Fatalf("kind = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseNoteFields(t *testing.T) {
	raw := Raw{
		FieldID:        "n1",
		FieldType:      TypeNote,
		FieldContent:   "hello",
		FieldActor:     "actor:a",
		FieldPublished: "2024-01-01T00:00:00Z",
		FieldBto:       []any{"actor:b"},
		FieldContext:   []any{"actor:a", "actor:b"},
		FieldRead:      true,
	}
	note, ok := ParseNote(raw)
	if !ok {
		t.Fatal("expected note")
	}
	if note.ID != "n1" || note.Actor != "actor:a" || note.Content != "hello" {
		t.Fatalf("note = %+v", note)
	}
	if !note.PublishedValid || note.Published.Year() != 2024 {
		t.Fatalf("published = %v (%v)", note.Published, note.PublishedValid)
	}
	if !note.IsPrivate() || note.Bto[0] != "actor:b" {
		t.Fatalf("bto = %#v", note.Bto)
	}
	if !note.Read {
		t.Fatal("expected read flag")
	}

	note.Raw[FieldContent] = "mutated"
	if raw[FieldContent] != "hello" {
		t.Fatal("note raw must not alias the source object")
	}
}
