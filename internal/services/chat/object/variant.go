package object

import "time"

// Kind tags the variant produced by Parse.
type Kind int

const (
	// KindUnknown marks objects no projection displays.
	KindUnknown Kind = iota
	// KindNote marks a displayable chat message.
	KindNote
	// KindProfile marks a display-name record.
	KindProfile
)

func (k Kind) String() string {
	switch k {
	case KindNote:
		return "note"
	case KindProfile:
		return "profile"
	default:
		return "unknown"
	}
}

// Note is a Raw object with type "Note" and string content.
type Note struct {
	ID      string
	Actor   string
	Content string
	// Published is zero when PublishedValid is false.
	Published      time.Time
	PublishedValid bool
	Context        []string
	// Bto is nil when the field is absent or not an array.
	Bto  []string
	Read bool
	// Raw is a private copy of the backing object used to build updates.
	Raw Raw
}

// Profile is a Raw object with type "Profile" and a string name.
type Profile struct {
	ID             string
	Actor          string
	Name           string
	Published      time.Time
	PublishedValid bool
	Raw            Raw
}

// Variant is the typed view of one Raw object.
type Variant struct {
	Kind    Kind
	Note    Note
	Profile Profile
}

// Parse classifies raw into exactly one variant.
func Parse(raw Raw) Variant {
	if note, ok := ParseNote(raw); ok {
		return Variant{Kind: KindNote, Note: note}
	}
	if profile, ok := ParseProfile(raw); ok {
		return Variant{Kind: KindProfile, Profile: profile}
	}
	return Variant{Kind: KindUnknown}
}

// ParseNote reports whether raw is a displayable message.
func ParseNote(raw Raw) (Note, bool) {
	if raw.Type() != TypeNote {
		return Note{}, false
	}
	content, ok := raw.String(FieldContent)
	if !ok {
		return Note{}, false
	}
	published, valid := raw.Published()
	context, _ := raw.Strings(FieldContext)
	bto, _ := raw.Strings(FieldBto)
	return Note{
		ID:             raw.ID(),
		Actor:          raw.Actor(),
		Content:        content,
		Published:      published,
		PublishedValid: valid,
		Context:        context,
		Bto:            bto,
		Read:           raw.Bool(FieldRead),
		Raw:            raw.Clone(),
	}, true
}

// ParseProfile reports whether raw is a profile with a name.
func ParseProfile(raw Raw) (Profile, bool) {
	if raw.Type() != TypeProfile {
		return Profile{}, false
	}
	name, ok := raw.String(FieldName)
	if !ok {
		return Profile{}, false
	}
	published, valid := raw.Published()
	return Profile{
		ID:             raw.ID(),
		Actor:          raw.Actor(),
		Name:           name,
		Published:      published,
		PublishedValid: valid,
		Raw:            raw.Clone(),
	}, true
}

// IsPrivate reports whether the note is addressed to exactly one actor.
func (n Note) IsPrivate() bool {
	return len(n.Bto) == 1
}
