// Package projection derives the displayed messages and profiles from a raw
// object collection. Every function is pure over its inputs.
package projection

import (
	"sort"
	"strings"

	"github.com/designftw/graffiti-chat/internal/services/chat/object"
)

// MaxMessages caps the number of messages shown.
const MaxMessages = 10

// Filter selects the conversation scope.
type Filter struct {
	// Private restricts the view to the 1:1 thread with Recipient.
	Private   bool
	Recipient string
}

// Messages returns the displayable notes in raws, newest first, at most
// MaxMessages of them.
//
// Notes whose published time cannot be parsed sort after every dated note and
// keep their arrival order among themselves.
func Messages(raws []object.Raw, filter Filter) []object.Note {
	notes := make([]object.Note, 0, len(raws))
	for _, raw := range raws {
		note, ok := object.ParseNote(raw)
		if !ok {
			continue
		}
		if filter.Private && !InPrivateThread(note, filter.Recipient) {
			continue
		}
		notes = append(notes, note)
	}

	sort.SliceStable(notes, func(i, j int) bool {
		return newer(notes[i], notes[j])
	})

	if len(notes) > MaxMessages {
		notes = notes[:MaxMessages]
	}
	return notes
}

// InPrivateThread reports whether note belongs to the 1:1 thread with
// recipient: addressed to exactly one actor, and either sent to or sent by
// recipient. No note matches an empty recipient, so non-string bto entries
// and missing actors (both read as "") never match.
func InPrivateThread(note object.Note, recipient string) bool {
	if recipient == "" || len(note.Bto) != 1 {
		return false
	}
	return note.Bto[0] == recipient || note.Actor == recipient
}

func newer(a, b object.Note) bool {
	switch {
	case a.PublishedValid && b.PublishedValid:
		return a.Published.After(b.Published)
	case a.PublishedValid:
		return true
	default:
		return false
	}
}

// Unread reports whether the view has something the user has not seen.
func Unread(notes []object.Note, hasNewMessages bool) bool {
	if hasNewMessages {
		return true
	}
	for _, note := range notes {
		if !note.Read {
			return true
		}
	}
	return false
}

// FilterUsernames returns the handles in index that start with prefix,
// keeping index order.
func FilterUsernames(index []string, prefix string) []string {
	out := make([]string, 0, len(index))
	for _, handle := range index {
		if strings.HasPrefix(handle, prefix) {
			out = append(out, handle)
		}
	}
	return out
}
