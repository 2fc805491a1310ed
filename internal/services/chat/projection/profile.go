package projection

import "github.com/designftw/graffiti-chat/internal/services/chat/object"

// Profile folds raws into the most recently published profile. Ties keep the
// first profile encountered; an undated profile only wins when no dated one
// exists.
func Profile(raws []object.Raw) (object.Profile, bool) {
	var (
		best  object.Profile
		found bool
	)
	for _, raw := range raws {
		candidate, ok := object.ParseProfile(raw)
		if !ok {
			continue
		}
		if !found || laterProfile(candidate, best) {
			best = candidate
			found = true
		}
	}
	return best, found
}

// ProfileFor is Profile restricted to objects authored by actor.
func ProfileFor(raws []object.Raw, actor string) (object.Profile, bool) {
	owned := make([]object.Raw, 0, len(raws))
	for _, raw := range raws {
		if raw.Actor() == actor {
			owned = append(owned, raw)
		}
	}
	return Profile(owned)
}

func laterProfile(candidate, current object.Profile) bool {
	switch {
	case candidate.PublishedValid && current.PublishedValid:
		return candidate.Published.After(current.Published)
	case candidate.PublishedValid:
		return true
	default:
		return false
	}
}
