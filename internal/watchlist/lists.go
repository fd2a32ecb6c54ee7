// Package watchlist manages the local watch-list and pinned list and keeps
// them in step with the server-side watch-list.
package watchlist

import (
	"slices"

	"coinboard/internal/prefs"
)

// Preference keys. Both hold JSON arrays of coin ids.
const (
	KeyWatchlist = "watchlist:v1"
	KeyPinned    = "primary:v1"
)

// Lists is the local watch-list and pinned list. Every pinned id is also a
// watched id.
type Lists struct {
	store *prefs.Store
}

// NewLists returns Lists persisted in store.
func NewLists(store *prefs.Store) *Lists {
	return &Lists{store: store}
}

// Watchlist returns the watched ids in display order.
func (l *Lists) Watchlist() []string {
	return prefs.Load(l.store, KeyWatchlist, []string{})
}

// Pinned returns the pinned ids that are still watched, in pin order.
func (l *Lists) Pinned() []string {
	pinned := prefs.Load(l.store, KeyPinned, []string{})
	watched := l.Watchlist()
	return slices.DeleteFunc(pinned, func(id string) bool {
		return !slices.Contains(watched, id)
	})
}

// IsWatched reports whether id is on the watch-list.
func (l *Lists) IsWatched(id string) bool {
	return slices.Contains(l.Watchlist(), id)
}

// IsPinned reports whether id is pinned.
func (l *Lists) IsPinned(id string) bool {
	return slices.Contains(l.Pinned(), id)
}

// SetWatchlist replaces the watch-list and drops pins that fell off it.
func (l *Lists) SetWatchlist(ids []string) {
	ids = slices.Clone(ids)
	if ids == nil {
		ids = []string{}
	}
	prefs.Save(l.store, KeyWatchlist, ids)
	l.prunePinned(ids)
}

// Watch puts id at the front of the watch-list if it is not there yet.
func (l *Lists) Watch(id string) {
	w := l.Watchlist()
	if slices.Contains(w, id) {
		return
	}
	prefs.Save(l.store, KeyWatchlist, append([]string{id}, w...))
}

// Unwatch removes id from the watch-list and the pinned list.
func (l *Lists) Unwatch(id string) {
	w := l.Watchlist()
	if i := slices.Index(w, id); i >= 0 {
		w = slices.Delete(w, i, i+1)
		prefs.Save(l.store, KeyWatchlist, w)
	}
	l.Unpin(id)
}

// Unpin removes id from the pinned list.
func (l *Lists) Unpin(id string) {
	p := prefs.Load(l.store, KeyPinned, []string{})
	if i := slices.Index(p, id); i >= 0 {
		prefs.Save(l.store, KeyPinned, slices.Delete(p, i, i+1))
	}
}

// TogglePin pins id at the front of the pinned list, or unpins it if it is
// already pinned. Pinning an unwatched id watches it first. It reports
// whether id is pinned afterwards.
func (l *Lists) TogglePin(id string) bool {
	if l.IsPinned(id) {
		l.Unpin(id)
		return false
	}
	l.Watch(id)
	p := slices.DeleteFunc(prefs.Load(l.store, KeyPinned, []string{}), func(s string) bool { return s == id })
	prefs.Save(l.store, KeyPinned, append([]string{id}, p...))
	return true
}

// Clear empties both lists.
func (l *Lists) Clear() {
	prefs.Save(l.store, KeyWatchlist, []string{})
	prefs.Save(l.store, KeyPinned, []string{})
}

func (l *Lists) prunePinned(watched []string) {
	p := prefs.Load(l.store, KeyPinned, []string{})
	kept := slices.DeleteFunc(slices.Clone(p), func(id string) bool {
		return !slices.Contains(watched, id)
	})
	if len(kept) != len(p) {
		prefs.Save(l.store, KeyPinned, kept)
	}
}
