package watchlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"coinboard/internal/auth"
)

// ErrLoginRequired is returned by operations that need a signed-in user.
var ErrLoginRequired = errors.New("login required")

// Remote is the server-side watch-list.
type Remote interface {
	Watchlist(ctx context.Context, token string) ([]string, error)
	AddWatch(ctx context.Context, token, id string) error
	RemoveWatch(ctx context.Context, token, id string) error
}

// Reconciler treats the server list as authoritative while signed in. Local
// state is only replaced from a fetched server list, never optimistically.
type Reconciler struct {
	lists  *Lists
	remote Remote
	auth   auth.Provider
	log    *slog.Logger

	mu     sync.Mutex
	mirror []string // last fetched server list, nil when evicted
	epoch  uint64   // bumped by Logout; syncs started earlier are discarded
}

// NewReconciler returns a Reconciler for lists.
func NewReconciler(lists *Lists, remote Remote, provider auth.Provider, log *slog.Logger) *Reconciler {
	return &Reconciler{lists: lists, remote: remote, auth: provider, log: log}
}

// Lists returns the local lists.
func (r *Reconciler) Lists() *Lists { return r.lists }

// Fetch returns the server list and remembers it in the mirror.
func (r *Reconciler) Fetch(ctx context.Context) ([]string, error) {
	token, err := r.token(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := r.remote.Watchlist(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("fetching watchlist: %w", err)
	}
	r.mu.Lock()
	r.mirror = slices.Clone(ids)
	r.mu.Unlock()
	return ids, nil
}

// Apply overwrites the local watch-list with remote when the two differ in
// length or at any position. It reports whether anything changed.
func (r *Reconciler) Apply(remote []string) bool {
	local := r.lists.Watchlist()
	if slices.Equal(local, remote) {
		return false
	}
	r.log.Debug("watchlist out of sync", "local", len(local), "remote", len(remote))
	r.lists.SetWatchlist(remote)
	return true
}

// Epoch identifies the current sign-in session. Logout starts a new one.
// Operations carry the epoch they were issued under and make no local
// change once it has passed.
func (r *Reconciler) Epoch() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch
}

// Sync fetches and applies the server list. Signed out it does nothing.
func (r *Reconciler) Sync(ctx context.Context) (bool, error) {
	return r.SyncAt(ctx, r.Epoch())
}

// SyncAt is Sync for an operation issued under epoch. A list fetched after
// that session ended is dropped.
func (r *Reconciler) SyncAt(ctx context.Context, epoch uint64) (bool, error) {
	if !r.auth.Authenticated() || !r.current(epoch) {
		return false, nil
	}
	token, err := r.token(ctx)
	if err != nil {
		return false, err
	}
	ids, err := r.remote.Watchlist(ctx, token)
	if err != nil {
		return false, fmt.Errorf("fetching watchlist: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if epoch != r.epoch {
		r.log.Debug("dropping watchlist fetched before logout")
		return false, nil
	}
	r.mirror = slices.Clone(ids)
	return r.Apply(ids), nil
}

// Mirror returns the last fetched server list.
func (r *Reconciler) Mirror() ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mirror == nil {
		return nil, false
	}
	return slices.Clone(r.mirror), true
}

// ToggleWatch adds id to the server list, or removes it if already watched,
// then refetches. Signed out it returns ErrLoginRequired and changes nothing.
func (r *Reconciler) ToggleWatch(ctx context.Context, id string) (bool, error) {
	return r.ToggleWatchAt(ctx, r.Epoch(), id)
}

// ToggleWatchAt is ToggleWatch for an operation issued under epoch.
func (r *Reconciler) ToggleWatchAt(ctx context.Context, epoch uint64, id string) (bool, error) {
	token, err := r.tokenAt(ctx, epoch)
	if err != nil {
		return false, err
	}
	if r.lists.IsWatched(id) {
		if err := r.remote.RemoveWatch(ctx, token, id); err != nil {
			return false, fmt.Errorf("removing %s: %w", id, err)
		}
		r.locked(epoch, func() { r.lists.Unpin(id) })
	} else {
		if err := r.remote.AddWatch(ctx, token, id); err != nil {
			return false, fmt.Errorf("adding %s: %w", id, err)
		}
	}
	return r.SyncAt(ctx, epoch)
}

// TogglePin pins or unpins id. Pinning a coin that is not watched needs a
// signed-in user and adds it to the server list as well.
func (r *Reconciler) TogglePin(ctx context.Context, id string) (bool, error) {
	return r.TogglePinAt(ctx, r.Epoch(), id)
}

// TogglePinAt is TogglePin for an operation issued under epoch.
func (r *Reconciler) TogglePinAt(ctx context.Context, epoch uint64, id string) (bool, error) {
	if r.lists.IsWatched(id) {
		var pinned bool
		if !r.locked(epoch, func() { pinned = r.lists.TogglePin(id) }) {
			return false, ErrLoginRequired
		}
		return pinned, nil
	}
	token, err := r.tokenAt(ctx, epoch)
	if err != nil {
		return false, err
	}
	if err := r.remote.AddWatch(ctx, token, id); err != nil {
		return false, fmt.Errorf("adding %s: %w", id, err)
	}
	var pinned bool
	if !r.locked(epoch, func() { pinned = r.lists.TogglePin(id) }) {
		return false, ErrLoginRequired
	}
	if _, err := r.SyncAt(ctx, epoch); err != nil {
		return pinned, err
	}
	return r.lists.IsPinned(id), nil
}

// Clear empties the local lists and, when signed in, removes every id from
// the server list before refetching it.
func (r *Reconciler) Clear(ctx context.Context) error {
	epoch := r.Epoch()
	ids := r.lists.Watchlist()
	r.lists.Clear()
	return r.RemoveAllAt(ctx, epoch, ids)
}

// RemoveAll deletes ids from the server list and refetches it. Signed out
// it does nothing.
func (r *Reconciler) RemoveAll(ctx context.Context, ids []string) error {
	return r.RemoveAllAt(ctx, r.Epoch(), ids)
}

// RemoveAllAt is RemoveAll for an operation issued under epoch.
func (r *Reconciler) RemoveAllAt(ctx context.Context, epoch uint64, ids []string) error {
	if !r.auth.Authenticated() || !r.current(epoch) {
		return nil
	}
	token, err := r.tokenAt(ctx, epoch)
	if err != nil {
		return err
	}
	var errs []error
	for _, id := range ids {
		if err := r.remote.RemoveWatch(ctx, token, id); err != nil {
			errs = append(errs, fmt.Errorf("removing %s: %w", id, err))
		}
	}
	if _, err := r.SyncAt(ctx, epoch); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Logout clears the local lists, evicts the mirror and ends the session.
func (r *Reconciler) Logout() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epoch++
	r.mirror = nil
	r.lists.Clear()
}

func (r *Reconciler) current(epoch uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return epoch == r.epoch
}

// locked runs fn while holding mu if epoch is still current.
func (r *Reconciler) locked(epoch uint64, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if epoch != r.epoch {
		return false
	}
	fn()
	return true
}

func (r *Reconciler) tokenAt(ctx context.Context, epoch uint64) (string, error) {
	if !r.current(epoch) {
		return "", ErrLoginRequired
	}
	return r.token(ctx)
}

func (r *Reconciler) token(ctx context.Context) (string, error) {
	if !r.auth.Authenticated() {
		return "", ErrLoginRequired
	}
	token, err := r.auth.Token(ctx)
	if errors.Is(err, auth.ErrNotAuthenticated) {
		return "", ErrLoginRequired
	}
	return token, err
}
