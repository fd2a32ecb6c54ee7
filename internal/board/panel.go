package board

import "time"

// Panel is the state of one independently loaded section of the board.
type Panel[T any] struct {
	Data      T
	Err       error
	Loading   bool
	Stale     bool // Data was seeded from the snapshot and not yet refreshed
	UpdatedAt time.Time

	gen    uint64
	loaded bool // a fetch has landed at least once
}

// Loaded reports whether a fetch has ever completed successfully.
func (p Panel[T]) Loaded() bool { return p.loaded }

// Fresh reports whether the data is younger than ttl.
func (p Panel[T]) Fresh(now time.Time, ttl time.Duration) bool {
	return p.loaded && !p.UpdatedAt.IsZero() && now.Sub(p.UpdatedAt) < ttl
}

// begin starts a new request and returns its generation.
func (p *Panel[T]) begin() uint64 {
	p.gen++
	p.Loading = true
	return p.gen
}

// current reports whether gen is the latest request.
func (p *Panel[T]) current(gen uint64) bool { return gen == p.gen }

// finish records the outcome of the latest request. Data survives a failed
// refresh.
func (p *Panel[T]) finish(data T, err error, at time.Time) {
	p.Loading = false
	if err != nil {
		p.Err = err
		return
	}
	p.Data = data
	p.Err = nil
	p.Stale = false
	p.UpdatedAt = at
	p.loaded = true
}

// reset empties the panel and invalidates any request in flight.
func (p *Panel[T]) reset() {
	var zero T
	p.gen++
	p.Data = zero
	p.Err = nil
	p.Loading = false
	p.Stale = false
	p.UpdatedAt = time.Time{}
	p.loaded = false
}
