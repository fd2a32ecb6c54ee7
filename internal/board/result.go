package board

import (
	"coinboard/internal/domain"
	"coinboard/internal/snapshot"
)

// Job is work that runs off the event loop. Its Result is handed back to
// Board.Apply on the loop.
type Job func() Result

// Result is the outcome of a Job.
type Result interface {
	result()
}

type pingResult struct {
	gen  uint64
	ping domain.Ping
	err  error
}

type marketsResult struct {
	gen   uint64
	coins []domain.Coin
	err   error
}

type snapshotResult struct {
	snap snapshot.Snapshot
	err  error
}

type chartResult struct {
	gen   uint64
	key   chartKey
	chart domain.Chart
	err   error
}

type newsResult struct {
	gen   uint64
	key   string
	items []domain.NewsItem
	err   error
}

// watchOp names the watch-list operation a watchResult finished.
type watchOp string

const (
	opSync   watchOp = "sync"
	opToggle watchOp = "toggle"
	opPin    watchOp = "pin"
	opClear  watchOp = "clear"
)

type watchResult struct {
	gen     uint64
	op      watchOp
	id      string
	changed bool
	err     error
}

type authResult struct {
	err error
}

func (pingResult) result()     {}
func (marketsResult) result()  {}
func (snapshotResult) result() {}
func (chartResult) result()    {}
func (newsResult) result()     {}
func (watchResult) result()    {}
func (authResult) result()     {}
