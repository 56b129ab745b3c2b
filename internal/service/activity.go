package service

import (
	"sync"
	"time"
)

// ActivityEntry is one line of the operator-facing live feed.
type ActivityEntry struct {
	Type string    `json:"type"`
	Msg  string    `json:"msg"`
	Time time.Time `json:"time"`
}

// activityFeed is a fixed-cap, newest-first ring kept in memory. It is a
// convenience view, not durable state.
type activityFeed struct {
	mu      sync.Mutex
	entries []ActivityEntry
	max     int
}

func newActivityFeed(max int) *activityFeed {
	f := &activityFeed{max: max}
	f.add("SYSTEM", "Colony proxy online")
	return f
}

func (f *activityFeed) add(kind, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append([]ActivityEntry{{Type: kind, Msg: msg, Time: time.Now().UTC()}}, f.entries...)
	if len(f.entries) > f.max {
		f.entries = f.entries[:f.max]
	}
}

func (f *activityFeed) recent() []ActivityEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ActivityEntry, len(f.entries))
	copy(out, f.entries)
	return out
}
