package models

import "github.com/lib/pq"

// WatchedProduct is the reverse-index record mapping one product code to the
// channels watching it. The record only exists while watchers is non-empty.
type WatchedProduct struct {
	Code     string         `db:"code"`
	Name     string         `db:"name"`
	Watchers pq.StringArray `db:"watchers"`
}

// HasWatcher reports whether the given channel is already in the watcher set.
func (p *WatchedProduct) HasWatcher(channelID string) bool {
	for _, w := range p.Watchers {
		if w == channelID {
			return true
		}
	}
	return false
}

// AddWatcher adds the channel to the watcher set and returns the new watcher
// count. Adding an already-present watcher is a no-op.
func (p *WatchedProduct) AddWatcher(channelID string) int {
	if !p.HasWatcher(channelID) {
		p.Watchers = append(p.Watchers, channelID)
	}
	return len(p.Watchers)
}

// RemoveWatcher removes the channel from the watcher set and returns the new
// watcher count. Removing an absent watcher is a no-op.
func (p *WatchedProduct) RemoveWatcher(channelID string) int {
	kept := p.Watchers[:0]
	for _, w := range p.Watchers {
		if w != channelID {
			kept = append(kept, w)
		}
	}
	p.Watchers = kept
	return len(p.Watchers)
}
