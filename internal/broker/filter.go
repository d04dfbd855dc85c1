package broker

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// filterEntry is one (interval, subscription) pair registered against a
// signal id. Entries for a given signal are kept sorted by interval so the
// lowest is always database[id][0], matching the ordering a BTreeSet of
// (interval, uuid) would give.
type filterEntry struct {
	interval     time.Duration
	subscription uuid.UUID
}

// FilterManager tracks, per signal id, every (sample interval, subscription
// id) pair currently registered for that signal, and reports only the
// signals whose *lowest* interval actually changed as filters are added or
// removed. Each signal's pairs are kept as a slice sorted by (interval,
// subscription id), standing in for an ordered set.
type FilterManager struct {
	mu       sync.Mutex
	database map[ID][]filterEntry
}

// NewFilterManager returns an empty FilterManager.
func NewFilterManager() *FilterManager {
	return &FilterManager{database: make(map[ID][]filterEntry)}
}

func (fm *FilterManager) lowestPerSignal() map[ID]time.Duration {
	out := make(map[ID]time.Duration, len(fm.database))
	for id, entries := range fm.database {
		if len(entries) > 0 {
			out[id] = entries[0].interval
		}
	}
	return out
}

func insertSorted(entries []filterEntry, e filterEntry) []filterEntry {
	i := sort.Search(len(entries), func(i int) bool {
		if entries[i].interval != e.interval {
			return entries[i].interval > e.interval
		}
		return entries[i].subscription.String() >= e.subscription.String()
	})
	if i < len(entries) && entries[i] == e {
		return entries
	}
	entries = append(entries, filterEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	return entries
}

// AddNewUpdateFilter registers (interval, subscriptionID) against every id
// in signalIDs and returns only the signals whose lowest interval changed
// as a result — signals whose existing lower interval already dominated
// the new one are omitted.
func (fm *FilterManager) AddNewUpdateFilter(signalIDs []ID, interval time.Duration, subscriptionID uuid.UUID) map[ID]time.Duration {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	before := fm.lowestPerSignal()

	for _, id := range signalIDs {
		fm.database[id] = insertSorted(fm.database[id], filterEntry{interval: interval, subscription: subscriptionID})
	}

	after := fm.lowestPerSignal()

	changed := make(map[ID]time.Duration)
	for id, v := range after {
		if prev, ok := before[id]; !ok || prev != v {
			changed[id] = v
		}
	}
	return changed
}

// RemoveFilterBySubscriptionID removes every (interval, uuid) entry whose
// uuid is in targets. The returned map holds, for every signal whose
// lowest interval changed as a result, its new lowest interval — or nil if
// the signal has no filters left at all.
func (fm *FilterManager) RemoveFilterBySubscriptionID(targets []uuid.UUID) map[ID]*time.Duration {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	before := fm.lowestPerSignal()

	targetSet := make(map[uuid.UUID]struct{}, len(targets))
	for _, t := range targets {
		targetSet[t] = struct{}{}
	}

	for id, entries := range fm.database {
		kept := entries[:0:0]
		for _, e := range entries {
			if _, drop := targetSet[e.subscription]; !drop {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(fm.database, id)
		} else {
			fm.database[id] = kept
		}
	}

	after := fm.lowestPerSignal()

	changed := make(map[ID]*time.Duration)
	for id, prev := range before {
		if v, ok := after[id]; ok {
			if v != prev {
				v := v
				changed[id] = &v
			}
		} else {
			changed[id] = nil
		}
	}
	return changed
}
