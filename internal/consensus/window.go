package consensus

import (
	"sort"
	"time"

	"github.com/ajitpratap0/tradeconsensus/internal/db"
)

// Window is a consensus occurrence: a direction group of entry signals
// by enough distinct authors inside one time window
type Window struct {
	Signals     []*db.ParsedSignal // sorted by timestamp ascending
	Direction   db.Direction
	AuthorCount int
}

// First returns the timestamp of the earliest member signal
func (w *Window) First() time.Time { return w.Signals[0].Timestamp }

// Last returns the timestamp of the latest member signal
func (w *Window) Last() time.Time { return w.Signals[len(w.Signals)-1].Timestamp }

// AvgTargetPrice returns the mean target price over members carrying
// one, nil when none do
func (w *Window) AvgTargetPrice() *float64 {
	avg, _, _, _ := priceStats(w.Signals)
	return avg
}

// FindWindow scans candidates for a consensus window centered on the
// trigger signal. candidates may contain signals for other tickers,
// non-entry signals, and signals outside the window; all are filtered.
// Used by the backtester, which replays detection over a preloaded
// signal set.
func FindWindow(candidates []*db.ParsedSignal, trigger *db.ParsedSignal, windowMinutes, minTraders int, strict bool) *Window {
	half := time.Duration(windowMinutes) * time.Minute / 2
	from := trigger.Timestamp.Add(-half)
	to := trigger.Timestamp.Add(half)

	var inWindow []*db.ParsedSignal
	for _, s := range candidates {
		if s.Ticker != trigger.Ticker || s.SignalType != db.SignalTypeEntry {
			continue
		}
		if s.Timestamp.Before(from) || s.Timestamp.After(to) {
			continue
		}
		inWindow = append(inWindow, s)
	}

	return groupWindow(inWindow, minTraders, strict)
}

// groupWindow groups in-window signals by direction and checks the
// distinct-author threshold. Strict mode requires a single direction
// group; otherwise the largest group wins, first encountered on ties.
func groupWindow(signals []*db.ParsedSignal, minTraders int, strict bool) *Window {
	if len(signals) < minTraders {
		return nil
	}

	byDirection := make(map[db.Direction][]*db.ParsedSignal)
	var order []db.Direction
	for _, s := range signals {
		if _, seen := byDirection[s.Direction]; !seen {
			order = append(order, s.Direction)
		}
		byDirection[s.Direction] = append(byDirection[s.Direction], s)
	}

	var direction db.Direction
	var group []*db.ParsedSignal
	if strict {
		if len(byDirection) != 1 {
			return nil
		}
		direction = order[0]
		group = byDirection[direction]
	} else {
		for _, dir := range order {
			if len(byDirection[dir]) > len(group) {
				direction = dir
				group = byDirection[dir]
			}
		}
	}

	authors := make(map[string]struct{}, len(group))
	for _, s := range group {
		authors[s.Author] = struct{}{}
	}
	if len(authors) < minTraders {
		return nil
	}

	sorted := make([]*db.ParsedSignal, len(group))
	copy(sorted, group)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	return &Window{
		Signals:     sorted,
		Direction:   direction,
		AuthorCount: len(authors),
	}
}
