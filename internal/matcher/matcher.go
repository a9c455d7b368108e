// Package matcher links meeting recaps to calendar events. Every run is a
// full recompute: all prior cross-references are cleared and rewritten, so
// rerunning with unchanged data yields an identical match set.
package matcher

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/accountsync/internal/model"
)

// Linker persists recap/event cross-references. LinkRecapEvent writes both
// sides of a match in one transaction; there is no state where only one side
// is set.
type Linker interface {
	ClearMatches(ctx context.Context) error
	LinkRecapEvent(ctx context.Context, recapID, eventID string) error
}

// MatchAll pairs recaps with calendar events. A candidate event must carry
// the same trimmed title (exact, case-sensitive), start on the same UTC
// calendar day, and not conflict on resolved account. Among candidates the
// minimal wall-clock start difference wins; duration is never a
// discriminator. Each event is consumed by at most one recap, greedily in
// recap processing order (start time, then recap id), and each recap matches
// at most one event. A recap with no candidates simply stays unmatched.
func MatchAll(recaps []model.MeetingRecap, events []model.CalendarEvent) []model.Match {
	// Deterministic processing order makes the greedy event consumption
	// reproducible across runs.
	ordered := append([]model.MeetingRecap(nil), recaps...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Start.Equal(ordered[j].Start) {
			return ordered[i].RecapID < ordered[j].RecapID
		}
		return ordered[i].Start.Before(ordered[j].Start)
	})

	sortedEvents := append([]model.CalendarEvent(nil), events...)
	sort.Slice(sortedEvents, func(i, j int) bool {
		if sortedEvents[i].Start.Equal(sortedEvents[j].Start) {
			return sortedEvents[i].EventID < sortedEvents[j].EventID
		}
		return sortedEvents[i].Start.Before(sortedEvents[j].Start)
	})

	consumed := make(map[string]bool, len(sortedEvents))
	var matches []model.Match

	for _, recap := range ordered {
		best := -1
		var bestDiff int64
		for i, ev := range sortedEvents {
			if consumed[ev.EventID] || !isCandidate(recap, ev) {
				continue
			}
			diff := recap.Start.Sub(ev.Start).Milliseconds()
			if diff < 0 {
				diff = -diff
			}
			if best == -1 || diff < bestDiff {
				best = i
				bestDiff = diff
			}
		}
		if best == -1 {
			continue
		}
		consumed[sortedEvents[best].EventID] = true
		matches = append(matches, model.Match{
			RecapID: recap.RecapID,
			EventID: sortedEvents[best].EventID,
		})
	}

	return matches
}

// isCandidate applies the per-recap candidate filter.
func isCandidate(recap model.MeetingRecap, ev model.CalendarEvent) bool {
	if strings.TrimSpace(ev.Title) != strings.TrimSpace(recap.Title) {
		return false
	}

	rd := recap.Start.UTC()
	ed := ev.Start.UTC()
	ry, rm, rdy := rd.Date()
	ey, em, edy := ed.Date()
	if ry != ey || rm != em || rdy != edy {
		return false
	}

	// A resolved account on both sides is ground truth: a mismatch
	// disqualifies even a title+date match.
	if recap.AccountID != "" && ev.AccountID != "" && recap.AccountID != ev.AccountID {
		return false
	}

	return true
}

// Run recomputes all matches and persists them through the linker.
// Returns the number of matches written.
func Run(ctx context.Context, linker Linker, recaps []model.MeetingRecap, events []model.CalendarEvent) (int, error) {
	if err := linker.ClearMatches(ctx); err != nil {
		return 0, err
	}

	matches := MatchAll(recaps, events)
	for _, m := range matches {
		if err := linker.LinkRecapEvent(ctx, m.RecapID, m.EventID); err != nil {
			return 0, err
		}
	}

	zap.L().Info("matcher: run complete",
		zap.Int("recaps", len(recaps)),
		zap.Int("events", len(events)),
		zap.Int("matched", len(matches)),
	)

	return len(matches), nil
}
