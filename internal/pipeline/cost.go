package pipeline

import (
	"github.com/theirongolddev/smriti/internal/config"
	"github.com/theirongolddev/smriti/internal/model"
)

// sessionCost totals token usage and turn durations for one session.
// Entries sharing a request id repeat the same usage (one line per content
// block), so only the last entry of each request counts.
func sessionCost(sessionID string, entries []model.Entry, pricer *config.Pricer) model.SessionCost {
	cost := model.SessionCost{SessionID: sessionID}

	type turn struct {
		usage model.TokenUsage
		name  string
		e     *model.Entry
	}
	var turns []turn
	byRequest := make(map[string]int)

	for i := range entries {
		e := &entries[i]
		if e.Kind == model.EntrySystemEvent && e.Event != nil && e.Event.Type == model.EventTurnDuration {
			cost.DurationMs += e.Event.DurationMs
			continue
		}
		u := e.Meta.TokenUsage
		if u == nil || u.IsZero() {
			continue
		}
		t := turn{usage: *u, name: e.Meta.Model, e: e}
		if id := e.Meta.RequestID; id != "" {
			if idx, ok := byRequest[id]; ok {
				turns[idx] = t
				continue
			}
			byRequest[id] = len(turns)
		}
		turns = append(turns, t)
	}

	for _, t := range turns {
		cost.InputTokens += t.usage.Input
		cost.OutputTokens += t.usage.Output
		cost.CacheTokens += t.usage.CacheCreate + t.usage.CacheRead
		cost.EstimatedCostUSD += pricer.Cost(t.name, t.e.Timestamp, t.usage)
		if t.name != "" {
			cost.Model = t.name
		}
	}
	return cost
}
