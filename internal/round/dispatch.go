// internal/round/dispatch.go
//
// Routes inbound message events to the engine operations.
//
// Routing order: exact begin phrase → exact end phrase → exact ranking
// phrase → guess prefix → ignore. Phrase comparison is case-insensitive
// on trimmed text; ranking triggers are served only when scoring is
// configured, as upstream only registers them with a database present.

package round

import (
	"context"
	"strings"
)

// HandleMessage routes one inbound event. A begin trigger suspends for
// the duration of the round race, so gateway callers dispatch it from
// their own goroutine. User-visible sentinel errors (already in
// progress, not in progress) pass through for the caller to inspect;
// everything else is an internal failure.
func (e *Engine) HandleMessage(ctx context.Context, ev Event) error {
	text := strings.TrimSpace(ev.RawText)
	if text == "" {
		return nil
	}

	for _, v := range e.variants {
		for _, phrase := range v.BeginPhrases() {
			if strings.EqualFold(text, phrase) {
				return e.Begin(ctx, v, ev)
			}
		}
	}
	for _, phrase := range e.endPhrases {
		if strings.EqualFold(text, phrase) {
			return e.End(ctx, ev)
		}
	}
	if e.scores != nil {
		for _, v := range e.variants {
			for _, phrase := range v.RankingPhrases() {
				if strings.EqualFold(text, phrase) {
					return e.Ranking(ctx, v, ev)
				}
			}
		}
	}
	if strings.HasPrefix(text, GuessPrefix) {
		return e.Guess(ctx, ev)
	}
	return nil
}
