// internal/round/engine.go
//
// The round engine: begin / guess / end / ranking transitions and the
// race between a correct guess and the round timer.
//
// Concurrency model:
//   - Begin is the only suspending operation: after activating the round
//     it blocks on a select over the completion signal and the timer.
//   - Guess and End run concurrently with an in-flight Begin, including
//     on the same channel; a correct guess closes the completion signal
//     and Begin's select wakes immediately.
//   - Exactly one resolution path executes reveal-and-clear. The guess
//     and end paths resolve under the round mutex before Begin wakes;
//     the timeout path revalidates phase and generation under the mutex,
//     so a timer firing against an already-resolved round is inert.

package round

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/okazari/soundguess/internal/catalog"
	"github.com/okazari/soundguess/internal/match"
	"github.com/okazari/soundguess/internal/provider"
	"github.com/okazari/soundguess/internal/score"
)

// GuessPrefix marks a message as a guess; it is stripped before matching.
const GuessPrefix = "-"

// DefaultTimeout is the round duration for every variant.
const DefaultTimeout = 60 * time.Second

// rankingLimit caps leaderboard rows, as upstream does.
const rankingLimit = 20

// Event is one inbound "message created" notification from the gateway.
type Event struct {
	ChannelID  string `json:"channelId"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	RawText    string `json:"rawText"`
	MessageRef string `json:"messageRef"`
}

// Sender is the outbound capability supplied by the gateway. Send replies
// to the triggering message; SendFinal emits a resolution message that
// may not reference any inbound message (the timeout path has none).
type Sender interface {
	Send(channelID, ref, content string, attachments ...provider.Artifact) error
	SendFinal(channelID, ref, content string, attachments ...provider.Artifact) error
}

// Config wires an Engine.
type Config struct {
	Registry   *Registry        // optional, created when nil
	Matcher    *match.Matcher   // required
	Sender     Sender           // required
	Scores     score.Store      // optional, nil disables scoring + rankings
	Variants   []provider.Variant
	Timeout    time.Duration    // zero selects DefaultTimeout
	EndPhrases []string         // optional, defaults to {"endguess", "end guess"}
	NotRunning string           // optional "nothing running" text for End
}

// Engine owns the registry and exposes the externally triggered
// operations.
type Engine struct {
	reg        *Registry
	matcher    *match.Matcher
	sender     Sender
	scores     score.Store
	variants   []provider.Variant
	byKey      map[string]provider.Variant
	timeout    time.Duration
	endPhrases []string
	notRunning string
}

// NewEngine validates cfg and builds the engine.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		reg:        cfg.Registry,
		matcher:    cfg.Matcher,
		sender:     cfg.Sender,
		scores:     cfg.Scores,
		variants:   cfg.Variants,
		byKey:      make(map[string]provider.Variant, len(cfg.Variants)),
		timeout:    cfg.Timeout,
		endPhrases: cfg.EndPhrases,
		notRunning: cfg.NotRunning,
	}
	if e.reg == nil {
		e.reg = NewRegistry()
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if len(e.endPhrases) == 0 {
		e.endPhrases = []string{"endguess", "end guess"}
	}
	if e.notRunning == "" {
		e.notRunning = "No round is running right now"
	}
	for _, v := range e.variants {
		e.byKey[v.Key()] = v
	}
	return e
}

// Registry exposes the channel round registry (useful for tests).
func (e *Engine) Registry() *Registry { return e.reg }

// ------------------------------- begin -------------------------------------

// Begin starts a round for v on ev's channel and suspends until the
// round resolves: it returns as soon as a correct guess or manual end
// fires the completion signal, or after emitting the timeout reveal.
func (e *Engine) Begin(ctx context.Context, v provider.Variant, ev Event) error {
	rd := e.reg.GetOrCreate(ev.ChannelID)

	rd.mu.Lock()
	if rd.phase == Active {
		rd.mu.Unlock()
		e.send(ev, v.Texts().Running)
		return ErrAlreadyInProgress
	}

	res, err := v.Acquire()
	if err != nil {
		rd.mu.Unlock()
		log.Warn().Err(err).Str("channel", ev.ChannelID).Str("variant", v.Key()).
			Msg("resource acquisition failed")
		e.send(ev, v.Texts().Failure)
		return fmt.Errorf("begin %s: %w", v.Key(), err)
	}
	preview, err := v.Obfuscate(res)
	if err != nil {
		rd.mu.Unlock()
		log.Warn().Err(err).Str("channel", ev.ChannelID).Str("variant", v.Key()).
			Msg("resource obfuscation failed")
		e.send(ev, v.Texts().Failure)
		return fmt.Errorf("begin %s: %w", v.Key(), err)
	}

	rd.gen++
	gen := rd.gen
	rd.phase = Active
	rd.variant = v.Key()
	rd.answerID = res.ID
	rd.answer = res.Aliases
	rd.preview = preview
	rd.reveal = res.Full
	rd.done = make(chan struct{})
	rd.fired = false
	timer := time.NewTimer(e.timeout)
	rd.timer = timer
	done := rd.done
	rd.mu.Unlock()

	log.Info().Str("channel", ev.ChannelID).Str("variant", v.Key()).
		Uint64("gen", gen).Msg("round started")
	e.send(ev, v.Texts().Begin, preview)

	select {
	case <-done:
		// Resolved by the guess or end path; it already revealed and cleared.
		return nil
	case <-timer.C:
		return e.expire(rd, v, gen)
	case <-ctx.Done():
		e.abandon(rd, gen)
		return ctx.Err()
	}
}

// expire is the timeout resolution path. It revalidates phase and
// generation under the round mutex: a stale timer is a no-op.
func (e *Engine) expire(rd *Round, v provider.Variant, gen uint64) error {
	rd.mu.Lock()
	if rd.phase != Active || rd.gen != gen {
		rd.mu.Unlock()
		return nil
	}
	name, err := catalog.Format(rd.answer)
	if err != nil {
		return e.abortLocked(rd, "timeout", err)
	}
	reveal := rd.reveal
	channel := rd.channelID
	rd.clearLocked()
	rd.mu.Unlock()

	log.Info().Str("channel", channel).Str("variant", v.Key()).
		Uint64("gen", gen).Msg("round timed out")
	if err := e.sender.SendFinal(channel, "", v.Texts().Timeout+name, reveal...); err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("send timeout reveal")
	}
	return nil
}

// abandon silently clears a round when Begin's context is cancelled
// (process shutdown). No reveal is emitted.
func (e *Engine) abandon(rd *Round, gen uint64) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if rd.phase == Active && rd.gen == gen {
		rd.clearLocked()
	}
}

// ------------------------------- guess -------------------------------------

// Guess resolves ev's text against the catalog. A hit among the top-3
// candidates wins the round; otherwise the top candidate is reported as
// a near-miss hint and the round stays active. With no active round the
// operation is a silent no-op.
func (e *Engine) Guess(ctx context.Context, ev Event) error {
	rd := e.reg.GetOrCreate(ev.ChannelID)

	rd.mu.Lock()
	if rd.phase != Active {
		rd.mu.Unlock()
		return ErrNotInProgress
	}
	if err := rd.checkActiveLocked(); err != nil {
		return e.abortLocked(rd, "guess", err)
	}
	v, ok := e.byKey[rd.variant]
	if !ok {
		return e.abortLocked(rd, "guess", fmt.Errorf("%w: unknown variant %q", ErrInvariant, rd.variant))
	}

	text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(ev.RawText), GuessPrefix))
	candidates := e.matcher.BestMatches(text, match.DefaultLimit)

	if !match.Contains(candidates, rd.answerID) {
		hint := ""
		if len(candidates) > 0 {
			h, err := catalog.Format(candidates[0].Aliases)
			if err != nil {
				// Catalog data error; the round itself is fine.
				rd.mu.Unlock()
				log.Error().Err(err).Str("channel", ev.ChannelID).Msg("format hint")
				return err
			}
			hint = h
		}
		rd.mu.Unlock()
		e.send(ev, v.Texts().Incorrect+hint)
		return nil
	}

	// Win: fire the one-shot signal so Begin's race resolves as correct.
	if err := rd.fireLocked(); err != nil {
		return e.abortLocked(rd, "guess", err)
	}
	name, err := catalog.Format(rd.answer)
	if err != nil {
		return e.abortLocked(rd, "guess", err)
	}
	reveal := rd.reveal
	variantKey := rd.variant
	gen := rd.gen
	rd.clearLocked()
	rd.mu.Unlock()

	log.Info().Str("channel", ev.ChannelID).Str("variant", variantKey).
		Str("user", ev.UserID).Uint64("gen", gen).Msg("round won")
	e.send(ev, v.Texts().Correct+name, reveal...)

	if e.scores != nil {
		if err := e.scores.Increment(ctx, ev.ChannelID, ev.UserID, ev.UserName, variantKey); err != nil {
			log.Warn().Err(err).Str("channel", ev.ChannelID).Str("user", ev.UserID).
				Msg("increment score")
		}
	}
	return nil
}

// -------------------------------- end --------------------------------------

// End terminates a round early, revealing the answer. With no active
// round it reports "nothing running".
func (e *Engine) End(ctx context.Context, ev Event) error {
	rd := e.reg.GetOrCreate(ev.ChannelID)

	rd.mu.Lock()
	if rd.phase != Active {
		rd.mu.Unlock()
		e.send(ev, e.notRunning)
		return ErrNotInProgress
	}
	if err := rd.checkActiveLocked(); err != nil {
		return e.abortLocked(rd, "end", err)
	}
	v, ok := e.byKey[rd.variant]
	if !ok {
		return e.abortLocked(rd, "end", fmt.Errorf("%w: unknown variant %q", ErrInvariant, rd.variant))
	}
	if err := rd.fireLocked(); err != nil {
		return e.abortLocked(rd, "end", err)
	}
	name, err := catalog.Format(rd.answer)
	if err != nil {
		return e.abortLocked(rd, "end", err)
	}
	reveal := rd.reveal
	gen := rd.gen
	rd.clearLocked()
	rd.mu.Unlock()

	log.Info().Str("channel", ev.ChannelID).Str("variant", v.Key()).
		Uint64("gen", gen).Msg("round ended manually")
	e.send(ev, v.Texts().End+name, reveal...)
	return nil
}

// ------------------------------ ranking ------------------------------------

// Ranking renders v's channel leaderboard wrapped in a monospace block,
// with the caller's own rank appended.
func (e *Engine) Ranking(ctx context.Context, v provider.Variant, ev Event) error {
	if e.scores == nil {
		return nil
	}
	entries, err := e.scores.TopN(ctx, ev.ChannelID, v.Key(), rankingLimit)
	if err != nil {
		log.Warn().Err(err).Str("channel", ev.ChannelID).Str("variant", v.Key()).
			Msg("load ranking")
		return err
	}
	body := score.RenderRanking(entries) + score.CallerFooter(entries, ev.UserID)
	e.send(ev, "```\n"+body+"\n```")
	return nil
}

// ------------------------------ helpers ------------------------------------

// abortLocked handles an invariant violation: dump the round's full
// state, abort (clear) the affected round, release the mutex. The error
// propagates to the caller's handling path only; other channels are
// untouched.
func (e *Engine) abortLocked(rd *Round, op string, err error) error {
	log.Error().Err(err).
		Str("channel", rd.channelID).
		Str("op", op).
		Str("phase", rd.phase.String()).
		Uint64("gen", rd.gen).
		Str("variant", rd.variant).
		Str("answerId", string(rd.answerID)).
		Int("aliases", len(rd.answer)).
		Bool("fired", rd.fired).
		Bool("hasSignal", rd.done != nil).
		Bool("hasTimer", rd.timer != nil).
		Msg("round invariant violated, aborting round")
	rd.clearLocked()
	rd.mu.Unlock()
	if !errors.Is(err, ErrInvariant) {
		return fmt.Errorf("%w: %v", ErrInvariant, err)
	}
	return err
}

// send replies to the triggering message, logging delivery failures.
func (e *Engine) send(ev Event, content string, attachments ...provider.Artifact) {
	if err := e.sender.Send(ev.ChannelID, ev.MessageRef, content, attachments...); err != nil {
		log.Warn().Err(err).Str("channel", ev.ChannelID).Msg("send message")
	}
}
