// internal/round/round.go
//
// Round state and the per-channel registry.
//
// A Round cycles Idle → Active → Idle; every mutation happens under the
// round's own mutex, so rounds in different channels never block each
// other. Each Active period carries a generation number: a timer that
// fires after its round was already resolved sees a different generation
// (or an Idle phase) and becomes a no-op.

package round

import (
	"errors"
	"sync"
	"time"

	"github.com/okazari/soundguess/internal/catalog"
	"github.com/okazari/soundguess/internal/provider"
)

var (
	// ErrAlreadyInProgress rejects begin on a channel with an active round.
	ErrAlreadyInProgress = errors.New("round: already in progress")

	// ErrNotInProgress reports guess/end on a channel with no active round.
	ErrNotInProgress = errors.New("round: not in progress")

	// ErrInvariant reports internal state corruption: an active round
	// missing required fields, a one-shot signal fired twice, or clear on
	// an idle round. Never user-facing; the affected round is aborted.
	ErrInvariant = errors.New("round: invariant violation")
)

// IsUserFacing reports whether err is one of the non-fatal kinds the
// orchestrator boundary renders as a chat message rather than a failure.
func IsUserFacing(err error) bool {
	return errors.Is(err, ErrAlreadyInProgress) ||
		errors.Is(err, ErrNotInProgress) ||
		errors.Is(err, provider.ErrResourceUnavailable)
}

// Phase is the round lifecycle state.
type Phase int

const (
	Idle Phase = iota
	Active
)

func (p Phase) String() string {
	if p == Active {
		return "active"
	}
	return "idle"
}

// Round is one channel's guessing session. All fields besides channelID
// are guarded by mu.
type Round struct {
	mu        sync.Mutex
	channelID string

	phase   Phase
	gen     uint64 // increments on every activation
	variant string

	answerID catalog.AnswerID
	answer   catalog.AliasSet
	preview  provider.Artifact
	reveal   []provider.Artifact

	done  chan struct{} // one-shot completion signal, closed at most once
	fired bool          // guards against double fire
	timer *time.Timer   // at most one live per active period
}

// fireLocked closes the completion signal exactly once. Firing twice is
// a programming error, reported as ErrInvariant. Caller holds mu.
func (r *Round) fireLocked() error {
	if r.fired || r.done == nil {
		return ErrInvariant
	}
	r.fired = true
	close(r.done)
	return nil
}

// clearLocked resets the round to Idle, releasing the answer, artifacts
// and signal and cancelling a still-pending timer. Caller holds mu.
func (r *Round) clearLocked() {
	r.phase = Idle
	r.variant = ""
	r.answerID = ""
	r.answer = nil
	r.preview = provider.Artifact{}
	r.reveal = nil
	r.done = nil
	r.fired = false
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// checkActiveLocked verifies the invariant that an Active round carries
// an answer and an unfired completion signal. Caller holds mu.
func (r *Round) checkActiveLocked() error {
	if r.phase != Active {
		return ErrNotInProgress
	}
	if r.done == nil || r.fired || len(r.answer) == 0 || r.answerID == "" {
		return ErrInvariant
	}
	return nil
}

// Registry owns the channel → Round map; it is the only shared mutable
// structure in the engine. Rounds are created lazily and never removed —
// an idle Round is just its zero state.
type Registry struct {
	mu     sync.Mutex
	rounds map[string]*Round
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{rounds: make(map[string]*Round)}
}

// GetOrCreate returns the channel's round, creating an idle one if
// absent. Never returns nil.
func (g *Registry) GetOrCreate(channelID string) *Round {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.rounds[channelID]; ok {
		return r
	}
	r := &Round{channelID: channelID}
	g.rounds[channelID] = r
	return r
}

// Clear resets a channel's round to Idle. Calling it on a round that is
// not active is an invariant violation.
func (g *Registry) Clear(channelID string) error {
	r := g.GetOrCreate(channelID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != Active {
		return ErrInvariant
	}
	r.clearLocked()
	return nil
}
