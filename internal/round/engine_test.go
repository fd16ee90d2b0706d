package round

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okazari/soundguess/internal/catalog"
	"github.com/okazari/soundguess/internal/match"
	"github.com/okazari/soundguess/internal/provider"
	"github.com/okazari/soundguess/internal/score"
)

// ------------------------------- fakes -------------------------------------

type sentMsg struct {
	channel     string
	ref         string
	content     string
	attachments int
	final       bool
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sentMsg
}

func (s *fakeSender) Send(channelID, ref, content string, attachments ...provider.Artifact) error {
	return s.record(channelID, ref, content, false, attachments)
}

func (s *fakeSender) SendFinal(channelID, ref, content string, attachments ...provider.Artifact) error {
	return s.record(channelID, ref, content, true, attachments)
}

func (s *fakeSender) record(channel, ref, content string, final bool, attachments []provider.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, sentMsg{channel, ref, content, len(attachments), final})
	return nil
}

func (s *fakeSender) all() []sentMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentMsg, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *fakeSender) find(substr string) (sentMsg, bool) {
	for _, m := range s.all() {
		if strings.Contains(m.content, substr) {
			return m, true
		}
	}
	return sentMsg{}, false
}

type fakeStore struct {
	mu   sync.Mutex
	incs []string
	top  []score.Entry
}

func (f *fakeStore) Increment(ctx context.Context, channelID, userID, userName, variant string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incs = append(f.incs, fmt.Sprintf("%s/%s/%s", channelID, userID, variant))
	return nil
}

func (f *fakeStore) TopN(ctx context.Context, channelID, variant string, limit int) ([]score.Entry, error) {
	return f.top, nil
}

func (f *fakeStore) increments() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.incs))
	copy(out, f.incs)
	return out
}

type fakeVariant struct {
	key        string
	begin      []string
	ranking    []string
	cat        *catalog.Catalog
	answerID   catalog.AnswerID
	acquireErr error
}

func (v *fakeVariant) Key() string              { return v.key }
func (v *fakeVariant) BeginPhrases() []string   { return v.begin }
func (v *fakeVariant) RankingPhrases() []string { return v.ranking }

func (v *fakeVariant) Texts() provider.Texts {
	return provider.Texts{
		Begin:     "begin: guess the song",
		Running:   "a round is already running",
		Correct:   "correct: ",
		Incorrect: "wrong: ",
		Timeout:   "timeout: ",
		End:       "answer: ",
		Failure:   "could not start",
	}
}

func (v *fakeVariant) Acquire() (provider.Resource, error) {
	if v.acquireErr != nil {
		return provider.Resource{}, v.acquireErr
	}
	aliases, err := v.cat.Lookup(v.answerID)
	if err != nil {
		return provider.Resource{}, err
	}
	full := []provider.Artifact{{Name: "full.png", MIME: "image/png", Data: []byte{1}}}
	return provider.Resource{ID: v.answerID, Aliases: aliases, Full: full}, nil
}

func (v *fakeVariant) Obfuscate(res provider.Resource) (provider.Artifact, error) {
	return provider.Artifact{Name: "preview.png", MIME: "image/png", Data: []byte{2}}, nil
}

// ------------------------------ fixture ------------------------------------

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	table := `
"a1": ["Alphaone"]
"a2": ["Alphatwo"]
"a3": ["Alphathree"]
"b1": ["Beta", "Bee"]
"z1": ["Zulu"]
`
	require.NoError(t, os.WriteFile(path, []byte(table), 0o644))
	c, err := catalog.Load(path)
	require.NoError(t, err)
	return c
}

func testEngine(t *testing.T, timeout time.Duration, scores score.Store) (*Engine, *fakeSender, *fakeVariant) {
	t.Helper()
	cat := testCatalog(t)
	sender := &fakeSender{}
	v := &fakeVariant{
		key:      "fake",
		begin:    []string{"guess fake"},
		ranking:  []string{"fake ranking"},
		cat:      cat,
		answerID: "b1",
	}
	e := NewEngine(Config{
		Matcher:  match.New(cat),
		Sender:   sender,
		Scores:   scores,
		Variants: []provider.Variant{v},
		Timeout:  timeout,
	})
	return e, sender, v
}

func phaseOf(rd *Round) Phase {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	return rd.phase
}

func waitPhase(t *testing.T, rd *Round, want Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if phaseOf(rd) == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("round never reached phase %v", want)
}

// beginAsync runs Begin in its own goroutine, the way the gateway does,
// and returns the channel its error will arrive on.
func beginAsync(e *Engine, v provider.Variant, ev Event) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- e.Begin(context.Background(), v, ev) }()
	return errc
}

func waitErr(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("begin did not return")
		return nil
	}
}

// ------------------------------- tests -------------------------------------

func TestGuessWinsRound(t *testing.T) {
	store := &fakeStore{}
	e, sender, v := testEngine(t, time.Minute, store)
	rd := e.Registry().GetOrCreate("ch")

	errc := beginAsync(e, v, Event{ChannelID: "ch", UserID: "starter"})
	waitPhase(t, rd, Active)

	err := e.Guess(context.Background(), Event{ChannelID: "ch", UserID: "u1", UserName: "Miku", RawText: "-bee"})
	require.NoError(t, err)
	require.NoError(t, waitErr(t, errc))
	assert.Equal(t, Idle, phaseOf(rd))

	begin, ok := sender.find("begin:")
	require.True(t, ok)
	assert.Equal(t, 1, begin.attachments)

	win, ok := sender.find("correct: **Beta(Bee)**")
	require.True(t, ok)
	assert.Equal(t, 1, win.attachments)

	assert.Equal(t, []string{"ch/u1/fake"}, store.increments())
}

func TestBeginWhileActive(t *testing.T) {
	e, sender, v := testEngine(t, time.Minute, nil)
	rd := e.Registry().GetOrCreate("ch")

	errc := beginAsync(e, v, Event{ChannelID: "ch"})
	waitPhase(t, rd, Active)

	err := e.Begin(context.Background(), v, Event{ChannelID: "ch"})
	assert.ErrorIs(t, err, ErrAlreadyInProgress)
	_, ok := sender.find("already running")
	assert.True(t, ok)

	require.NoError(t, e.End(context.Background(), Event{ChannelID: "ch"}))
	require.NoError(t, waitErr(t, errc))
}

func TestWrongGuessKeepsRoundActive(t *testing.T) {
	e, sender, v := testEngine(t, time.Minute, nil)
	v.answerID = "z1"
	rd := e.Registry().GetOrCreate("ch")

	errc := beginAsync(e, v, Event{ChannelID: "ch"})
	waitPhase(t, rd, Active)

	// Top-3 for "alpha" is all Alpha* entries; the answer is not among them.
	require.NoError(t, e.Guess(context.Background(), Event{ChannelID: "ch", RawText: "-alpha"}))
	assert.Equal(t, Active, phaseOf(rd))

	miss, ok := sender.find("wrong: ")
	require.True(t, ok)
	assert.Contains(t, miss.content, "**Alpha")

	require.NoError(t, e.Guess(context.Background(), Event{ChannelID: "ch", RawText: "-zulu"}))
	require.NoError(t, waitErr(t, errc))
	assert.Equal(t, Idle, phaseOf(rd))
	_, ok = sender.find("correct: **Zulu**")
	assert.True(t, ok)
}

func TestTimeoutReveals(t *testing.T) {
	e, sender, v := testEngine(t, 30*time.Millisecond, nil)
	rd := e.Registry().GetOrCreate("ch")

	require.NoError(t, e.Begin(context.Background(), v, Event{ChannelID: "ch"}))
	assert.Equal(t, Idle, phaseOf(rd))

	finals := 0
	for _, m := range sender.all() {
		if m.final {
			finals++
			assert.Equal(t, "timeout: **Beta(Bee)**", m.content)
			assert.Equal(t, 1, m.attachments)
		}
	}
	assert.Equal(t, 1, finals)
}

func TestManualEnd(t *testing.T) {
	e, sender, v := testEngine(t, time.Minute, nil)
	rd := e.Registry().GetOrCreate("ch")

	errc := beginAsync(e, v, Event{ChannelID: "ch"})
	waitPhase(t, rd, Active)

	require.NoError(t, e.End(context.Background(), Event{ChannelID: "ch"}))
	require.NoError(t, waitErr(t, errc))
	assert.Equal(t, Idle, phaseOf(rd))

	_, ok := sender.find("answer: **Beta(Bee)**")
	assert.True(t, ok)
}

func TestEndWithNoRound(t *testing.T) {
	e, sender, _ := testEngine(t, time.Minute, nil)
	err := e.End(context.Background(), Event{ChannelID: "ch"})
	assert.ErrorIs(t, err, ErrNotInProgress)
	_, ok := sender.find("No round is running")
	assert.True(t, ok)
}

func TestGuessWithNoRoundIsSilent(t *testing.T) {
	e, sender, _ := testEngine(t, time.Minute, nil)
	err := e.Guess(context.Background(), Event{ChannelID: "ch", RawText: "-bee"})
	assert.ErrorIs(t, err, ErrNotInProgress)
	assert.Empty(t, sender.all())
}

func TestAcquireFailureLeavesIdle(t *testing.T) {
	e, sender, v := testEngine(t, time.Minute, nil)
	v.acquireErr = provider.ErrResourceUnavailable
	rd := e.Registry().GetOrCreate("ch")

	err := e.Begin(context.Background(), v, Event{ChannelID: "ch"})
	require.Error(t, err)
	assert.True(t, IsUserFacing(err))
	assert.Equal(t, Idle, phaseOf(rd))
	_, ok := sender.find("could not start")
	assert.True(t, ok)
}

func TestStaleTimerIsInert(t *testing.T) {
	e, sender, v := testEngine(t, time.Minute, nil)
	rd := e.Registry().GetOrCreate("ch")

	errc := beginAsync(e, v, Event{ChannelID: "ch"})
	waitPhase(t, rd, Active)
	rd.mu.Lock()
	gen := rd.gen
	rd.mu.Unlock()

	require.NoError(t, e.Guess(context.Background(), Event{ChannelID: "ch", RawText: "-bee"}))
	require.NoError(t, waitErr(t, errc))
	before := len(sender.all())

	// A timer firing against the resolved generation must do nothing.
	require.NoError(t, e.expire(rd, v, gen))
	assert.Len(t, sender.all(), before)
	assert.Equal(t, Idle, phaseOf(rd))
}

func TestBeginContextCancelAbandons(t *testing.T) {
	e, sender, v := testEngine(t, time.Minute, nil)
	rd := e.Registry().GetOrCreate("ch")

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- e.Begin(ctx, v, Event{ChannelID: "ch"}) }()
	waitPhase(t, rd, Active)

	cancel()
	assert.ErrorIs(t, waitErr(t, errc), context.Canceled)
	assert.Equal(t, Idle, phaseOf(rd))

	// Shutdown is silent: the begin message is the only one sent.
	msgs := sender.all()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].content, "begin:")
}

func TestRoundsAreIndependent(t *testing.T) {
	e, _, v := testEngine(t, time.Minute, nil)
	rd1 := e.Registry().GetOrCreate("ch1")
	rd2 := e.Registry().GetOrCreate("ch2")

	errc1 := beginAsync(e, v, Event{ChannelID: "ch1"})
	errc2 := beginAsync(e, v, Event{ChannelID: "ch2"})
	waitPhase(t, rd1, Active)
	waitPhase(t, rd2, Active)

	require.NoError(t, e.Guess(context.Background(), Event{ChannelID: "ch1", RawText: "-bee"}))
	require.NoError(t, waitErr(t, errc1))
	assert.Equal(t, Idle, phaseOf(rd1))
	assert.Equal(t, Active, phaseOf(rd2))

	require.NoError(t, e.End(context.Background(), Event{ChannelID: "ch2"}))
	require.NoError(t, waitErr(t, errc2))
}

func TestRanking(t *testing.T) {
	store := &fakeStore{top: []score.Entry{
		{UserID: "u1", UserName: "Miku", Wins: 4},
		{UserID: "u2", UserName: "Rin", Wins: 1},
	}}
	e, sender, v := testEngine(t, time.Minute, store)

	require.NoError(t, e.Ranking(context.Background(), v, Event{ChannelID: "ch", UserID: "u2"}))
	msgs := sender.all()
	require.Len(t, msgs, 1)
	assert.True(t, strings.HasPrefix(msgs[0].content, "```\n"))
	assert.Contains(t, msgs[0].content, "Miku")
	assert.Contains(t, msgs[0].content, "Your rank: 2")
}

func TestRankingWithoutScores(t *testing.T) {
	e, sender, v := testEngine(t, time.Minute, nil)
	require.NoError(t, e.Ranking(context.Background(), v, Event{ChannelID: "ch"}))
	assert.Empty(t, sender.all())
}

// --------------------------- state primitives ------------------------------

func TestFireLockedIsOneShot(t *testing.T) {
	r := &Round{}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = make(chan struct{})

	require.NoError(t, r.fireLocked())
	assert.ErrorIs(t, r.fireLocked(), ErrInvariant)
}

func TestFireLockedWithoutSignal(t *testing.T) {
	r := &Round{}
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.ErrorIs(t, r.fireLocked(), ErrInvariant)
}

func TestRegistryClearIdleIsInvariant(t *testing.T) {
	reg := NewRegistry()
	assert.ErrorIs(t, reg.Clear("ch"), ErrInvariant)
}

func TestGetOrCreateReturnsSameRound(t *testing.T) {
	reg := NewRegistry()
	assert.Same(t, reg.GetOrCreate("ch"), reg.GetOrCreate("ch"))
	assert.NotSame(t, reg.GetOrCreate("ch"), reg.GetOrCreate("other"))
}
