// internal/provider/provider.go
//
// Variant capability interface and the local asset library.
//
// A Variant supplies everything the round engine needs that differs per
// game mode: trigger phrases, user-facing texts, random resource
// acquisition, and the preview obfuscation step. The engine itself stays
// variant-agnostic.

package provider

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/okazari/soundguess/internal/catalog"
)

// ErrResourceUnavailable reports that an underlying asset could not be
// acquired or obfuscated. Begin surfaces it as a generic failure and the
// round stays Idle.
var ErrResourceUnavailable = errors.New("provider: resource unavailable")

// Artifact is an opaque payload attached to an outbound message.
type Artifact struct {
	Name string
	MIME string
	Data []byte
}

// Texts holds the chat strings of one variant.
type Texts struct {
	Begin      string // round instructions, sent with the preview
	Running    string // begin while a round is active
	Correct    string // prefix of the correct-guess reveal
	Incorrect  string // prefix of the near-miss hint
	Timeout    string // prefix of the timeout reveal
	End        string // prefix of the manual-end reveal
	NotRunning string // end with no round active
	Failure    string // resource acquisition failed
}

// Resource is the outcome of one acquisition: the secret answer and its
// full (unobfuscated) reveal artifacts.
type Resource struct {
	ID      catalog.AnswerID
	Aliases catalog.AliasSet
	Full    []Artifact
}

// Variant is the per-game-mode capability set consumed by the engine.
type Variant interface {
	// Key identifies the variant's leaderboard and log entries.
	Key() string
	// BeginPhrases are the exact-match triggers that start a round.
	BeginPhrases() []string
	// RankingPhrases are the exact-match triggers that show the leaderboard.
	RankingPhrases() []string
	// Texts returns the variant's chat strings.
	Texts() Texts
	// Acquire picks a random answer and loads its full artifacts.
	Acquire() (Resource, error)
	// Obfuscate derives the preview artifact from the full resource.
	// Repeated calls on the same resource yield different random outcomes.
	Obfuscate(Resource) (Artifact, error)
}

// ---------------------------- asset library --------------------------------

// Library resolves answer ids to raw asset bytes.
type Library interface {
	Jacket(id catalog.AnswerID) ([]byte, error)
	Track(id catalog.AnswerID) ([]byte, error)
}

// DirLibrary reads assets from a local directory tree:
//
//	<root>/jackets/jacket_<id>.png
//	<root>/tracks/track_<id>.wav
//
// Loaded bytes are memoized per path, mirroring the upstream on-disk
// cache. Asset download is out of scope; the directory is pre-populated.
type DirLibrary struct {
	root  string
	mu    sync.Mutex
	cache map[string][]byte
}

// NewDirLibrary constructs a library rooted at dir.
func NewDirLibrary(dir string) *DirLibrary {
	return &DirLibrary{root: dir, cache: make(map[string][]byte)}
}

// Jacket returns the cover image bytes for id.
func (l *DirLibrary) Jacket(id catalog.AnswerID) ([]byte, error) {
	return l.load(filepath.Join(l.root, "jackets", fmt.Sprintf("jacket_%s.png", id)))
}

// Track returns the audio track bytes for id.
func (l *DirLibrary) Track(id catalog.AnswerID) ([]byte, error) {
	return l.load(filepath.Join(l.root, "tracks", fmt.Sprintf("track_%s.wav", id)))
}

func (l *DirLibrary) load(path string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.cache[path]; ok {
		return b, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrResourceUnavailable, path, err)
	}
	l.cache[path] = b
	return b, nil
}
