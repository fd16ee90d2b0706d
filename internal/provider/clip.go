// internal/provider/clip.go
//
// Audio clip guess variants: a random 5-second slice of the track,
// optionally played backwards.
//
// Clips are WAV/PCM so slicing and reversal stay pure Go. The slice
// window starts between 20 s in and 10 s before the end when the track
// is long enough, matching the upstream behavior; shorter tracks fall
// back to any window that fits.

package provider

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/okazari/soundguess/internal/catalog"
)

const (
	clipSeconds   = 5
	clipMinLead   = 20 // earliest slice start, seconds
	clipTailGuard = 10 // keep the slice this far from the end, seconds
)

// Clip serves a short slice of a track's audio.
type Clip struct {
	key     string
	begin   []string
	ranking []string
	texts   Texts
	cat     *catalog.Catalog
	lib     Library
	reverse bool
}

// NewClip is the plain listen-and-guess variant.
func NewClip(cat *catalog.Catalog, lib Library) *Clip {
	return &Clip{
		key:     "clip",
		begin:   []string{"guess clip", "clipguess"},
		ranking: []string{"clip ranking"},
		texts:   variantTexts("Clip guess (random 5s slice)"),
		cat:     cat,
		lib:     lib,
	}
}

// NewClipReverse plays the slice backwards.
func NewClipReverse(cat *catalog.Catalog, lib Library) *Clip {
	return &Clip{
		key:     "clip_reverse",
		begin:   []string{"guess clip reverse", "clipguess reverse"},
		ranking: []string{"clip reverse ranking"},
		texts:   variantTexts("Clip guess (reversed 5s slice)"),
		cat:     cat,
		lib:     lib,
		reverse: true,
	}
}

func (c *Clip) Key() string              { return c.key }
func (c *Clip) BeginPhrases() []string   { return c.begin }
func (c *Clip) RankingPhrases() []string { return c.ranking }
func (c *Clip) Texts() Texts             { return c.texts }

// Acquire picks a random track and loads its full audio, plus the cover
// image when one exists so the reveal can show both.
func (c *Clip) Acquire() (Resource, error) {
	id, err := c.cat.RandomID()
	if err != nil {
		return Resource{}, err
	}
	aliases, err := c.cat.Lookup(id)
	if err != nil {
		return Resource{}, err
	}
	track, err := c.lib.Track(id)
	if err != nil {
		return Resource{}, err
	}
	full := []Artifact{}
	if jacket, err := c.lib.Jacket(id); err == nil {
		full = append(full, Artifact{Name: "jacket.png", MIME: "image/png", Data: jacket})
	}
	full = append(full, Artifact{Name: "track.wav", MIME: "audio/wav", Data: track})
	return Resource{ID: id, Aliases: aliases, Full: full}, nil
}

// Obfuscate slices a random 5-second window out of the track's PCM data
// and re-encodes it, reversing the sample frames for the reverse variant.
func (c *Clip) Obfuscate(res Resource) (Artifact, error) {
	var track []byte
	for _, a := range res.Full {
		if a.MIME == "audio/wav" {
			track = a.Data
		}
	}
	if track == nil {
		return Artifact{}, fmt.Errorf("%w: no audio artifact", ErrResourceUnavailable)
	}

	dec := wav.NewDecoder(bytes.NewReader(track))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: decode track: %v", ErrResourceUnavailable, err)
	}
	channels := buf.Format.NumChannels
	rate := buf.Format.SampleRate
	if channels <= 0 || rate <= 0 {
		return Artifact{}, fmt.Errorf("%w: malformed wav header", ErrResourceUnavailable)
	}

	frames := len(buf.Data) / channels
	clipFrames := clipSeconds * rate
	start := 0
	switch {
	case frames <= clipFrames:
		clipFrames = frames
	default:
		lo := clipMinLead * rate
		hi := frames - clipTailGuard*rate
		if hi < lo || hi-lo < 1 {
			lo, hi = 0, frames-clipFrames
		}
		if hi > frames-clipFrames {
			hi = frames - clipFrames
		}
		if hi > lo {
			start = lo + rand.Intn(hi-lo+1)
		} else {
			start = lo
		}
	}

	data := make([]int, clipFrames*channels)
	copy(data, buf.Data[start*channels:(start+clipFrames)*channels])
	if c.reverse {
		reverseFrames(data, channels)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	out := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}

	var ws writeSeekBuffer
	enc := wav.NewEncoder(&ws, rate, bitDepth, channels, 1)
	if err := enc.Write(out); err != nil {
		return Artifact{}, fmt.Errorf("%w: encode clip: %v", ErrResourceUnavailable, err)
	}
	if err := enc.Close(); err != nil {
		return Artifact{}, fmt.Errorf("%w: finalize clip: %v", ErrResourceUnavailable, err)
	}
	return Artifact{Name: "clip.wav", MIME: "audio/wav", Data: ws.Bytes()}, nil
}

// reverseFrames flips the order of sample frames in place, keeping the
// channel layout inside each frame intact.
func reverseFrames(data []int, channels int) {
	frames := len(data) / channels
	for i, j := 0, frames-1; i < j; i, j = i+1, j-1 {
		for ch := 0; ch < channels; ch++ {
			data[i*channels+ch], data[j*channels+ch] = data[j*channels+ch], data[i*channels+ch]
		}
	}
}

// ------------------------ in-memory write seeker ---------------------------

// writeSeekBuffer adapts a byte slice to io.WriteSeeker; the wav encoder
// seeks back to patch chunk sizes on Close.
type writeSeekBuffer struct {
	buf []byte
	pos int
}

func (b *writeSeekBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.buf) {
		grown := make([]byte, need)
		copy(grown, b.buf)
		b.buf = grown
	}
	copy(b.buf[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *writeSeekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = b.pos + int(offset)
	case io.SeekEnd:
		next = len(b.buf) + int(offset)
	default:
		return 0, fmt.Errorf("seek: bad whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("seek: negative position %d", next)
	}
	b.pos = next
	return int64(next), nil
}

// Bytes returns the encoded file contents.
func (b *writeSeekBuffer) Bytes() []byte { return b.buf }
