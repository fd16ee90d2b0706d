// internal/provider/jacket.go
//
// Jacket (cover image) guess variants: normal 140 px crop, grayscale
// 140 px crop, and the 30 px "hard" crop.

package provider

import (
	"bytes"
	"fmt"
	"image"
	"math/rand"

	"github.com/disintegration/imaging"

	"github.com/okazari/soundguess/internal/catalog"
)

const (
	cropSizeNormal = 140
	cropSizeHard   = 30
)

// Jacket serves a randomly cropped square of a track's cover image.
type Jacket struct {
	key      string
	begin    []string
	ranking  []string
	texts    Texts
	cat      *catalog.Catalog
	lib      Library
	cropSize int
	gray     bool
}

// NewJacket is the normal 140 px crop variant.
func NewJacket(cat *catalog.Catalog, lib Library) *Jacket {
	return &Jacket{
		key:      "jacket",
		begin:    []string{"guess jacket", "jacketguess"},
		ranking:  []string{"jacket ranking"},
		texts:    variantTexts("Jacket guess (random crop)"),
		cat:      cat,
		lib:      lib,
		cropSize: cropSizeNormal,
	}
}

// NewJacketGray is the grayscale 140 px crop variant.
func NewJacketGray(cat *catalog.Catalog, lib Library) *Jacket {
	return &Jacket{
		key:      "jacket_gray",
		begin:    []string{"guess jacket gray", "jacketguess gray"},
		ranking:  []string{"jacket gray ranking"},
		texts:    variantTexts("Jacket guess (grayscale crop)"),
		cat:      cat,
		lib:      lib,
		cropSize: cropSizeNormal,
		gray:     true,
	}
}

// NewJacketHard is the tiny 30 px crop variant.
func NewJacketHard(cat *catalog.Catalog, lib Library) *Jacket {
	return &Jacket{
		key:      "jacket_hard",
		begin:    []string{"guess jacket hard", "jacketguess hard"},
		ranking:  []string{"jacket hard ranking"},
		texts:    variantTexts("Jacket guess (tiny crop)"),
		cat:      cat,
		lib:      lib,
		cropSize: cropSizeHard,
	}
}

func variantTexts(title string) Texts {
	return Texts{
		Begin: title + "\nAnswer with \"-\" + the song name\n\n" +
			"You have 60 seconds\nSend \"endguess\" to stop early",
		Running:    "A round is already running!",
		Correct:    ":white_check_mark: Correct! The answer is ",
		Incorrect:  ":x: Wrong answer, it is not ",
		Timeout:    "Time is up, the answer was: ",
		End:        "The answer was: ",
		NotRunning: "No round is running right now",
		Failure:    "Could not start a round, try again later",
	}
}

func (j *Jacket) Key() string              { return j.key }
func (j *Jacket) BeginPhrases() []string   { return j.begin }
func (j *Jacket) RankingPhrases() []string { return j.ranking }
func (j *Jacket) Texts() Texts             { return j.texts }

// Acquire picks a random track and loads its full cover image.
func (j *Jacket) Acquire() (Resource, error) {
	id, err := j.cat.RandomID()
	if err != nil {
		return Resource{}, err
	}
	aliases, err := j.cat.Lookup(id)
	if err != nil {
		return Resource{}, err
	}
	data, err := j.lib.Jacket(id)
	if err != nil {
		return Resource{}, err
	}
	return Resource{
		ID:      id,
		Aliases: aliases,
		Full:    []Artifact{{Name: "jacket.png", MIME: "image/png", Data: data}},
	}, nil
}

// Obfuscate cuts a random square out of the full cover, optionally
// converting it to grayscale, and re-encodes it as PNG.
func (j *Jacket) Obfuscate(res Resource) (Artifact, error) {
	if len(res.Full) == 0 {
		return Artifact{}, fmt.Errorf("%w: no full artifact", ErrResourceUnavailable)
	}
	img, err := imaging.Decode(bytes.NewReader(res.Full[0].Data))
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: decode jacket: %v", ErrResourceUnavailable, err)
	}
	b := img.Bounds()
	if b.Dx() < j.cropSize || b.Dy() < j.cropSize {
		return Artifact{}, fmt.Errorf("%w: jacket %dx%d smaller than crop %d",
			ErrResourceUnavailable, b.Dx(), b.Dy(), j.cropSize)
	}
	x := b.Min.X + rand.Intn(b.Dx()-j.cropSize+1)
	y := b.Min.Y + rand.Intn(b.Dy()-j.cropSize+1)
	cropped := imaging.Crop(img, image.Rect(x, y, x+j.cropSize, y+j.cropSize))
	if j.gray {
		cropped = imaging.Grayscale(cropped)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, cropped, imaging.PNG); err != nil {
		return Artifact{}, fmt.Errorf("%w: encode preview: %v", ErrResourceUnavailable, err)
	}
	return Artifact{Name: "jacket_cropped.png", MIME: "image/png", Data: buf.Bytes()}, nil
}
