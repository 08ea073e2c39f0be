package captcha

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math/big"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Renderer produces a PNG-encoded captcha image for a given text, the
// default adapter for spec.md §1's "password-based CAPTCHA image
// renderer" out-of-scope external collaborator. The boundary is this
// interface; BasicFontRenderer is the concrete implementation, grounded by
// analogy to the teacher's existing golang.org/x/* dependency family
// (x/crypto, x/net, x/sys, x/text already present as indirects).
type Renderer interface {
	Render(text string) ([]byte, error)
}

const (
	glyphWidth  = basicfont.Face7x13.Advance
	imageHeight = 40
	imagePad    = 10
)

// BasicFontRenderer draws each character of the captcha text at a jittered
// baseline over a noise-line background, using golang.org/x/image's bitmap
// font so no external font file is required.
type BasicFontRenderer struct{}

func (BasicFontRenderer) Render(text string) ([]byte, error) {
	width := imagePad*2 + glyphWidth*len(text)
	img := image.NewRGBA(image.Rect(0, 0, width, imageHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	if err := drawNoiseLines(img, 6); err != nil {
		return nil, err
	}

	face := basicfont.Face7x13
	x := fixed.I(imagePad)
	for _, r := range text {
		yJitter, err := randomInt(6)
		if err != nil {
			return nil, err
		}
		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(color.RGBA{R: 20, G: 40, B: 120, A: 255}),
			Face: face,
			Dot:  fixed.Point26_6{X: x, Y: fixed.I(imageHeight - 10 - yJitter)},
		}
		d.DrawString(string(r))
		x += fixed.I(glyphWidth)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode captcha png: %w", err)
	}
	return buf.Bytes(), nil
}

func drawNoiseLines(img *image.RGBA, count int) error {
	bounds := img.Bounds()
	for i := 0; i < count; i++ {
		y, err := randomInt(bounds.Dy())
		if err != nil {
			return err
		}
		shade, err := randomInt(200)
		if err != nil {
			return err
		}
		c := color.RGBA{R: uint8(shade), G: uint8(shade), B: uint8(shade), A: 255}
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
	return nil
}

func randomInt(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
