package captcha

import (
	"bytes"
	"image/png"
	"testing"
)

func TestBasicFontRendererProducesDecodablePNG(t *testing.T) {
	r := BasicFontRenderer{}
	data, err := r.Render("AB3XQZ")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode rendered png: %v", err)
	}
	if img.Bounds().Dx() <= 0 || img.Bounds().Dy() <= 0 {
		t.Fatalf("rendered image has empty bounds: %v", img.Bounds())
	}
}

func TestBasicFontRendererVariesWidthByTextLength(t *testing.T) {
	r := BasicFontRenderer{}
	short, err := r.Render("AB")
	if err != nil {
		t.Fatalf("Render short: %v", err)
	}
	long, err := r.Render("ABCDEF")
	if err != nil {
		t.Fatalf("Render long: %v", err)
	}
	shortImg, _ := png.Decode(bytes.NewReader(short))
	longImg, _ := png.Decode(bytes.NewReader(long))
	if longImg.Bounds().Dx() <= shortImg.Bounds().Dx() {
		t.Fatalf("expected longer text to produce a wider image")
	}
}
