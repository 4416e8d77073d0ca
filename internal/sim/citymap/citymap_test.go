package citymap

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"skyway.city/internal/sim/world/feature/parking"
)

func TestRaster_OffsetBoundsAndOutOfRange(t *testing.T) {
	img := image.NewRGBA(image.Rect(5, 5, 15, 13))
	img.Set(5, 5, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	r := NewRaster(img)
	if w, h := r.Size(); w != 10 || h != 8 {
		t.Fatalf("size=%dx%d", w, h)
	}
	rr, gg, bb, ok := r.RGBAt(0, 0)
	if !ok || rr != 10 || gg != 20 || bb != 30 {
		t.Fatalf("origin pixel=(%d,%d,%d) ok=%v", rr, gg, bb, ok)
	}
	if _, _, _, ok := r.RGBAt(10, 0); ok {
		t.Fatalf("x=10 should be out of range")
	}
	if parking.LandAt(r, -1, 0) {
		t.Fatalf("out of range is never land")
	}
}

func TestOpen_PNG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 20, G: 60, B: 200, A: 255})
		}
	}
	p := filepath.Join(t.TempDir(), "map.png")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	r, err := Open(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if parking.LandAt(r, 1, 1) {
		t.Fatalf("blue pixel classified as land")
	}
	if r.Digest() == "" {
		t.Fatalf("empty digest")
	}
}

func TestSynthetic_DeterministicWithWaterAndLand(t *testing.T) {
	a := NewSynthetic(300, 200, 11)
	b := NewSynthetic(300, 200, 11)
	land, water := 0, 0
	for y := 0; y < 200; y += 2 {
		for x := 0; x < 300; x += 2 {
			ar, ag, ab, _ := a.RGBAt(x, y)
			br, bg, bb, _ := b.RGBAt(x, y)
			if ar != br || ag != bg || ab != bb {
				t.Fatalf("pixel (%d,%d) differs", x, y)
			}
			if parking.IsLand(ar, ag, ab) {
				land++
			} else {
				water++
			}
		}
	}
	if land == 0 || water == 0 {
		t.Fatalf("land=%d water=%d", land, water)
	}
	if a.Digest() != b.Digest() {
		t.Fatalf("digest mismatch")
	}
}
