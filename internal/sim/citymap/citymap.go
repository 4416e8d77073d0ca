// Package citymap adapts city map rasters to the pixel source the parking
// allocator samples.
package citymap

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"skyway.city/internal/sim/world/logic/mathx"
)

// PixelSource is an 8-bit RGB raster addressed in city units.
type PixelSource interface {
	Size() (w, h int)
	RGBAt(x, y int) (r, g, b uint8, ok bool)
	Digest() string
}

// Raster is a decoded map image flattened to RGBA.
type Raster struct {
	rgba   *image.RGBA
	digest string
}

func NewRaster(img image.Image) *Raster {
	rgba := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	sum := sha256.Sum256(rgba.Pix)
	return &Raster{rgba: rgba, digest: hex.EncodeToString(sum[:])}
}

// Open decodes a PNG or JPEG map.
func Open(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", path, err)
	}
	return NewRaster(img), nil
}

func (r *Raster) Size() (int, int) {
	b := r.rgba.Bounds()
	return b.Dx(), b.Dy()
}

func (r *Raster) RGBAt(x, y int) (uint8, uint8, uint8, bool) {
	if !(image.Point{X: x, Y: y}).In(r.rgba.Bounds()) {
		return 0, 0, 0, false
	}
	c := r.rgba.RGBAAt(x, y)
	return c.R, c.G, c.B, true
}

func (r *Raster) Digest() string { return r.digest }

// Synthetic draws a river and a few lakes from a seed. Same seed, same map.
type Synthetic struct {
	w, h  int
	seed  int64
	lakes []lake
}

type lake struct {
	x, y, r float64
}

var (
	waterRGB = [3]uint8{30, 80, 190}
	landRGB  = [3]uint8{120, 120, 120}
	parkRGB  = [3]uint8{70, 140, 70}
)

func NewSynthetic(w, h int, seed uint64) *Synthetic {
	s := &Synthetic{w: w, h: h, seed: int64(seed)}
	n := 1 + int(mathx.Hash2(s.seed, 1, 1)%3)
	for i := 0; i < n; i++ {
		hx := mathx.Hash2(s.seed, i, 2)
		hy := mathx.Hash2(s.seed, i, 3)
		hr := mathx.Hash2(s.seed, i, 4)
		s.lakes = append(s.lakes, lake{
			x: float64(hx % uint64(max(w, 1))),
			y: float64(hy % uint64(max(h, 1))),
			r: float64(min(w, h)) * (0.04 + float64(hr%6)/100),
		})
	}
	return s
}

func (s *Synthetic) Size() (int, int) { return s.w, s.h }

func (s *Synthetic) RGBAt(x, y int) (uint8, uint8, uint8, bool) {
	if x < 0 || y < 0 || x >= s.w || y >= s.h {
		return 0, 0, 0, false
	}
	c := landRGB
	switch {
	case s.water(float64(x), float64(y)):
		c = waterRGB
	case mathx.Hash2(s.seed, x/16, y/16)%7 == 0:
		c = parkRGB
	}
	return c[0], c[1], c[2], true
}

func (s *Synthetic) water(x, y float64) bool {
	for _, l := range s.lakes {
		if mathx.Dist(x, y, l.x, l.y) < l.r {
			return true
		}
	}
	// River: a sine band crossing the map left to right.
	phase := float64(mathx.Hash2(s.seed, 0, 5)%628) / 100
	center := float64(s.h)*0.5 + float64(s.h)*0.2*math.Sin(x/float64(max(s.w, 1))*2*math.Pi+phase)
	half := math.Max(3, float64(s.h)*0.03)
	return math.Abs(y-center) < half
}

func (s *Synthetic) Digest() string {
	return fmt.Sprintf("synthetic-%dx%d-%d", s.w, s.h, uint64(s.seed))
}
