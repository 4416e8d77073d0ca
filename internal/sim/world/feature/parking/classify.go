package parking

// IsLand classifies one 8-bit RGB pixel. Very bright and very dark surfaces
// are land regardless of hue; otherwise any of the three water rules marks
// the pixel as water.
func IsLand(r, g, b uint8) bool {
	ri, gi, bi := int(r), int(g), int(b)
	lum := ri + gi + bi
	if lum > 600 || lum < 150 {
		return true
	}
	dominant := bi > ri && bi > gi
	blueish := bi > ri+20 && bi > gi+20
	dark := dominant && lum < 200
	light := bi > 150 && dominant
	return !(blueish || dark || light)
}

// Pixels is the map raster the allocator samples.
type Pixels interface {
	Size() (w, h int)
	RGBAt(x, y int) (r, g, b uint8, ok bool)
}

// LandAt is false for pixels outside the raster.
func LandAt(px Pixels, x, y int) bool {
	w, h := px.Size()
	if x < 0 || y < 0 || x >= w || y >= h {
		return false
	}
	r, g, b, ok := px.RGBAt(x, y)
	if !ok {
		return false
	}
	return IsLand(r, g, b)
}
