// Package fingerprint derives a perceptual cache key from image content.
//
// The image is downscaled to 32x32 grayscale and each pixel contributes one
// bit: set when brighter than the mean. The hash is lossy, so different
// images with the same coarse layout can share a fingerprint.
package fingerprint

import (
	"encoding/hex"
	"image"
	"math/bits"

	"github.com/disintegration/imaging"
)

// Side is the edge length of the downsized image
const Side = 32

// Fingerprint holds Side*Side bits
type Fingerprint [Side * Side / 64]uint64

// Compute returns the fingerprint of img
func Compute(img image.Image) Fingerprint {
	var fp Fingerprint
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return fp
	}

	small := imaging.Grayscale(imaging.Resize(img, Side, Side, imaging.Box))

	var sum int
	values := make([]uint8, 0, Side*Side)
	for y := 0; y < Side; y++ {
		for x := 0; x < Side; x++ {
			v := small.Pix[y*small.Stride+x*4]
			values = append(values, v)
			sum += int(v)
		}
	}

	// compare against the mean scaled by the pixel count to stay in integers
	for i, v := range values {
		if int(v)*len(values) > sum {
			fp[i/64] |= 1 << (uint(i) % 64)
		}
	}
	return fp
}

// String returns the fingerprint as hex
func (f Fingerprint) String() string {
	buf := make([]byte, 0, len(f)*8)
	for _, w := range f {
		for shift := 56; shift >= 0; shift -= 8 {
			buf = append(buf, byte(w>>uint(shift)))
		}
	}
	return hex.EncodeToString(buf)
}

// Distance returns the number of differing bits
func (f Fingerprint) Distance(other Fingerprint) int {
	d := 0
	for i := range f {
		d += bits.OnesCount64(f[i] ^ other[i])
	}
	return d
}
