package preprocess

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
)

const (
	upscaleFactor  = 2
	medianRadius   = 1.0
	morphRadius    = 1.0
	sharpenSigma   = 1.0
	contrastAmount = 50.0
)

// Native returns the pure-Go registry built on imaging and bild.
// It has no bilateral, adaptive-threshold or clahe step; use the opencv
// registry for those.
func Native() Registry {
	return Registry{
		Grayscale: func(img image.Image) (image.Image, error) {
			return ToGray(img), nil
		},
		Upscale: func(img image.Image) (image.Image, error) {
			b := img.Bounds()
			return imaging.Resize(img, b.Dx()*upscaleFactor, b.Dy()*upscaleFactor, imaging.CatmullRom), nil
		},
		Median: func(img image.Image) (image.Image, error) {
			return ToGray(effect.Median(img, medianRadius)), nil
		},
		Sharpen: func(img image.Image) (image.Image, error) {
			return imaging.Sharpen(img, sharpenSigma), nil
		},
		Contrast: func(img image.Image) (image.Image, error) {
			return imaging.AdjustContrast(img, contrastAmount), nil
		},
		Otsu: func(img image.Image) (image.Image, error) {
			gray := ToGray(img)
			return applyThreshold(gray, OtsuLevel(gray)), nil
		},
		Equalize: func(img image.Image) (image.Image, error) {
			return equalizeHist(ToGray(img)), nil
		},
		Erode: func(img image.Image) (image.Image, error) {
			return ToGray(effect.Erode(img, morphRadius)), nil
		},
		Dilate: func(img image.Image) (image.Image, error) {
			return ToGray(effect.Dilate(img, morphRadius)), nil
		},
		Open: func(img image.Image) (image.Image, error) {
			return ToGray(effect.Dilate(effect.Erode(img, morphRadius), morphRadius)), nil
		},
		Close: func(img image.Image) (image.Image, error) {
			return ToGray(effect.Erode(effect.Dilate(img, morphRadius), morphRadius)), nil
		},
	}
}

// ToGray returns a grayscale copy of img anchored at the origin
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// OtsuLevel computes the threshold maximizing between-class variance
func OtsuLevel(img *image.Gray) uint8 {
	b := img.Bounds()
	total := b.Dx() * b.Dy()

	var histogram [256]int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			histogram[img.GrayAt(x, y).Y]++
		}
	}

	var sumTotal float64
	for i := 0; i < 256; i++ {
		sumTotal += float64(i) * float64(histogram[i])
	}

	var sumB, maxVariance float64
	var wB int
	var level uint8
	for t := 0; t < 256; t++ {
		wB += histogram[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(histogram[t])
		mB := sumB / float64(wB)
		mF := (sumTotal - sumB) / float64(wF)
		variance := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if variance > maxVariance {
			maxVariance = variance
			level = uint8(t)
		}
	}
	return level
}

func applyThreshold(img *image.Gray, level uint8) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if img.GrayAt(b.Min.X+x, b.Min.Y+y).Y > level {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// equalizeHist spreads the gray levels over the full range using the
// cumulative histogram.
func equalizeHist(img *image.Gray) *image.Gray {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if total == 0 {
		return out
	}

	var histogram [256]int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			histogram[img.GrayAt(x, y).Y]++
		}
	}

	var cdf [256]int
	running, cdfMin := 0, 0
	for i := 0; i < 256; i++ {
		running += histogram[i]
		cdf[i] = running
		if cdfMin == 0 && running > 0 {
			cdfMin = running
		}
	}

	var lut [256]uint8
	denom := total - cdfMin
	for i := 0; i < 256; i++ {
		if denom <= 0 {
			lut[i] = uint8(i)
			continue
		}
		v := (cdf[i] - cdfMin) * 255 / denom
		if v < 0 {
			v = 0
		}
		lut[i] = uint8(v)
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.SetGray(x, y, color.Gray{Y: lut[img.GrayAt(b.Min.X+x, b.Min.Y+y).Y]})
		}
	}
	return out
}
