// Package opencv supplies transform primitives and region detectors backed by
// OpenCV through gocv. Every function converts to a gocv.Mat, runs one OpenCV
// call and converts back, so callers never hold Mats.
package opencv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/menta2k/plate-analyzer/pkg/preprocess"
)

// Parameters match the classic plate preprocessing chain
const (
	bilateralDiameter = 11
	bilateralSigma    = 17
	adaptiveBlockSize = 11
	adaptiveC         = 2
	claheClipLimit    = 2.0
	claheTile         = 8
	upscaleFactor     = 2
	morphKernel       = 1
)

// Registry returns the OpenCV-backed transform registry
func Registry() preprocess.Registry {
	return preprocess.Registry{
		preprocess.Grayscale: grayOp(func(src gocv.Mat, dst *gocv.Mat) {
			src.CopyTo(dst)
		}),
		preprocess.Upscale: grayOp(func(src gocv.Mat, dst *gocv.Mat) {
			gocv.Resize(src, dst, image.Point{}, upscaleFactor, upscaleFactor, gocv.InterpolationCubic)
		}),
		preprocess.Bilateral: grayOp(func(src gocv.Mat, dst *gocv.Mat) {
			gocv.BilateralFilter(src, dst, bilateralDiameter, bilateralSigma, bilateralSigma)
		}),
		preprocess.AdaptiveThreshold: grayOp(func(src gocv.Mat, dst *gocv.Mat) {
			gocv.AdaptiveThreshold(src, dst, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, adaptiveBlockSize, adaptiveC)
		}),
		preprocess.Otsu: grayOp(func(src gocv.Mat, dst *gocv.Mat) {
			gocv.Threshold(src, dst, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
		}),
		preprocess.Equalize: grayOp(func(src gocv.Mat, dst *gocv.Mat) {
			gocv.EqualizeHist(src, dst)
		}),
		preprocess.CLAHE: grayOp(func(src gocv.Mat, dst *gocv.Mat) {
			clahe := gocv.NewCLAHEWithParams(claheClipLimit, image.Pt(claheTile, claheTile))
			defer clahe.Close()
			clahe.Apply(src, dst)
		}),
		preprocess.Erode: morphOp(func(src gocv.Mat, dst *gocv.Mat, kernel gocv.Mat) {
			gocv.Erode(src, dst, kernel)
		}),
		preprocess.Dilate: morphOp(func(src gocv.Mat, dst *gocv.Mat, kernel gocv.Mat) {
			gocv.Dilate(src, dst, kernel)
		}),
		preprocess.Open: morphOp(func(src gocv.Mat, dst *gocv.Mat, kernel gocv.Mat) {
			gocv.MorphologyEx(src, dst, gocv.MorphOpen, kernel)
		}),
		preprocess.Close: morphOp(func(src gocv.Mat, dst *gocv.Mat, kernel gocv.Mat) {
			gocv.MorphologyEx(src, dst, gocv.MorphClose, kernel)
		}),
	}
}

func grayOp(op func(src gocv.Mat, dst *gocv.Mat)) preprocess.Transform {
	return func(img image.Image) (image.Image, error) {
		src, err := grayMat(img)
		if err != nil {
			return nil, err
		}
		defer src.Close()

		dst := gocv.NewMat()
		defer dst.Close()
		op(src, &dst)
		if dst.Empty() {
			return nil, fmt.Errorf("opencv produced an empty image")
		}
		return dst.ToImage()
	}
}

func morphOp(op func(src gocv.Mat, dst *gocv.Mat, kernel gocv.Mat)) preprocess.Transform {
	return grayOp(func(src gocv.Mat, dst *gocv.Mat) {
		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(morphKernel, morphKernel))
		defer kernel.Close()
		op(src, dst, kernel)
	})
}

// grayMat converts an image into a single channel 8-bit Mat
func grayMat(img image.Image) (gocv.Mat, error) {
	if gray, ok := img.(*image.Gray); ok {
		return gocv.ImageGrayToMatGray(gray)
	}
	bgr, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to convert image: %w", err)
	}
	defer bgr.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(bgr, &gray, gocv.ColorBGRToGray)
	return gray, nil
}

// bgrMat converts an image into a 3 channel BGR Mat
func bgrMat(img image.Image) (gocv.Mat, error) {
	if gray, ok := img.(*image.Gray); ok {
		src, err := gocv.ImageGrayToMatGray(gray)
		if err != nil {
			return gocv.Mat{}, err
		}
		defer src.Close()
		dst := gocv.NewMat()
		gocv.CvtColor(src, &dst, gocv.ColorGrayToBGR)
		return dst, nil
	}
	return gocv.ImageToMatRGB(img)
}
