// Package ocr reads text out of warped document features with Tesseract.
package ocr

import (
	"context"
	"image"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Method is the interpretation method name templates use to request OCR.
const Method = "ocr"

// minTextHeight is the height small features are upscaled to before recognition.
const minTextHeight = 150

// Engine is a Tesseract client. It serializes recognitions, so one Engine can
// be shared by concurrent analyses.
type Engine struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewEngine creates an engine for the given Tesseract language (e.g. "eng").
// A non-empty whitelist restricts the recognized characters.
func NewEngine(language, whitelist string) (*Engine, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "set OCR language")
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "set page segmentation mode")
	}
	if whitelist != "" {
		if err := client.SetWhitelist(whitelist); err != nil {
			client.Close()
			return nil, errors.Wrap(err, "set whitelist")
		}
	}
	return &Engine{client: client}, nil
}

// Close releases the Tesseract client.
func (e *Engine) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// Method returns the interpretation method served by the engine.
func (e *Engine) Method() string { return Method }

// Interpret recognizes the text of a feature image.
func (e *Engine) Interpret(ctx context.Context, img gocv.Mat) (any, error) {
	if img.Empty() {
		return nil, errors.New("empty image")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	processed := Preprocess(img)
	defer processed.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, processed)
	if err != nil {
		return nil, errors.Wrap(err, "encode feature image")
	}
	defer buf.Close()

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return nil, errors.Wrap(err, "set image")
	}
	text, err := e.client.Text()
	if err != nil {
		return nil, errors.Wrap(err, "recognize text")
	}
	return CleanText(text), nil
}

// CleanText collapses whitespace runs into single spaces.
func CleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Preprocess upscales small images and binarizes them to dark text on a light
// background with Otsu's threshold. The caller owns the returned Mat.
func Preprocess(img gocv.Mat) gocv.Mat {
	scaled := gocv.NewMat()
	if h := img.Rows(); h < minTextHeight {
		scale := float64(minTextHeight) / float64(h)
		gocv.Resize(img, &scaled, image.Point{}, scale, scale, gocv.InterpolationCubic)
	} else {
		img.CopyTo(&scaled)
	}

	gray := gocv.NewMat()
	switch scaled.Channels() {
	case 1:
		scaled.CopyTo(&gray)
	case 4:
		gocv.CvtColor(scaled, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(scaled, &gray, gocv.ColorBGRToGray)
	}
	scaled.Close()

	binary := gocv.NewMat()
	gocv.Threshold(gray, &binary, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
	gray.Close()

	// Light text on a dark background.
	if white := gocv.CountNonZero(binary); float64(white) < 0.5*float64(binary.Rows()*binary.Cols()) {
		gocv.BitwiseNot(binary, &binary)
	}
	return binary
}
