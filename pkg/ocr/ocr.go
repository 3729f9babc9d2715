// Package ocr turns an uploaded invoice photo into plain text with Tesseract.
package ocr

import (
	"bytes"
	"context"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Recognizer extracts the text of one image.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, image []byte) (string, error)

// Recognize calls f.
func (f RecognizerFunc) Recognize(ctx context.Context, image []byte) (string, error) {
	return f(ctx, image)
}

// Options tunes preprocessing and Tesseract.
type Options struct {
	Language    string // tesseract traineddata, "spa" by default
	MinHeight   int    // shorter images are upscaled to this height
	MaxSide     int    // larger images are shrunk to fit this box first
	Threshold   int    // gray level cut for the binarized pass
	PageSegMode gosseract.PageSegMode
}

// DefaultOptions reads Spanish invoices.
func DefaultOptions() Options {
	return Options{
		Language:    "spa",
		MinHeight:   1300,
		MaxSide:     3000,
		Threshold:   160,
		PageSegMode: gosseract.PSM_AUTO,
	}
}

// Tesseract is the Recognizer backed by libtesseract.
type Tesseract struct {
	opts Options
}

// NewTesseract fills zero fields of opts with DefaultOptions.
func NewTesseract(opts Options) *Tesseract {
	def := DefaultOptions()
	if opts.Language == "" {
		opts.Language = def.Language
	}
	if opts.MinHeight == 0 {
		opts.MinHeight = def.MinHeight
	}
	if opts.MaxSide == 0 {
		opts.MaxSide = def.MaxSide
	}
	if opts.Threshold == 0 {
		opts.Threshold = def.Threshold
	}
	if opts.PageSegMode == 0 {
		opts.PageSegMode = def.PageSegMode
	}
	return &Tesseract{opts: opts}
}

// Recognize decodes the image (honouring EXIF orientation) and runs the
// passes until one yields text.
func (t *Tesseract) Recognize(ctx context.Context, data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", eris.Wrap(err, "ocr: decode image")
	}
	for _, p := range t.passes(img) {
		if err := ctx.Err(); err != nil {
			return "", eris.Wrap(err, "ocr: cancelled")
		}
		text, err := t.recognize(p.img())
		if err != nil {
			zap.L().Warn("ocr pass failed", zap.String("pass", p.name), zap.Error(err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			zap.L().Debug("ocr pass succeeded", zap.String("pass", p.name), zap.Int("chars", len(text)))
			return text, nil
		}
		zap.L().Debug("ocr pass blank", zap.String("pass", p.name))
	}
	return "", ErrNoText
}
