package ocr

import (
	"bytes"
	"image"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
	"github.com/rotisserie/eris"
)

// pass is one preprocessed variant of the upload handed to Tesseract.
type pass struct {
	name string
	img  func() image.Image
}

// passes lists the variants in the order they are tried. Later ones are
// only built when the earlier ones came back blank.
func (t *Tesseract) passes(src image.Image) []pass {
	var base *image.NRGBA
	enhanced := func() *image.NRGBA {
		if base == nil {
			base = enhance(src, t.opts.MinHeight, t.opts.MaxSide)
		}
		return base
	}
	return []pass{
		{name: "enhanced", img: func() image.Image { return enhanced() }},
		{name: "binarized", img: func() image.Image { return binarize(enhanced(), t.opts.Threshold) }},
		{name: "adaptive", img: func() image.Image { return adaptiveThreshold(enhanced(), 15, 7) }},
	}
}

// recognize runs a single Tesseract pass over img.
func (t *Tesseract) recognize(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", eris.Wrap(err, "ocr: encode png")
	}

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(t.opts.Language); err != nil {
		return "", eris.Wrapf(err, "ocr: set language %q", t.opts.Language)
	}
	if err := client.SetPageSegMode(t.opts.PageSegMode); err != nil {
		return "", eris.Wrap(err, "ocr: set page segmentation mode")
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", eris.Wrap(err, "ocr: set image")
	}
	text, err := client.Text()
	if err != nil {
		return "", eris.Wrap(err, "ocr: tesseract")
	}
	return text, nil
}

// DumpPasses writes every preprocessed variant of data as <dir>/<pass>.png
// and returns the written paths.
func (t *Tesseract) DumpPasses(data []byte, dir string) ([]string, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, eris.Wrap(err, "ocr: decode image")
	}
	var out []string
	for _, p := range t.passes(img) {
		path := filepath.Join(dir, p.name+".png")
		if err := imaging.Save(p.img(), path); err != nil {
			return out, eris.Wrapf(err, "ocr: save %s", path)
		}
		out = append(out, path)
	}
	return out, nil
}
