package ocr

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// enhance prepares a photo for Tesseract: grayscale, a little contrast and
// sharpening, and an upscale when the page is too short to read.
func enhance(img image.Image, minHeight, maxSide int) *image.NRGBA {
	if maxSide > 0 {
		b := img.Bounds()
		if b.Dx() > maxSide || b.Dy() > maxSide {
			img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
		}
	}
	gray := imaging.Grayscale(img)
	gray = imaging.AdjustContrast(gray, 15)
	gray = imaging.Sharpen(gray, 0.7)
	if minHeight > 0 && gray.Bounds().Dy() < minHeight {
		gray = imaging.Resize(gray, 0, minHeight, imaging.Lanczos)
	}
	return gray
}

// luma reads the gray level of an NRGBA pixel. After imaging.Grayscale the
// three channels are equal, averaging keeps colour input working too.
func luma(img *image.NRGBA, x, y int) int {
	i := img.PixOffset(x, y)
	p := img.Pix[i : i+3 : i+3]
	return (int(p[0]) + int(p[1]) + int(p[2])) / 3
}

// binarize maps every pixel darker than or equal to threshold to black and
// the rest to white.
func binarize(img *image.NRGBA, threshold int) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := uint8(255)
			if luma(img, x, y) <= threshold {
				v = 0
			}
			out.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return out
}

// adaptiveThreshold compares each pixel against the mean of its window
// minus bias. Window sums come from an integral image.
func adaptiveThreshold(img *image.NRGBA, window, bias int) *image.NRGBA {
	if window < 3 {
		window = 3
	}
	if window%2 == 0 {
		window++
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	// sums[(y+1)*(w+1)+(x+1)] holds the sum of gray levels in [0,x]x[0,y].
	stride := w + 1
	sums := make([]int, stride*(h+1))
	for y := 0; y < h; y++ {
		row := 0
		for x := 0; x < w; x++ {
			row += luma(img, b.Min.X+x, b.Min.Y+y)
			sums[(y+1)*stride+x+1] = sums[y*stride+x+1] + row
		}
	}

	half := window / 2
	for y := 0; y < h; y++ {
		y0, y1 := max(y-half, 0), min(y+half, h-1)
		for x := 0; x < w; x++ {
			x0, x1 := max(x-half, 0), min(x+half, w-1)
			sum := sums[(y1+1)*stride+x1+1] - sums[y0*stride+x1+1] - sums[(y1+1)*stride+x0] + sums[y0*stride+x0]
			mean := sum / ((x1 - x0 + 1) * (y1 - y0 + 1))
			v := uint8(255)
			if luma(img, b.Min.X+x, b.Min.Y+y) < max(mean-bias, 0) {
				v = 0
			}
			out.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return out
}
