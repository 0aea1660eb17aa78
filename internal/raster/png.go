package raster

import (
	"fmt"
	"image"
	"image/color"
	_ "image/png"
	"io"

	"github.com/michaelrsweet/pappl-sub004/internal/job"
)

// ProcessPNG implements the PNG ingest path of spec.md §4.C: decode as 8-bit
// gray over a white background, rotate for the requested orientation, scale
// to fit the imageable box while preserving aspect ratio, then drive drv
// once per copy through StartPage/WriteRow/EndPage with ordered dithering.
//
// Scaling and rotation are hand-rolled here rather than via a third-party
// image library: the retrieval pack carries no image-resize/transform
// library (no golang.org/x/image anywhere in the example set), so this
// stays on image/image/color from the standard library, which is the
// minimum needed to decode and sample pixels.
func ProcessPNG(j *job.Job, drv Driver, opts *Options, dev io.Writer, r io.Reader) error {
	src, _, err := image.Decode(r)
	if err != nil {
		return fmt.Errorf("raster: decode png: %w", err)
	}

	gray := toGrayWhiteBG(src)
	gray = rotateGray(gray, opts.Orientation)

	boxW, boxH := opts.ImageableWidth, opts.ImageableHeight
	if boxW <= 0 {
		boxW = gray.Bounds().Dx()
	}
	if boxH <= 0 {
		boxH = gray.Bounds().Dy()
	}

	scaled := scaleToFit(gray, boxW, boxH)

	if !drv.StartJob(j, opts, dev) {
		return fmt.Errorf("raster: driver rejected start-job for job %d", j.ID)
	}

	copies := opts.Copies
	if copies < 1 {
		copies = 1
	}

	for copyNo := 0; copyNo < copies; copyNo++ {
		if j.IsCanceled() {
			break
		}
		if err := emitPage(j, drv, opts, scaled, copyNo+1, boxW, boxH); err != nil {
			drv.EndJob(j, opts)
			return err
		}
	}

	if !drv.EndJob(j, opts) {
		return fmt.Errorf("raster: driver rejected end-job for job %d", j.ID)
	}
	return nil
}

func emitPage(j *job.Job, drv Driver, opts *Options, scaled *image.Gray, pageNo, boxW, boxH int) error {
	if !drv.StartPage(j, opts, pageNo) {
		return fmt.Errorf("raster: driver rejected start-page %d for job %d", pageNo, j.ID)
	}

	yLead := (boxH - scaled.Bounds().Dy()) / 2
	if yLead < 0 {
		yLead = 0
	}
	yTrail := boxH - yLead - scaled.Bounds().Dy()
	if yTrail < 0 {
		yTrail = 0
	}

	blank := make([]byte, (boxW+7)/8)

	// Center the scaled image horizontally, as yLead centers it vertically,
	// so its width is not stretched to boxW.
	imgW := scaled.Bounds().Dx()
	xLead := (boxW - imgW) / 2
	if xLead < 0 {
		xLead = 0
	}

	for y := 0; y < yLead; y++ {
		if !drv.WriteRow(j, opts, y, blank) {
			return fmt.Errorf("raster: driver rejected blank row for job %d", j.ID)
		}
	}

	for y := 0; y < scaled.Bounds().Dy(); y++ {
		if j.IsCanceled() {
			break
		}
		img := ditherImageRow(scaled, y, opts.Dither[y&15], imgW)
		row := make([]byte, (boxW+7)/8)
		for x := 0; x < imgW && xLead+x < boxW; x++ {
			if img[x/8]&(1<<uint(7-x%8)) != 0 {
				row[(xLead+x)/8] |= 1 << uint(7-(xLead+x)%8)
			}
		}
		if !drv.WriteRow(j, opts, yLead+y, row) {
			return fmt.Errorf("raster: driver rejected row %d for job %d", y, j.ID)
		}
	}

	for y := 0; y < yTrail; y++ {
		if !drv.WriteRow(j, opts, yLead+scaled.Bounds().Dy()+y, blank) {
			return fmt.Errorf("raster: driver rejected blank row for job %d", j.ID)
		}
	}

	if !drv.EndPage(j, opts, pageNo) {
		return fmt.Errorf("raster: driver rejected end-page %d for job %d", pageNo, j.ID)
	}
	j.AddImpressions(1)
	return nil
}

// ditherImageRow walks the source row with Bresenham-like error accumulation so a
// source of xsize pixels maps onto boxW output pixels, applying the ordered
// dither threshold row to produce a packed 1-bit-per-pixel output row (spec.md
// §4.C: "xerr += xmod; if xerr >= xsize: xerr -= xsize; step one extra
// pixel").
func ditherImageRow(src *image.Gray, y int, thresholds []byte, boxW int) []byte {
	xsize := src.Bounds().Dx()
	out := make([]byte, (boxW+7)/8)
	if xsize == 0 || boxW == 0 {
		return out
	}

	xmod := xsize % boxW
	xstep := xsize / boxW

	srcX := 0
	xerr := 0
	for outX := 0; outX < boxW; outX++ {
		if srcX >= xsize {
			srcX = xsize - 1
		}
		g := src.GrayAt(src.Bounds().Min.X+srcX, src.Bounds().Min.Y+y).Y
		if g < thresholdAt(thresholds, outX) {
			out[outX/8] |= 1 << uint(7-outX%8)
		}

		srcX += xstep
		xerr += xmod
		if xerr >= boxW {
			xerr -= boxW
			srcX++
		}
	}
	return out
}

func toGrayWhiteBG(src image.Image) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := src.At(x, y).RGBA()
			if a == 0 {
				dst.SetGray(x, y, color.Gray{Y: 255})
				continue
			}
			// Composite over white, then convert to gray.
			af := float64(a) / 65535
			rf := float64(r)/65535*af + 255*(1-af)
			gf := float64(g)/65535*af + 255*(1-af)
			bf := float64(bl)/65535*af + 255*(1-af)
			gray := uint8((0.299*rf + 0.587*gf + 0.114*bf))
			dst.SetGray(x, y, color.Gray{Y: gray})
		}
	}
	return dst
}

func rotateGray(src *image.Gray, o Orientation) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	switch o {
	case Orient0:
		return src
	case Orient180:
		dst := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.SetGray(x, y, src.GrayAt(b.Min.X+w-1-x, b.Min.Y+h-1-y))
			}
		}
		return dst
	case Orient90CW:
		dst := image.NewGray(image.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.SetGray(h-1-y, x, src.GrayAt(b.Min.X+x, b.Min.Y+y))
			}
		}
		return dst
	case Orient90CCW:
		dst := image.NewGray(image.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.SetGray(y, w-1-x, src.GrayAt(b.Min.X+x, b.Min.Y+y))
			}
		}
		return dst
	default:
		return src
	}
}

// scaleToFit nearest-neighbor scales src to fit within boxW x boxH while
// preserving aspect ratio (spec.md §4.C "Scale to fit inside the imageable
// box preserving aspect ratio").
func scaleToFit(src *image.Gray, boxW, boxH int) *image.Gray {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	if sw == 0 || sh == 0 || boxW <= 0 || boxH <= 0 {
		return src
	}

	scale := float64(boxW) / float64(sw)
	if alt := float64(boxH) / float64(sh); alt < scale {
		scale = alt
	}
	dw := int(float64(sw) * scale)
	dh := int(float64(sh) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewGray(image.Rect(0, 0, dw, dh))
	for y := 0; y < dh; y++ {
		sy := y * sh / dh
		for x := 0; x < dw; x++ {
			sx := x * sw / dw
			dst.SetGray(x, y, src.GrayAt(b.Min.X+sx, b.Min.Y+sy))
		}
	}
	return dst
}
