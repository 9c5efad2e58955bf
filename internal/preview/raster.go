package preview

import (
	"image"
	"image/color"
	"image/draw"
	"io"

	"github.com/chai2010/webp"
	"github.com/golang/geo/r2"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/woozymasta/geoguard/internal/prepare"
)

// Layer is one pass of the raster renderer. Closed segments are filled with
// Fill, every segment is stroked with Stroke when Width is positive.
type Layer struct {
	Fill     color.Color
	Stroke   color.Color
	Segments []prepare.Segment
	Width    float64
}

// Raster draws layers in order onto a w x h image over background.
func Raster(w, h int, background color.Color, layers ...Layer) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	z := vector.NewRasterizer(w, h)
	for _, l := range layers {
		if l.Fill != nil {
			z.Reset(w, h)
			filled := false
			for _, seg := range l.Segments {
				if !seg.Closed {
					continue
				}
				ring(z, seg.Points)
				filled = true
			}
			if filled {
				z.Draw(dst, dst.Bounds(), image.NewUniform(l.Fill), image.Point{})
			}
		}

		if l.Stroke != nil && l.Width > 0 {
			z.Reset(w, h)
			for _, seg := range l.Segments {
				stroke(z, seg, l.Width)
			}
			z.Draw(dst, dst.Bounds(), image.NewUniform(l.Stroke), image.Point{})
		}
	}

	return dst
}

func ring(z *vector.Rasterizer, pts []r2.Point) {
	z.MoveTo(float32(pts[0].X), float32(pts[0].Y))
	for _, p := range pts[1:] {
		z.LineTo(float32(p.X), float32(p.Y))
	}
	z.ClosePath()
}

// stroke adds one quad per edge. All quads share an orientation so that
// overlaps accumulate instead of cancelling.
func stroke(z *vector.Rasterizer, seg prepare.Segment, width float64) {
	pts := seg.Points
	if seg.Closed {
		pts = append(pts[:len(pts):len(pts)], pts[0])
	}

	for i := 1; i < len(pts); i++ {
		a, b := pts[i-1], pts[i]
		d := b.Sub(a)
		if d.Norm() == 0 {
			continue
		}
		n := d.Normalize().Ortho().Mul(width / 2)
		ring(z, []r2.Point{a.Add(n), b.Add(n), b.Sub(n), a.Sub(n)})
	}
}

// Thumbnail scales src so that its longer side is at most maxSide pixels.
func Thumbnail(src image.Image, maxSide int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return src
	}

	if w >= h {
		h = max(1, h*maxSide/w)
		w = maxSide
	} else {
		w = max(1, w*maxSide/h)
		h = maxSide
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	return dst
}

// EncodeWebP writes img as lossy WebP.
func EncodeWebP(w io.Writer, img image.Image, quality float32) error {
	if quality <= 0 {
		quality = 85
	}

	return webp.Encode(w, img, &webp.Options{Lossless: false, Quality: quality})
}
