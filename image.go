package planar

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// ErrUnsupportedLayout is returned when a layer's channel set has no
// matching image or texture representation.
var ErrUnsupportedLayout = errors.New("planar: unsupported channel layout")

// Image converts the layer to a standard library image.
//
// A layer with a "gray" channel becomes an *image.Gray16. A layer with
// "red", "green" and "blue" (and optionally "alpha") becomes an
// *image.NRGBA64; a missing alpha is treated as opaque. Cell values are
// clamped to [0, 1].
//
// The channels are read-locked in a fixed order for the duration of the
// copy.
func (l *Layer) Image() (image.Image, error) {
	if ch, ok := l.Get(Gray); ok {
		r := ch.Read()
		defer r.Release()
		if err := l.checkGuards(namesGray, []*ReadGuard[float32]{r}); err != nil {
			return nil, err
		}

		img := image.NewGray16(r.Bounds())
		for y := range r.Height() {
			for x, v := range r.Row(y) {
				img.SetGray16(x, y, color.Gray16{Y: toUnit16(v)})
			}
		}
		return img, nil
	}

	guards, err := l.readAll(namesRGB...)
	if err != nil {
		return nil, err
	}
	defer releaseAll(guards)

	var alpha *ReadGuard[float32]
	if ch, ok := l.Get(Alpha); ok {
		alpha = ch.Read()
		defer alpha.Release()
		if err := l.checkGuards([]string{Alpha}, []*ReadGuard[float32]{alpha}); err != nil {
			return nil, err
		}
	}
	if err := l.checkGuards(namesRGB, guards); err != nil {
		return nil, err
	}

	img := image.NewNRGBA64(l.Bounds())
	for y := range l.height {
		rr, gr, br := guards[0].Row(y), guards[1].Row(y), guards[2].Row(y)
		for x := range l.width {
			a := uint16(0xffff)
			if alpha != nil {
				a = toUnit16(alpha.At(x, y))
			}
			img.SetNRGBA64(x, y, color.NRGBA64{
				R: toUnit16(rr[x]),
				G: toUnit16(gr[x]),
				B: toUnit16(br[x]),
				A: a,
			})
		}
	}
	return img, nil
}

// LayerFromImage builds a layer from img. Grayscale images produce a gray
// layer; everything else produces an RGBA layer with non-premultiplied
// values in [0, 1].
func LayerFromImage(img image.Image, opts ...ChannelOption[float32]) (*Layer, error) {
	b := img.Bounds()
	return layerFromImage(img, b.Dx(), b.Dy(), func(dst draw.Image) {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	}, opts)
}

// LayerFromImageScaled builds a layer of the given size from img, resampling
// with scaler. A nil scaler uses draw.ApproxBiLinear.
func LayerFromImageScaled(img image.Image, width, height int, scaler draw.Scaler, opts ...ChannelOption[float32]) (*Layer, error) {
	if scaler == nil {
		scaler = draw.ApproxBiLinear
	}
	return layerFromImage(img, width, height, func(dst draw.Image) {
		scaler.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	}, opts)
}

func layerFromImage(img image.Image, width, height int, render func(dst draw.Image), opts []ChannelOption[float32]) (*Layer, error) {
	if _, err := cellCount[float32](width, height); err != nil {
		return nil, &AllocError{Width: width, Height: height, Err: err}
	}
	rect := image.Rect(0, 0, width, height)

	if isGrayModel(img.ColorModel()) {
		dst := image.NewGray16(rect)
		render(dst)

		l, err := NewGray(width, height, opts...)
		if err != nil {
			return nil, err
		}
		ch, _ := l.Get(Gray)
		w := ch.Write()
		for y := range height {
			row := w.Row(y)
			for x := range row {
				row[x] = fromUnit16(dst.Gray16At(x, y).Y)
			}
		}
		w.Release()
		return l, nil
	}

	dst := image.NewNRGBA64(rect)
	render(dst)

	l, err := NewRGBA(width, height, opts...)
	if err != nil {
		return nil, err
	}

	guards := make([]*WriteGuard[float32], len(namesRGBA))
	for i, name := range namesRGBA {
		ch, _ := l.Get(name)
		guards[i] = ch.Write()
	}
	for y := range height {
		rr, gr, br, ar := guards[0].Row(y), guards[1].Row(y), guards[2].Row(y), guards[3].Row(y)
		for x := range width {
			c := dst.NRGBA64At(x, y)
			rr[x] = fromUnit16(c.R)
			gr[x] = fromUnit16(c.G)
			br[x] = fromUnit16(c.B)
			ar[x] = fromUnit16(c.A)
		}
	}
	for _, g := range guards {
		g.Release()
	}
	return l, nil
}

func isGrayModel(m color.Model) bool {
	return m == color.GrayModel || m == color.Gray16Model
}

// readAll read-locks the named channels in the given order.
func (l *Layer) readAll(names ...string) ([]*ReadGuard[float32], error) {
	guards := make([]*ReadGuard[float32], 0, len(names))
	for _, name := range names {
		ch, ok := l.Get(name)
		if !ok {
			releaseAll(guards)
			return nil, fmt.Errorf("%w: missing %q channel", ErrUnsupportedLayout, name)
		}
		guards = append(guards, ch.Read())
	}
	return guards, nil
}

// checkGuards verifies that every guarded channel still has the layer size.
func (l *Layer) checkGuards(names []string, guards []*ReadGuard[float32]) error {
	for i, g := range guards {
		if g.Width() != l.width || g.Height() != l.height {
			return fmt.Errorf("%w: channel %q is %dx%d, layer is %dx%d",
				ErrDimensionMismatch, names[i], g.Width(), g.Height(), l.width, l.height)
		}
	}
	return nil
}

func releaseAll(guards []*ReadGuard[float32]) {
	for _, g := range guards {
		g.Release()
	}
}

func toUnit16(v float32) uint16 {
	switch {
	case !(v > 0): // also catches NaN
		return 0
	case v >= 1:
		return 0xffff
	}
	return uint16(v*0xffff + 0.5)
}

func fromUnit16(v uint16) float32 {
	return float32(v) / 0xffff
}
