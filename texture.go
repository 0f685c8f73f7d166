package planar

import (
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
)

// TexelOrder returns the channel names in the order Interleave packs them:
// "gray" alone, the RGB(A) names in red-green-blue-alpha order, or any
// other one or two channels in sorted order.
func (l *Layer) TexelOrder() ([]string, error) {
	if l.Len() == 1 && l.Has(Gray) {
		return namesGray, nil
	}
	if l.Len() == 4 && l.hasAll(namesRGBA) {
		return namesRGBA, nil
	}
	if l.Len() == 3 && l.hasAll(namesRGB) {
		return namesRGB, nil
	}
	if n := l.Len(); n == 1 || n == 2 {
		return l.Names(), nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnsupportedLayout, l.Names())
}

func (l *Layer) hasAll(names []string) bool {
	for _, name := range names {
		if !l.Has(name) {
			return false
		}
	}
	return true
}

// TextureFormat returns the 32-bit float texture format that holds one texel
// of the layer. Three-channel layers use RGBA32Float with opaque alpha.
func (l *Layer) TextureFormat() (gputypes.TextureFormat, error) {
	order, err := l.TexelOrder()
	if err != nil {
		return gputypes.TextureFormatUndefined, err
	}
	switch len(order) {
	case 1:
		return gputypes.TextureFormatR32Float, nil
	case 2:
		return gputypes.TextureFormatRG32Float, nil
	default:
		return gputypes.TextureFormatRGBA32Float, nil
	}
}

// TextureDescriptor describes a single-mip 2D texture that Interleave's
// output can be copied into.
func (l *Layer) TextureDescriptor(label string) (gputypes.TextureDescriptor, error) {
	format, err := l.TextureFormat()
	if err != nil {
		return gputypes.TextureDescriptor{}, err
	}
	if uint64(l.width) > math.MaxUint32 || uint64(l.height) > math.MaxUint32 {
		return gputypes.TextureDescriptor{}, fmt.Errorf("%w: %dx%d exceeds texture limits",
			ErrInvalidLayout, l.width, l.height)
	}

	return gputypes.TextureDescriptor{
		Label:         label,
		Size:          gputypes.NewExtent2D(uint32(l.width), uint32(l.height)), //nolint:gosec // checked above
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding,
	}, nil
}

// Interleave packs the layer into texel-major order matching TextureFormat
// and returns the packed slice. dst is reused when it has enough capacity.
// Every channel is read-locked for the duration of the copy.
func (l *Layer) Interleave(dst []float32) ([]float32, error) {
	order, err := l.TexelOrder()
	if err != nil {
		return nil, err
	}

	stride := len(order)
	if stride == 3 {
		stride = 4
	}

	guards, err := l.readAll(order...)
	if err != nil {
		return nil, err
	}
	defer releaseAll(guards)

	if err := l.checkGuards(order, guards); err != nil {
		return nil, err
	}

	n := l.width * l.height * stride
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]

	for c, g := range guards {
		for i, v := range g.Raw() {
			dst[i*stride+c] = v
		}
	}
	if len(order) == 3 {
		for i := 3; i < n; i += 4 {
			dst[i] = 1
		}
	}
	return dst, nil
}
