package planar

import (
	"context"
	"fmt"
	"image"
	"maps"
	"slices"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"
)

// Well-known channel names.
const (
	Gray  = "gray"
	Red   = "red"
	Green = "green"
	Blue  = "blue"
	Alpha = "alpha"
)

// Channel name sets for the preset layers.
var (
	namesGray = []string{Gray}
	namesRGB  = []string{Red, Green, Blue}
	namesRGBA = []string{Red, Green, Blue, Alpha}
)

// Layer is a multi-channel raster image: a set of same-sized float32
// channels keyed by name.
//
// A Layer does no locking of its own. The channel map must not be mutated
// (Set, Remove, Close) concurrently with other Layer calls; the channels
// themselves are safe for concurrent use and are locked individually.
type Layer struct {
	channels map[string]*Channel[float32]
	width    int
	height   int
}

// NewLayer creates a layer with one zero-filled channel per name.
//
// Names are compared after Unicode NFC normalization; duplicates collapse
// and the last occurrence wins. An empty name yields ErrInvalidName and an
// invalid size or allocator failure yields an *AllocError. On error no
// channel is left allocated.
func NewLayer(width, height int, names []string, opts ...ChannelOption[float32]) (*Layer, error) {
	if _, err := cellCount[float32](width, height); err != nil {
		return nil, &AllocError{Width: width, Height: height, Err: err}
	}

	l := &Layer{
		channels: make(map[string]*Channel[float32], len(names)),
		width:    width,
		height:   height,
	}

	for _, name := range names {
		key, err := canonicalName(name)
		if err != nil {
			l.Close()
			return nil, err
		}

		ch, err := NewChannel(width, height, opts...)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("planar: channel %q: %w", key, err)
		}

		if prev, ok := l.channels[key]; ok {
			prev.Close()
		}
		l.channels[key] = ch
	}

	return l, nil
}

// NewGray creates a single-channel "gray" layer.
func NewGray(width, height int, opts ...ChannelOption[float32]) (*Layer, error) {
	return NewLayer(width, height, namesGray, opts...)
}

// NewRGB creates a "red", "green", "blue" layer.
func NewRGB(width, height int, opts ...ChannelOption[float32]) (*Layer, error) {
	return NewLayer(width, height, namesRGB, opts...)
}

// NewRGBA creates a "red", "green", "blue", "alpha" layer.
func NewRGBA(width, height int, opts ...ChannelOption[float32]) (*Layer, error) {
	return NewLayer(width, height, namesRGBA, opts...)
}

func canonicalName(name string) (string, error) {
	if name == "" {
		return "", ErrInvalidName
	}
	return norm.NFC.String(name), nil
}

// Width returns the width shared by all channels.
func (l *Layer) Width() int { return l.width }

// Height returns the height shared by all channels.
func (l *Layer) Height() int { return l.height }

// Bounds returns the layer rectangle.
func (l *Layer) Bounds() image.Rectangle { return image.Rect(0, 0, l.width, l.height) }

// Len returns the number of channels.
func (l *Layer) Len() int { return len(l.channels) }

// Names returns the channel names in sorted order.
func (l *Layer) Names() []string {
	return slices.Sorted(maps.Keys(l.channels))
}

// Has reports whether the layer has a channel called name.
func (l *Layer) Has(name string) bool {
	_, ok := l.Get(name)
	return ok
}

// Get returns the channel called name. The returned channel is shared with
// the layer; lock it through its guards to read or write cells.
func (l *Layer) Get(name string) (*Channel[float32], bool) {
	ch, ok := l.channels[norm.NFC.String(name)]
	return ch, ok
}

// Set inserts ch under name, returning the channel it replaced (if any).
// Ownership of the replaced channel passes to the caller.
// ch must have the layer's dimensions.
func (l *Layer) Set(name string, ch *Channel[float32]) (*Channel[float32], error) {
	key, err := canonicalName(name)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, fmt.Errorf("planar: nil channel %q", key)
	}
	if got := ch.Size(); got.X != l.width || got.Y != l.height {
		return nil, fmt.Errorf("%w: channel %q is %dx%d, layer is %dx%d",
			ErrDimensionMismatch, key, got.X, got.Y, l.width, l.height)
	}

	prev := l.channels[key]
	l.channels[key] = ch
	return prev, nil
}

// Remove detaches the channel called name. Ownership passes to the caller.
func (l *Layer) Remove(name string) (*Channel[float32], bool) {
	key := norm.NFC.String(name)
	ch, ok := l.channels[key]
	if ok {
		delete(l.channels, key)
	}
	return ch, ok
}

// Consistent reports the first channel (in name order) whose size no longer
// matches the layer, for example after a reallocating CopyFromSlice.
func (l *Layer) Consistent() error {
	for _, name := range l.Names() {
		if got := l.channels[name].Size(); got.X != l.width || got.Y != l.height {
			return fmt.Errorf("%w: channel %q is %dx%d, layer is %dx%d",
				ErrDimensionMismatch, name, got.X, got.Y, l.width, l.height)
		}
	}
	return nil
}

// Process calls fn for every channel concurrently. The first error cancels
// the context passed to the remaining calls and is returned.
func (l *Layer) Process(ctx context.Context, fn func(ctx context.Context, name string, ch *Channel[float32]) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range l.Names() {
		ch := l.channels[name]
		g.Go(func() error {
			if err := fn(gctx, name, ch); err != nil {
				return fmt.Errorf("planar: channel %q: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Map applies fn to every cell of every channel, channels in parallel and
// chunks within each channel on the worker pool.
func (l *Layer) Map(ctx context.Context, fn PixelFunc[float32], opts ...ProcessOption) error {
	return l.Process(ctx, func(ctx context.Context, _ string, ch *Channel[float32]) error {
		return ch.Map(ctx, fn, opts...)
	})
}

// Close destroys every channel.
//
// Close first write-locks every channel. If any channel still has an
// outstanding guard, the locks taken so far are dropped and Close panics
// with the layer left intact, so it can be closed again once the guard is
// released.
func (l *Layer) Close() {
	held := make([]*Channel[float32], 0, len(l.channels))
	seen := make(map[*Channel[float32]]bool, len(l.channels))
	for _, name := range l.Names() {
		ch := l.channels[name]
		if seen[ch] || ch.Closed() {
			continue
		}
		if !ch.state.TryWrite() {
			for _, h := range held {
				h.state.ReleaseWrite()
			}
			ch.busyPanic(name)
		}
		seen[ch] = true
		held = append(held, ch)
	}

	for _, ch := range held {
		ch.closeHeld()
	}
	clear(l.channels)
}
