package fractal

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrColorMap = errors.New("invalid color map")

// RGB is one palette colour. Channels are 0-255.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

func (c RGB) String() string { return fmt.Sprintf("%d,%d,%d", c.R, c.G, c.B) }

// Palette is an ordered colour table. It is never mutated after BuildPalette
// returns, so one value can be shared by every worker of a session.
type Palette struct {
	colors []RGB
}

func (p Palette) Len() int { return len(p.colors) }

// At returns entry i. i must be in [0, Len()).
func (p Palette) At(i int) RGB { return p.colors[i] }

// Colors returns a copy of the table.
func (p Palette) Colors() []RGB { return append([]RGB(nil), p.colors...) }

// BuildPalette spreads stops linearly over colorRange entries.
//
// Each consecutive pair of stops gets colorRange/(len(stops)-1) entries; the
// integer-division remainder at the tail repeats the last stop. With fewer
// than two stops every entry is the single stop (black when there is none).
// When there are more segments than entries the first two stops are
// stretched over the whole table.
func BuildPalette(colorRange int, stops []RGB) Palette {
	if colorRange <= 0 {
		return Palette{}
	}
	colors := make([]RGB, colorRange)

	if len(stops) < 2 {
		var fill RGB
		if len(stops) == 1 {
			fill = stops[0]
		}
		for i := range colors {
			colors[i] = fill
		}
		return Palette{colors: colors}
	}

	gap := colorRange / (len(stops) - 1)
	if gap == 0 {
		fillSegment(colors, stops[0], stops[1], colorRange)
		return Palette{colors: colors}
	}

	interval := 0
	last := stops[0]
	for i := 0; i+1 < len(stops) && interval < colorRange; i++ {
		n := gap
		if rest := colorRange - interval; n > rest {
			n = rest
		}
		fillSegment(colors[interval:interval+n], stops[i], stops[i+1], gap)
		interval += n
		last = stops[i+1]
	}
	for ; interval < colorRange; interval++ {
		colors[interval] = last
	}
	return Palette{colors: colors}
}

// fillSegment writes len(dst) entries walking from "from" towards "to" in
// steps of (to-from)/gap, flooring each value.
func fillSegment(dst []RGB, from, to RGB, gap int) {
	dr := (float64(to.R) - float64(from.R)) / float64(gap)
	dg := (float64(to.G) - float64(from.G)) / float64(gap)
	db := (float64(to.B) - float64(from.B)) / float64(gap)

	r, g, b := float64(from.R), float64(from.G), float64(from.B)
	for i := range dst {
		dst[i] = RGB{R: channel(r), G: channel(g), B: channel(b)}
		r += dr
		g += dg
		b += db
	}
}

func channel(v float64) uint8 {
	v = math.Floor(v)
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}

// ParseColorMap parses "r,g,b,r,g,b,..." into stops. A trailing incomplete
// triplet is dropped. Empty text yields no stops.
func ParseColorMap(text string) ([]RGB, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	parts := strings.Split(text, ",")
	n := len(parts) / 3
	stops := make([]RGB, 0, n)
	for i := 0; i < n; i++ {
		var c [3]uint8
		for k := 0; k < 3; k++ {
			raw := strings.TrimSpace(parts[3*i+k])
			v, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: value %d %q: not an integer", ErrColorMap, 3*i+k, raw)
			}
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("%w: value %d out of range 0-255: %d", ErrColorMap, 3*i+k, v)
			}
			c[k] = uint8(v)
		}
		stops = append(stops, RGB{R: c[0], G: c[1], B: c[2]})
	}
	return stops, nil
}

// FormatColorMap is the inverse of ParseColorMap.
func FormatColorMap(stops []RGB) string {
	parts := make([]string, 0, len(stops))
	for _, c := range stops {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, ",")
}
