package fractal

import (
	"errors"
	"testing"
)

func TestBuildPaletteSingleAndNoStops(t *testing.T) {
	t.Parallel()
	red := RGB{R: 255}
	p := BuildPalette(8, []RGB{red})
	if p.Len() != 8 {
		t.Fatalf("Len = %d, want 8", p.Len())
	}
	for i := 0; i < p.Len(); i++ {
		if p.At(i) != red {
			t.Fatalf("entry %d = %v, want %v", i, p.At(i), red)
		}
	}

	p = BuildPalette(3, nil)
	for i := 0; i < p.Len(); i++ {
		if p.At(i) != (RGB{}) {
			t.Fatalf("entry %d = %v, want black", i, p.At(i))
		}
	}

	if BuildPalette(0, []RGB{red}).Len() != 0 {
		t.Fatal("expected empty palette for colorRange 0")
	}
}

func TestBuildPaletteExactSteps(t *testing.T) {
	t.Parallel()
	p := BuildPalette(5, []RGB{{0, 0, 0}, {255, 255, 255}})
	want := []uint8{0, 51, 102, 153, 204}
	for i, v := range want {
		if got := p.At(i); got != (RGB{v, v, v}) {
			t.Fatalf("entry %d = %v, want %d", i, got, v)
		}
	}
}

func TestBuildPaletteMonotonicSegments(t *testing.T) {
	t.Parallel()
	stops := []RGB{{255, 0, 0}, {0, 0, 255}, {0, 255, 0}}
	tests := []struct {
		name       string
		colorRange int
	}{
		{name: "even", colorRange: 16},
		{name: "remainder", colorRange: 17},
		{name: "large", colorRange: 1000},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := BuildPalette(tt.colorRange, stops)
			if p.Len() != tt.colorRange {
				t.Fatalf("Len = %d, want %d", p.Len(), tt.colorRange)
			}
			if p.At(0) != stops[0] {
				t.Fatalf("first entry = %v, want %v", p.At(0), stops[0])
			}
			gap := tt.colorRange / (len(stops) - 1)
			for seg := 0; seg < len(stops)-1; seg++ {
				from, to := stops[seg], stops[seg+1]
				prev := p.At(seg * gap)
				for i := seg * gap; i < (seg+1)*gap; i++ {
					c := p.At(i)
					if !between(c.R, from.R, to.R) || !between(c.G, from.G, to.G) || !between(c.B, from.B, to.B) {
						t.Fatalf("entry %d = %v outside %v..%v", i, c, from, to)
					}
					if !sameDirection(prev.R, c.R, from.R, to.R) || !sameDirection(prev.B, c.B, from.B, to.B) {
						t.Fatalf("entry %d = %v not monotonic after %v", i, c, prev)
					}
					prev = c
				}
			}
			for i := (len(stops) - 1) * gap; i < tt.colorRange; i++ {
				if p.At(i) != stops[len(stops)-1] {
					t.Fatalf("remainder entry %d = %v, want last stop", i, p.At(i))
				}
			}
		})
	}
}

func TestBuildPaletteMoreStopsThanEntries(t *testing.T) {
	t.Parallel()
	stops := []RGB{{0, 0, 0}, {100, 100, 100}, {1, 2, 3}, {4, 5, 6}}
	p := BuildPalette(2, stops)
	if p.Len() != 2 {
		t.Fatalf("Len = %d, want 2", p.Len())
	}
	if p.At(0) != stops[0] || p.At(1) != (RGB{50, 50, 50}) {
		t.Fatalf("unexpected palette: %v", p.Colors())
	}
}

func between(v, a, b uint8) bool {
	if a > b {
		a, b = b, a
	}
	return v >= a && v <= b
}

func sameDirection(prev, cur, from, to uint8) bool {
	if from <= to {
		return cur >= prev
	}
	return cur <= prev
}

func TestParseColorMap(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		text    string
		want    []RGB
		wantErr bool
	}{
		{name: "empty", text: ""},
		{name: "two stops", text: "255,0,0, 0,0,255", want: []RGB{{255, 0, 0}, {0, 0, 255}}},
		{name: "trailing partial dropped", text: "255,0,0,0,255", want: []RGB{{255, 0, 0}}},
		{name: "not a number", text: "1,2,x", wantErr: true},
		{name: "out of range", text: "256,0,0", wantErr: true},
		{name: "negative", text: "0,-1,0", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseColorMap(tt.text)
			if tt.wantErr {
				if !errors.Is(err, ErrColorMap) {
					t.Fatalf("ParseColorMap(%q) error = %v, want ErrColorMap", tt.text, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseColorMap(%q) error: %v", tt.text, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseColorMap(%q) = %v, want %v", tt.text, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("stop %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}

	if s := FormatColorMap([]RGB{{1, 2, 3}, {4, 5, 6}}); s != "1,2,3,4,5,6" {
		t.Fatalf("FormatColorMap = %q", s)
	}
}
