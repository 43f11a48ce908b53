package fractal

// LineRange is an inclusive band of image rows.
type LineRange struct {
	From int `json:"lineFrom"`
	To   int `json:"lineTo"`
}

func (r LineRange) Len() int {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// Partition splits rows [0, pixelHeight) into threadCount contiguous ranges.
// Ranges differ by at most one row; the earliest ranges take the remainder.
// threadCount is clamped to pixelHeight so no range is empty.
func Partition(pixelHeight, threadCount int) []LineRange {
	if pixelHeight <= 0 || threadCount <= 0 {
		return nil
	}
	if threadCount > pixelHeight {
		threadCount = pixelHeight
	}
	base, extra := pixelHeight/threadCount, pixelHeight%threadCount

	out := make([]LineRange, 0, threadCount)
	from := 0
	for i := 0; i < threadCount; i++ {
		n := base
		if i < extra {
			n++
		}
		out = append(out, LineRange{From: from, To: from + n - 1})
		from += n
	}
	return out
}
