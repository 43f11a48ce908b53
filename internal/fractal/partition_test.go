package fractal

import "testing"

func TestPartitionCoversExactlyOnce(t *testing.T) {
	t.Parallel()
	for h := 1; h <= 40; h++ {
		for n := 1; n <= h; n++ {
			ranges := Partition(h, n)
			if len(ranges) != n {
				t.Fatalf("Partition(%d, %d) returned %d ranges", h, n, len(ranges))
			}
			next := 0
			minLen, maxLen := h, 0
			for i, r := range ranges {
				if r.From != next {
					t.Fatalf("Partition(%d, %d) range %d starts at %d, want %d", h, n, i, r.From, next)
				}
				l := r.Len()
				if l < minLen {
					minLen = l
				}
				if l > maxLen {
					maxLen = l
				}
				if i > 0 && l > ranges[i-1].Len() {
					t.Fatalf("Partition(%d, %d) range %d longer than earlier range", h, n, i)
				}
				next = r.To + 1
			}
			if next != h {
				t.Fatalf("Partition(%d, %d) ends at %d, want %d", h, n, next, h)
			}
			if maxLen-minLen > 1 {
				t.Fatalf("Partition(%d, %d) lengths differ by %d", h, n, maxLen-minLen)
			}
		}
	}
}

func TestPartitionClampsAndRejects(t *testing.T) {
	t.Parallel()
	ranges := Partition(3, 8)
	if len(ranges) != 3 {
		t.Fatalf("expected clamp to 3 ranges, got %d", len(ranges))
	}
	for i, r := range ranges {
		if r.From != i || r.To != i {
			t.Fatalf("range %d = %+v", i, r)
		}
	}
	if Partition(0, 4) != nil || Partition(4, 0) != nil {
		t.Fatal("expected nil for non-positive input")
	}
}
