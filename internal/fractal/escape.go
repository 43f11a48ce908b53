package fractal

// IterationsAt iterates z = z*z + c from z = 0 and returns how many steps ran
// before |z|² exceeded 4, or maxIteration if it never did.
func IterationsAt(cReal, cImag float64, maxIteration int) int {
	var x, y float64
	it := 0
	for ; it < maxIteration; it++ {
		xx, yy := x*x, y*y
		if xx+yy > 4 {
			break
		}
		x, y = xx-yy+cReal, 2*x*y+cImag
	}
	return it
}
