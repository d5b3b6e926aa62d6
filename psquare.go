package audiograph

// quantile is a streaming P-square estimator (Jain and Chlamtac, 1985) of a
// single quantile: O(1) update and retrieval with five markers and no stored
// observations. Not safe for concurrent use.
type quantile struct {
	height [5]float64 // marker heights
	want   [5]float64 // desired marker positions
	step   [5]float64 // desired position increments
	pos    [5]int     // actual marker positions
	p      float64
	count  int
}

func newQuantile(p float64) quantile {
	p = min(max(p, 0), 1)
	return quantile{
		p:    p,
		step: [5]float64{0, p / 2, p, (1 + p) / 2, 1},
	}
}

func (x *quantile) observe(v float64) {
	x.count++
	if x.count <= 5 {
		// markers start as the sorted first five observations
		i := x.count - 1
		for ; i > 0 && x.height[i-1] > v; i-- {
			x.height[i] = x.height[i-1]
		}
		x.height[i] = v
		if x.count == 5 {
			x.pos = [5]int{0, 1, 2, 3, 4}
			x.want = [5]float64{0, 2 * x.p, 4 * x.p, 2 + 2*x.p, 4}
		}
		return
	}

	var cell int
	switch {
	case v < x.height[0]:
		x.height[0] = v
	case v >= x.height[4]:
		x.height[4] = v
		cell = 3
	default:
		for cell < 3 && v >= x.height[cell+1] {
			cell++
		}
	}
	for i := cell + 1; i < 5; i++ {
		x.pos[i]++
	}
	for i := range x.want {
		x.want[i] += x.step[i]
	}

	for i := 1; i < 4; i++ {
		d := x.want[i] - float64(x.pos[i])
		if !(d >= 1 && x.pos[i+1]-x.pos[i] > 1) && !(d <= -1 && x.pos[i-1]-x.pos[i] < -1) {
			continue
		}
		dir := 1
		if d < 0 {
			dir = -1
		}
		if h := x.parabolic(i, dir); x.height[i-1] < h && h < x.height[i+1] {
			x.height[i] = h
		} else {
			x.height[i] = x.linear(i, dir)
		}
		x.pos[i] += dir
	}
}

func (x *quantile) parabolic(i, dir int) float64 {
	d := float64(dir)
	n, lo, hi := float64(x.pos[i]), float64(x.pos[i-1]), float64(x.pos[i+1])
	return x.height[i] + d/(hi-lo)*
		((n-lo+d)*(x.height[i+1]-x.height[i])/(hi-n)+
			(hi-n-d)*(x.height[i]-x.height[i-1])/(n-lo))
}

func (x *quantile) linear(i, dir int) float64 {
	j := i + dir
	return x.height[i] + float64(dir)*(x.height[j]-x.height[i])/float64(x.pos[j]-x.pos[i])
}

// value returns the current estimate. With fewer than five observations it
// is the nearest-rank value of those seen.
func (x *quantile) value() float64 {
	switch {
	case x.count == 0:
		return 0
	case x.count < 5:
		// height holds the sorted observations so far
		return x.height[int(float64(x.count-1)*x.p)]
	default:
		return x.height[2]
	}
}
