package spectrum

import (
	"sort"
	"time"
)

// Frame is one gate's spectrum at one time step
type Frame struct {
	Time     time.Time
	Spectrum Spectrum
}

// layout is the bin count of each channel of a frame
type layout struct {
	velocity, co, cx int
}

func layoutOf(s Spectrum) layout {
	return layout{velocity: len(s.Velocity), co: len(s.Co), cx: len(s.Cx)}
}

// dominantLayout returns the most common layout of a series. Ties go to the
// layout seen first.
func dominantLayout(frames []Frame) layout {
	counts := make(map[layout]int)
	var (
		best  layout
		bestN int
		order []layout
	)
	for _, f := range frames {
		l := layoutOf(f.Spectrum)
		if counts[l] == 0 {
			order = append(order, l)
		}
		counts[l]++
	}
	for _, l := range order {
		if counts[l] > bestN {
			best, bestN = l, counts[l]
		}
	}
	return best
}

// GridTime averages consecutive frames of a single gate into bins of the given
// interval. Bins are anchored at the earliest frame, power is averaged
// linearly and each output frame is stamped with its bin centre. Bins without
// frames are dropped. A zero interval returns the frames unchanged.
//
// Frames whose bin layout differs from the rest of the series cannot be
// averaged. They are returned in rejected, ordered by time, and the grid is
// built from the remaining frames.
func GridTime(frames []Frame, interval time.Duration) (gridded, rejected []Frame) {
	if interval <= 0 || len(frames) == 0 {
		return frames, nil
	}

	ref := dominantLayout(frames)
	sorted := make([]Frame, 0, len(frames))
	for _, f := range frames {
		if layoutOf(f.Spectrum) != ref {
			rejected = append(rejected, f)
			continue
		}
		sorted = append(sorted, f)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})
	sort.SliceStable(rejected, func(i, j int) bool {
		return rejected[i].Time.Before(rejected[j].Time)
	})
	if len(sorted) == 0 {
		return nil, rejected
	}

	t0 := sorted[0].Time
	var (
		acc   Spectrum
		count int
		bin   int64 = -1
	)

	flush := func() {
		if count == 0 {
			return
		}
		scale := 1 / float64(count)
		for i := range acc.Co {
			acc.Co[i] *= scale
		}
		for i := range acc.Cx {
			acc.Cx[i] *= scale
		}
		centre := t0.Add(time.Duration(bin)*interval + interval/2)
		gridded = append(gridded, Frame{Time: centre, Spectrum: acc})
		count = 0
	}

	for _, f := range sorted {
		b := int64(f.Time.Sub(t0) / interval)
		if b != bin {
			flush()
			bin = b
			acc = f.Spectrum.Clone()
			count = 1
			continue
		}
		for i, v := range f.Spectrum.Co {
			acc.Co[i] += v
		}
		for i, v := range f.Spectrum.Cx {
			acc.Cx[i] += v
		}
		count++
	}
	flush()

	return gridded, rejected
}
