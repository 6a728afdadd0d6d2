package spectrum

import (
	"errors"
	"math"
	"testing"
	"time"
)

func axis(n int, lo, hi float64) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return v
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		input     Spectrum
		requireCx bool
		wantErr   bool
	}{
		{
			name:  "valid co only",
			input: Spectrum{Velocity: []float64{-1, 0, 1}, Co: []float64{1, 2, 1}},
		},
		{
			name:    "empty axis",
			input:   Spectrum{},
			wantErr: true,
		},
		{
			name:    "length mismatch",
			input:   Spectrum{Velocity: []float64{-1, 0, 1}, Co: []float64{1, 2}},
			wantErr: true,
		},
		{
			name:    "non-monotonic axis",
			input:   Spectrum{Velocity: []float64{-1, 1, 0}, Co: []float64{1, 2, 1}},
			wantErr: true,
		},
		{
			name:    "repeated velocity",
			input:   Spectrum{Velocity: []float64{-1, 0, 0}, Co: []float64{1, 2, 1}},
			wantErr: true,
		},
		{
			name:    "NaN power",
			input:   Spectrum{Velocity: []float64{-1, 0, 1}, Co: []float64{1, math.NaN(), 1}},
			wantErr: true,
		},
		{
			name:    "negative power",
			input:   Spectrum{Velocity: []float64{-1, 0, 1}, Co: []float64{1, -2, 1}},
			wantErr: true,
		},
		{
			name:      "cross channel required",
			input:     Spectrum{Velocity: []float64{-1, 0, 1}, Co: []float64{1, 2, 1}},
			requireCx: true,
			wantErr:   true,
		},
		{
			name:    "cross channel length mismatch",
			input:   Spectrum{Velocity: []float64{-1, 0, 1}, Co: []float64{1, 2, 1}, Cx: []float64{1}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate(tt.requireCx)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSpectrum) {
					t.Errorf("expected ErrInvalidSpectrum, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestShiftVelocity(t *testing.T) {
	s := Spectrum{Velocity: axis(5, -2, 2), Co: []float64{1, 1, 5, 1, 1}}

	shifted := s.ShiftVelocity(2, 0)
	// resolution is 1 m/s so two bins shift by 2 m/s
	if shifted.Velocity[0] != 0 || shifted.Velocity[4] != 4 {
		t.Errorf("unexpected shifted axis %v", shifted.Velocity)
	}
	if s.Velocity[0] != -2 {
		t.Error("input spectrum was modified")
	}

	scaled := s.ShiftVelocity(-1, 0.5)
	if math.Abs(scaled.Velocity[2]-(-0.5)) > 1e-12 {
		t.Errorf("centre bin = %v, want -0.5", scaled.Velocity[2])
	}
}

func TestConvolveClampsEdges(t *testing.T) {
	x := []float64{4, 0, 0, 0, 8}
	got := Convolve(x, StandardKernel)
	want := []float64{3, 1, 0, 2, 6}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("bin %d: got %v, want %v", i, got[i], want[i])
		}
	}

	// a constant signal is unchanged by any normalized kernel
	flat := []float64{2, 2, 2, 2, 2, 2, 2, 2}
	for _, k := range [][]float64{StandardKernel, BroadKernel, Triangular(3)} {
		for i, v := range Convolve(flat, k) {
			if math.Abs(v-2) > 1e-12 {
				t.Errorf("kernel %v bin %d: got %v", k, i, v)
			}
		}
	}
}

func TestTriangular(t *testing.T) {
	k := Triangular(2)
	want := []float64{1.0 / 9, 2.0 / 9, 3.0 / 9, 2.0 / 9, 1.0 / 9}
	if len(k) != len(want) {
		t.Fatalf("len = %d, want %d", len(k), len(want))
	}
	for i := range want {
		if math.Abs(k[i]-want[i]) > 1e-12 {
			t.Errorf("tap %d: got %v, want %v", i, k[i], want[i])
		}
	}
	if k := Triangular(0); len(k) != 1 || k[0] != 1 {
		t.Errorf("Triangular(0) = %v", k)
	}
}

func TestSavitzkyGolay(t *testing.T) {
	tests := []struct {
		name   string
		window int
		order  int
		want   []float64
	}{
		{
			name:   "moving average",
			window: 3,
			order:  0,
			want:   []float64{1.0 / 3, 1.0 / 3, 1.0 / 3},
		},
		{
			name:   "linear fit equals moving average",
			window: 5,
			order:  1,
			want:   []float64{0.2, 0.2, 0.2, 0.2, 0.2},
		},
		{
			name:   "quadratic five point",
			window: 5,
			order:  2,
			want:   []float64{-3.0 / 35, 12.0 / 35, 17.0 / 35, 12.0 / 35, -3.0 / 35},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := SavitzkyGolay(tt.window, tt.order)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for i := range tt.want {
				if math.Abs(k[i]-tt.want[i]) > 1e-9 {
					t.Errorf("tap %d: got %v, want %v", i, k[i], tt.want[i])
				}
			}
		})
	}

	if _, err := SavitzkyGolay(5, 5); err == nil {
		t.Error("expected error for order >= window")
	}
	if _, err := SavitzkyGolay(4, 1); err == nil {
		t.Error("expected error for even window")
	}
}

func TestGridTime(t *testing.T) {
	t0 := time.Date(2019, 2, 19, 12, 0, 0, 0, time.UTC)
	frame := func(offset time.Duration, co float64) Frame {
		return Frame{
			Time:     t0.Add(offset),
			Spectrum: Spectrum{Velocity: []float64{-1, 0, 1}, Co: []float64{co, co, co}, Cx: []float64{co / 10, co / 10, co / 10}},
		}
	}

	frames := []Frame{
		frame(2*time.Second, 3),
		frame(0, 1),
		frame(4*time.Second, 5),
		frame(13*time.Second, 7),
	}

	out, rejected := GridTime(frames, 5*time.Second)
	if len(rejected) != 0 {
		t.Fatalf("unexpected rejected frames %v", rejected)
	}
	// bins [0,5) and [10,15); [5,10) is empty and dropped
	if len(out) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(out))
	}
	if !out[0].Time.Equal(t0.Add(2500*time.Millisecond)) || !out[1].Time.Equal(t0.Add(12500*time.Millisecond)) {
		t.Errorf("unexpected bin centres %v, %v", out[0].Time, out[1].Time)
	}
	if math.Abs(out[0].Spectrum.Co[1]-3) > 1e-12 || math.Abs(out[0].Spectrum.Cx[1]-0.3) > 1e-12 {
		t.Errorf("first bin average co=%v cx=%v", out[0].Spectrum.Co[1], out[0].Spectrum.Cx[1])
	}
	if out[1].Spectrum.Co[0] != 7 {
		t.Errorf("second bin co = %v, want 7", out[1].Spectrum.Co[0])
	}
	if frames[1].Spectrum.Co[0] != 1 {
		t.Error("input frames were modified")
	}

	same, rejected := GridTime(frames, 0)
	if len(rejected) != 0 || len(same) != len(frames) {
		t.Errorf("zero interval should pass frames through, got %d frames, %d rejected", len(same), len(rejected))
	}
}

func TestGridTimeRejectsMismatchedLayout(t *testing.T) {
	t0 := time.Date(2019, 2, 19, 12, 0, 0, 0, time.UTC)
	frame := func(offset time.Duration, bins int) Frame {
		s := Spectrum{Velocity: make([]float64, bins), Co: make([]float64, bins)}
		for i := range s.Velocity {
			s.Velocity[i] = float64(i)
			s.Co[i] = 2
		}
		return Frame{Time: t0.Add(offset), Spectrum: s}
	}
	withCx := func(offset time.Duration) Frame {
		f := frame(offset, 8)
		f.Spectrum.Cx = make([]float64, 8)
		return f
	}

	tests := []struct {
		name         string
		frames       []Frame
		wantGridded  int
		wantRejected []time.Duration
	}{
		{
			name:         "short frame inside a bin",
			frames:       []Frame{frame(0, 8), frame(2*time.Second, 8), frame(4*time.Second, 3), frame(7*time.Second, 8)},
			wantGridded:  2,
			wantRejected: []time.Duration{4 * time.Second},
		},
		{
			name:         "malformed first frame",
			frames:       []Frame{frame(0, 0), frame(time.Second, 8), frame(2*time.Second, 8)},
			wantGridded:  1,
			wantRejected: []time.Duration{0},
		},
		{
			name:         "cross channel missing on one frame",
			frames:       []Frame{withCx(0), withCx(time.Second), frame(2*time.Second, 8)},
			wantGridded:  1,
			wantRejected: []time.Duration{2 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gridded, rejected := GridTime(tt.frames, 5*time.Second)
			if len(gridded) != tt.wantGridded {
				t.Errorf("got %d gridded frames, want %d", len(gridded), tt.wantGridded)
			}
			if len(rejected) != len(tt.wantRejected) {
				t.Fatalf("got %d rejected frames, want %d", len(rejected), len(tt.wantRejected))
			}
			for i, off := range tt.wantRejected {
				if !rejected[i].Time.Equal(t0.Add(off)) {
					t.Errorf("rejected frame %d at %v, want %v", i, rejected[i].Time, t0.Add(off))
				}
			}
			for _, f := range gridded {
				if f.Spectrum.Len() != 8 || f.Spectrum.Co[0] != 2 {
					t.Errorf("gridded frame has %d bins, co %v", f.Spectrum.Len(), f.Spectrum.Co)
				}
			}
		})
	}
}
