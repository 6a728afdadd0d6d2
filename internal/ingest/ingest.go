// Package ingest reads and writes spectra streams: a sequence of msgpack
// encoded frames, one per station, time step and range gate.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chrissnell/peaktree/internal/pipeline"
	"github.com/chrissnell/peaktree/internal/spectrum"
	"github.com/chrissnell/peaktree/pkg/config"
)

// Frame is the wire form of one gate
type Frame struct {
	Station  string    `msgpack:"station"`
	Time     time.Time `msgpack:"time"`
	Gate     int       `msgpack:"gate"`
	Range    float64   `msgpack:"range"`
	Velocity []float64 `msgpack:"velocity"`
	Co       []float64 `msgpack:"co"`
	Cx       []float64 `msgpack:"cx,omitempty"`
}

// ToGate converts a frame into a pipeline gate
func (f Frame) ToGate() pipeline.Gate {
	return pipeline.Gate{
		Key:   pipeline.Key{Station: config.NormalizeName(f.Station), Time: f.Time, Gate: f.Gate},
		Range: f.Range,
		Spectrum: spectrum.Spectrum{
			Velocity: f.Velocity,
			Co:       f.Co,
			Cx:       f.Cx,
		},
	}
}

// FrameFromGate is the inverse of Frame.ToGate
func FrameFromGate(g pipeline.Gate) Frame {
	return Frame{
		Station:  g.Key.Station,
		Time:     g.Key.Time,
		Gate:     g.Key.Gate,
		Range:    g.Range,
		Velocity: g.Spectrum.Velocity,
		Co:       g.Spectrum.Co,
		Cx:       g.Spectrum.Cx,
	}
}

// Reader decodes frames from a stream
type Reader struct {
	dec *msgpack.Decoder
}

// NewReader returns a Reader over r
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: msgpack.NewDecoder(bufio.NewReader(r))}
}

// Next returns the next frame or io.EOF at the end of the stream
func (r *Reader) Next() (Frame, error) {
	var f Frame
	if err := r.dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("could not decode frame: %w", err)
	}
	return f, nil
}

// ReadAll decodes every remaining frame
func (r *Reader) ReadAll() ([]Frame, error) {
	var frames []Frame
	for {
		f, err := r.Next()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}

// Writer encodes frames to a stream
type Writer struct {
	buf *bufio.Writer
	enc *msgpack.Encoder
}

// NewWriter returns a Writer over w. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	buf := bufio.NewWriter(w)
	return &Writer{buf: buf, enc: msgpack.NewEncoder(buf)}
}

// Write encodes one frame
func (w *Writer) Write(f Frame) error {
	if err := w.enc.Encode(&f); err != nil {
		return fmt.Errorf("could not encode frame: %w", err)
	}
	return nil
}

// Flush writes any buffered data to the underlying writer
func (w *Writer) Flush() error {
	return w.buf.Flush()
}

// Load reads a spectra file and applies each station's time grid. Frames of
// stations without a profile are passed through ungridded and left for the
// pool to reject.
func Load(path string, cfg *config.ConfigData) ([]pipeline.Gate, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	frames, err := NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return Prepare(frames, cfg), nil
}

// Prepare converts frames into gates, gridding each station's series on its
// grid_time interval. Frames that cannot be gridded come back as gates with
// Err set and fail individually in the pool.
func Prepare(frames []Frame, cfg *config.ConfigData) []pipeline.Gate {
	byStation := make(map[string][]pipeline.Gate)
	var order []string
	for _, f := range frames {
		g := f.ToGate()
		if _, seen := byStation[g.Key.Station]; !seen {
			order = append(order, g.Key.Station)
		}
		byStation[g.Key.Station] = append(byStation[g.Key.Station], g)
	}

	var out []pipeline.Gate
	for _, station := range order {
		gates := byStation[station]
		if p, err := cfg.Station(station); err == nil && p.Settings.GridTime > 0 {
			gates = pipeline.GridGates(gates, p.Settings.GridTime)
		}
		out = append(out, gates...)
	}
	return out
}

// Feed sends gates on a channel until done or ctx is cancelled
func Feed(ctx context.Context, gates []pipeline.Gate) <-chan pipeline.Gate {
	ch := make(chan pipeline.Gate)
	go func() {
		defer close(ch)
		for _, g := range gates {
			select {
			case ch <- g:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
