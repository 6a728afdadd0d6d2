package storage

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chrissnell/peaktree/internal/pipeline"
)

// GateRecord is the per-gate row stored by every sink
type GateRecord struct {
	RunID        uuid.UUID `gorm:"column:run_id;type:uuid;not null" msgpack:"run_id"`
	Station      string    `gorm:"column:station;not null" msgpack:"station"`
	Time         time.Time `gorm:"column:time;not null" msgpack:"time"`
	Gate         int       `gorm:"column:gate;not null" msgpack:"gate"`
	Range        float64   `gorm:"column:range_m" msgpack:"range"`
	Height       float64   `gorm:"column:height_m" msgpack:"height"`
	State        string    `gorm:"column:state" msgpack:"state"`
	NoNodes      int       `gorm:"column:no_nodes" msgpack:"no_nodes"`
	PrunedSplits int       `gorm:"column:pruned_splits" msgpack:"pruned_splits"`
	NoiseCo      *float64  `gorm:"column:noise_co_dbz" msgpack:"noise_co"`
	NoiseCx      *float64  `gorm:"column:noise_cx_dbz" msgpack:"noise_cx"`
	Warnings     string    `gorm:"column:warnings" msgpack:"warnings,omitempty"`
	Error        string    `gorm:"column:error" msgpack:"error,omitempty"`
}

// TableName implements gorm's Tabler
func (GateRecord) TableName() string {
	return "peaktree_gates"
}

// NodeRecord is one tree node. Power quantities are in dB; NaN values are
// stored as NULL.
type NodeRecord struct {
	RunID      uuid.UUID `gorm:"column:run_id;type:uuid;not null" msgpack:"-"`
	Station    string    `gorm:"column:station;not null" msgpack:"-"`
	Time       time.Time `gorm:"column:time;not null" msgpack:"-"`
	Gate       int       `gorm:"column:gate;not null" msgpack:"-"`
	NodeID     int       `gorm:"column:node_id;not null" msgpack:"id"`
	Parent     int       `gorm:"column:parent" msgpack:"parent"`
	Level      int       `gorm:"column:level" msgpack:"level"`
	Lo         int       `gorm:"column:bin_lo" msgpack:"lo"`
	Hi         int       `gorm:"column:bin_hi" msgpack:"hi"`
	Threshold  *float64  `gorm:"column:threshold_dbz" msgpack:"threshold"`
	Z          *float64  `gorm:"column:z_dbz" msgpack:"z"`
	V          *float64  `gorm:"column:v" msgpack:"v"`
	Width      *float64  `gorm:"column:width" msgpack:"width"`
	Skew       *float64  `gorm:"column:skew" msgpack:"skew"`
	Prominence *float64  `gorm:"column:prominence_db" msgpack:"prominence"`
	MinV       *float64  `gorm:"column:minv" msgpack:"minv"`
	MaxV       *float64  `gorm:"column:maxv" msgpack:"maxv"`
	LDR        *float64  `gorm:"column:ldr_db" msgpack:"ldr"`
	LDRMax     *float64  `gorm:"column:ldrmax_db" msgpack:"ldrmax"`
	LDRStatus  string    `gorm:"column:ldr_status" msgpack:"ldr_status"`
}

// TableName implements gorm's Tabler
func (NodeRecord) TableName() string {
	return "peaktree_nodes"
}

// Lin2Z converts a linear power ratio to dB
func Lin2Z(x float64) float64 {
	return 10 * math.Log10(x)
}

// finite returns nil for NaN and infinite values
func finite(x float64) *float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	return &x
}

func finiteDB(x float64) *float64 {
	if !(x > 0) {
		return nil
	}
	return finite(Lin2Z(x))
}

// Flatten converts a result into storable records
func Flatten(runID uuid.UUID, r pipeline.Result) (GateRecord, []NodeRecord) {
	g := GateRecord{
		RunID:   runID,
		Station: r.Key.Station,
		Time:    r.Key.Time.UTC(),
		Gate:    r.Key.Gate,
		Range:   r.Range,
		Height:  r.Height,
	}
	if r.Err != nil {
		g.State = "failed"
		g.Error = r.Err.Error()
		return g, nil
	}

	g.NoiseCo = finiteDB(r.NoiseCo.Level)
	g.NoiseCx = finiteDB(r.NoiseCx.Level)
	if len(r.Warnings) > 0 {
		msgs := make([]string, len(r.Warnings))
		for i, w := range r.Warnings {
			msgs[i] = w.Error()
		}
		g.Warnings = strings.Join(msgs, "; ")
	}
	if r.Tree == nil {
		return g, nil
	}

	t := r.Tree
	g.State = t.State.String()
	g.NoNodes = t.Len()
	g.PrunedSplits = t.PrunedSplits

	nodes := make([]NodeRecord, 0, t.Len())
	for _, n := range t.Nodes {
		m := n.Moments
		nodes = append(nodes, NodeRecord{
			RunID:      runID,
			Station:    g.Station,
			Time:       g.Time,
			Gate:       g.Gate,
			NodeID:     n.ID,
			Parent:     n.Parent,
			Level:      n.Level,
			Lo:         n.Lo,
			Hi:         n.Hi,
			Threshold:  finiteDB(n.Threshold),
			Z:          finiteDB(m.Z),
			V:          finite(m.V),
			Width:      finite(m.Width),
			Skew:       finite(m.Skew),
			Prominence: finiteDB(m.Prominence),
			MinV:       finite(m.MinV),
			MaxV:       finite(m.MaxV),
			LDR:        finiteDB(m.LDR),
			LDRMax:     finiteDB(m.LDRMax),
			LDRStatus:  m.LDRStatus.String(),
		})
	}
	return g, nodes
}
