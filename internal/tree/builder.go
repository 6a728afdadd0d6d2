package tree

import (
	"container/heap"
	"math"
	"sort"

	"github.com/chrissnell/peaktree/internal/peaks"
)

const (
	// minimaFloorFactor keeps splits at minima that sit clearly above the
	// detection threshold
	minimaFloorFactor = 1.1
)

// minProminence is the 1 dB rise both sides of a minimum need over it
var minProminence = math.Pow(10, 0.1)

// Scale is the detection result at one smoothing scale
type Scale struct {
	Power      []float64
	Threshold  float64
	Candidates []peaks.Candidate
}

// Builder assembles trees under a node budget
type Builder struct {
	MaxNodes int
}

type buildNode struct {
	parent    int
	lo, hi    int
	threshold float64
	leaf      bool
}

type interval struct {
	lo, hi    int
	threshold float64
	cands     []peaks.Candidate
}

// split is a proposed division of a leaf into two children
type split struct {
	parent      int
	left, right interval
	atMinimum   bool
	strength    float64
	seq         int
}

// splitQueue is a max-heap on strength; ties go to the older proposal
type splitQueue []*split

func (q splitQueue) Len() int { return len(q) }

func (q splitQueue) Less(i, j int) bool {
	if q[i].strength != q[j].strength {
		return q[i].strength > q[j].strength
	}
	return q[i].seq < q[j].seq
}

func (q splitQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *splitQueue) Push(x any) { *q = append(*q, x.(*split)) }

func (q *splitQueue) Pop() any {
	old := *q
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return s
}

type build struct {
	limit  int
	nodes  []buildNode
	queue  splitQueue
	seq    int
	state  State
	pruned int

	// finest scale, searched for minima
	fine Scale
}

// Build links the candidates of every scale, ordered coarse to fine, into a
// tree. The root spans every candidate; each scale splits the leaves that
// hold more than one of its candidates; finally leaves are split at
// prominent minima of the finest scale.
func (b Builder) Build(scales []Scale) *Tree {
	if len(scales) == 0 || len(scales[len(scales)-1].Candidates) == 0 {
		return &Tree{State: NoSignal}
	}

	var all []peaks.Candidate
	for _, s := range scales {
		all = append(all, s.Candidates...)
	}
	lo, hi := peaks.Hull(all)

	bd := &build{
		limit: max(b.MaxNodes, 1),
		state: RootOnly,
		fine:  scales[len(scales)-1],
	}
	bd.nodes = append(bd.nodes, buildNode{parent: -1, lo: lo, hi: hi, threshold: bd.fine.Threshold, leaf: true})

	for _, s := range scales {
		for _, leaf := range bd.leaves() {
			n := bd.nodes[leaf]
			bd.proposeSeparated(leaf, assign(s.Candidates, n.lo, n.hi), s.Threshold)
		}
		bd.drain()
		if bd.state == Pruned {
			break
		}
	}

	if bd.state != Pruned {
		for _, leaf := range bd.leaves() {
			bd.proposeMinimum(leaf)
		}
		bd.drain()
	}

	// a root that was never split stays RootOnly
	if bd.state == Branching {
		bd.state = Finalized
	}
	return bd.emit()
}

func (bd *build) leaves() []int {
	var out []int
	for i, n := range bd.nodes {
		if n.leaf {
			out = append(out, i)
		}
	}
	return out
}

// assign returns the candidates whose peak lies in [lo,hi], clipped to it
func assign(cands []peaks.Candidate, lo, hi int) []peaks.Candidate {
	var out []peaks.Candidate
	for _, c := range cands {
		if c.PeakBin < lo || c.PeakBin > hi {
			continue
		}
		c.Lo = max(c.Lo, lo)
		c.Hi = min(c.Hi, hi)
		if c.Width() < peaks.MinWidth {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Lo < out[j].Lo })
	return out
}

// proposeSeparated queues a split of noise-separated candidates at their
// widest gap
func (bd *build) proposeSeparated(parent int, cands []peaks.Candidate, threshold float64) {
	if len(cands) < 2 || bd.state == Pruned {
		return
	}

	at, widest := 0, math.MinInt
	for i := 1; i < len(cands); i++ {
		if gap := cands[i].Lo - cands[i-1].Hi; gap > widest {
			at, widest = i, gap
		}
	}
	left, right := cands[:at], cands[at:]

	lLo, lHi := peaks.Hull(left)
	rLo, rHi := peaks.Hull(right)
	bd.push(&split{
		parent:   parent,
		left:     interval{lo: lLo, hi: lHi, threshold: threshold, cands: left},
		right:    interval{lo: rLo, hi: rHi, threshold: threshold, cands: right},
		strength: strength(strongest(left), strongest(right)),
	})
}

// proposeMinimum queues a split at the lowest minimum of a leaf that is above
// the floor and leaves a prominent peak on each side
func (bd *build) proposeMinimum(parent int) {
	if bd.state == Pruned {
		return
	}
	n := bd.nodes[parent]
	power := bd.fine.Power
	floor := minimaFloorFactor * bd.fine.Threshold

	for _, m := range peaks.LocalMinima(power, n.lo, n.hi) {
		if !(m.Power > floor) {
			continue
		}
		if m.Bin-n.lo+1 < peaks.MinWidth || n.hi-m.Bin < peaks.MinWidth {
			continue
		}
		lPeak := maxPower(power, n.lo, m.Bin)
		rPeak := maxPower(power, m.Bin+1, n.hi)
		if lPeak/m.Power <= minProminence || rPeak/m.Power <= minProminence {
			continue
		}
		bd.push(&split{
			parent:    parent,
			left:      interval{lo: n.lo, hi: m.Bin, threshold: m.Power},
			right:     interval{lo: m.Bin + 1, hi: n.hi, threshold: m.Power},
			atMinimum: true,
			strength:  strength(lPeak, rPeak),
		})
		return
	}
}

func (bd *build) push(s *split) {
	s.seq = bd.seq
	bd.seq++
	heap.Push(&bd.queue, s)
}

// drain accepts queued splits strongest first until the queue is empty or
// the budget rejects one
func (bd *build) drain() {
	for bd.queue.Len() > 0 {
		s := heap.Pop(&bd.queue).(*split)
		if len(bd.nodes)+2 > bd.limit {
			bd.pruned += 1 + bd.queue.Len()
			bd.queue = bd.queue[:0]
			bd.state = Pruned
			return
		}

		bd.nodes[s.parent].leaf = false
		l := bd.add(s.parent, s.left)
		r := bd.add(s.parent, s.right)
		bd.state = Branching

		if s.atMinimum {
			bd.proposeMinimum(l)
			bd.proposeMinimum(r)
		} else {
			bd.proposeSeparated(l, s.left.cands, s.left.threshold)
			bd.proposeSeparated(r, s.right.cands, s.right.threshold)
		}
	}
}

func (bd *build) add(parent int, iv interval) int {
	bd.nodes = append(bd.nodes, buildNode{parent: parent, lo: iv.lo, hi: iv.hi, threshold: iv.threshold, leaf: true})
	return len(bd.nodes) - 1
}

// emit renumbers the arena breadth-first with children ordered by Lo
func (bd *build) emit() *Tree {
	children := make([][]int, len(bd.nodes))
	for i, n := range bd.nodes {
		if n.parent >= 0 {
			children[n.parent] = append(children[n.parent], i)
		}
	}
	for _, kids := range children {
		sort.SliceStable(kids, func(a, b int) bool { return bd.nodes[kids[a]].lo < bd.nodes[kids[b]].lo })
	}

	t := &Tree{State: bd.state, PrunedSplits: bd.pruned}
	newID := make([]int, len(bd.nodes))
	queue := []int{0}
	for len(queue) > 0 {
		old := queue[0]
		queue = queue[1:]

		n := bd.nodes[old]
		id := len(t.Nodes)
		newID[old] = id
		node := Node{ID: id, Parent: -1, Lo: n.lo, Hi: n.hi, Threshold: n.threshold}
		if n.parent >= 0 {
			node.Parent = newID[n.parent]
			node.Level = t.Nodes[node.Parent].Level + 1
		}
		t.Depth = max(t.Depth, node.Level)
		t.Nodes = append(t.Nodes, node)
		queue = append(queue, children[old]...)
	}
	return t
}

func strongest(cands []peaks.Candidate) float64 {
	p := cands[0].PeakPower
	for _, c := range cands[1:] {
		p = math.Max(p, c.PeakPower)
	}
	return p
}

func maxPower(power []float64, lo, hi int) float64 {
	p := power[lo]
	for i := lo + 1; i <= hi; i++ {
		p = math.Max(p, power[i])
	}
	return p
}

// strength is the ratio of the weaker to the stronger side, in (0,1]
func strength(a, b float64) float64 {
	lo, hi := math.Min(a, b), math.Max(a, b)
	if hi <= 0 {
		return 0
	}
	return lo / hi
}
