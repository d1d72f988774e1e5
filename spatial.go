package astrokit

import "sort"

// satIndex is a 3-d tree over satellite ECEF positions at one sample epoch.
// It serves bounded-radius queries so a coverage run can skip cells that no
// satellite can possibly see. Pruning is conservative: a query never drops
// a point within the radius.
type satIndex struct {
	root *kdNode
}

type kdNode struct {
	point       []float64
	idx         int
	axis        int
	left, right *kdNode
}

// newSatIndex builds the tree, skipping nil positions.
func newSatIndex(points [][]float64) *satIndex {
	type entry struct {
		point []float64
		idx   int
	}
	entries := make([]entry, 0, len(points))
	for i, p := range points {
		if p != nil {
			entries = append(entries, entry{p, i})
		}
	}
	var build func(items []entry, axis int) *kdNode
	build = func(items []entry, axis int) *kdNode {
		if len(items) == 0 {
			return nil
		}
		sort.Slice(items, func(i, j int) bool {
			return items[i].point[axis] < items[j].point[axis]
		})
		mid := len(items) / 2
		next := (axis + 1) % 3
		return &kdNode{
			point: items[mid].point,
			idx:   items[mid].idx,
			axis:  axis,
			left:  build(items[:mid], next),
			right: build(items[mid+1:], next),
		}
	}
	return &satIndex{root: build(entries, 0)}
}

// within returns a slice shaped like all, keeping only the positions within
// radius of center (everything else is nil).
func (ix *satIndex) within(center []float64, radius float64, all [][]float64) [][]float64 {
	out := make([][]float64, len(all))
	r2 := radius * radius
	var walk func(n *kdNode)
	walk = func(n *kdNode) {
		if n == nil {
			return
		}
		d := 0.0
		for i := 0; i < 3; i++ {
			δ := n.point[i] - center[i]
			d += δ * δ
		}
		if d <= r2 {
			out[n.idx] = n.point
		}
		δ := center[n.axis] - n.point[n.axis]
		if δ <= radius {
			walk(n.left)
		}
		if δ >= -radius {
			walk(n.right)
		}
	}
	walk(ix.root)
	return out
}
