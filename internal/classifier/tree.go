package classifier

import (
	"cmp"
	"math/rand"
	"slices"
)

const leaf = -1

// Node is one element of a flattened decision tree. Leaves have Feature ==
// -1 and carry the attack probability in Value.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) predict(x []float64) float64 {
	i := 0
	for t.Nodes[i].Feature != leaf {
		n := t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

func (t *Tree) validate(numFeatures int) bool {
	if len(t.Nodes) == 0 {
		return false
	}
	for i, n := range t.Nodes {
		if n.Feature == leaf {
			continue
		}
		if n.Feature < 0 || n.Feature >= numFeatures {
			return false
		}
		// Children always follow their parent, which also rules out cycles.
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return false
		}
	}
	return true
}

type treeBuilder struct {
	x           [][]float64
	y           []int
	maxDepth    int
	minLeaf     int
	maxFeatures int
	rng         *rand.Rand
	nodes       []Node
	scratch     []int
}

func (b *treeBuilder) build(samples []int) *Tree {
	b.nodes = b.nodes[:0]
	b.grow(samples, 0)
	return &Tree{Nodes: b.nodes}
}

func (b *treeBuilder) grow(samples []int, depth int) int {
	id := len(b.nodes)
	positives := 0
	for _, s := range samples {
		positives += b.y[s]
	}
	value := float64(positives) / float64(len(samples))
	b.nodes = append(b.nodes, Node{Feature: leaf, Value: value})

	if positives == 0 || positives == len(samples) {
		return id
	}
	if b.maxDepth > 0 && depth >= b.maxDepth {
		return id
	}
	if len(samples) < 2*b.minLeaf {
		return id
	}

	feature, threshold, ok := b.bestSplit(samples, positives)
	if !ok {
		return id
	}

	left := make([]int, 0, len(samples)/2)
	right := make([]int, 0, len(samples)/2)
	for _, s := range samples {
		if b.x[s][feature] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}

	if len(left) == 0 || len(right) == 0 {
		return id
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r, Value: value}
	return id
}

// bestSplit searches maxFeatures randomly drawn columns for the split with
// the lowest weighted gini impurity.
func (b *treeBuilder) bestSplit(samples []int, positives int) (int, float64, bool) {
	n := len(samples)
	parent := gini(positives, n)
	best := parent - 1e-12
	bestFeature, bestThreshold, found := 0, 0.0, false

	if cap(b.scratch) < n {
		b.scratch = make([]int, n)
	}
	sorted := b.scratch[:n]

	for _, f := range b.rng.Perm(len(b.x[0]))[:b.maxFeatures] {
		copy(sorted, samples)
		slices.SortFunc(sorted, func(a, c int) int {
			return cmp.Compare(b.x[a][f], b.x[c][f])
		})

		leftPos := 0
		for i := 0; i < n-1; i++ {
			leftPos += b.y[sorted[i]]
			cur, next := b.x[sorted[i]][f], b.x[sorted[i+1]][f]
			if cur == next {
				continue
			}
			nl := i + 1
			nr := n - nl
			if nl < b.minLeaf || nr < b.minLeaf {
				continue
			}
			impurity := (float64(nl)*gini(leftPos, nl) + float64(nr)*gini(positives-leftPos, nr)) / float64(n)
			if impurity < best {
				best = impurity
				bestFeature = f
				bestThreshold = midpoint(cur, next)
				found = true
			}
		}
	}

	return bestFeature, bestThreshold, found
}

// midpoint returns a threshold t with cur <= t < next. For adjacent floats
// the halfway point rounds to next, so cur is used instead.
func midpoint(cur, next float64) float64 {
	t := cur + (next-cur)/2
	if t >= next {
		return cur
	}
	return t
}

func gini(positives, n int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(positives) / float64(n)
	return 2 * p * (1 - p)
}
