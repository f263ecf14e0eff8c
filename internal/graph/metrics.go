package graph

import "github.com/xkilldash9x/refintel/api/schemas"

// chainBudget caps the entities a single chain depth search may expand.
// Once spent, the deepest chain found so far is reported.
const chainBudget = 1 << 14

func (g *Graph) computeMetrics() {
	g.met = make([]schemas.EntityMetrics, len(g.entities))

	preds := make([]map[int]struct{}, len(g.entities))
	for _, e := range g.edges {
		m := &g.met[e.From]
		if e.SelfLoop {
			m.SelfLoops++
			continue
		}
		m.Volume++
		if preds[e.To] == nil {
			preds[e.To] = make(map[int]struct{})
		}
		preds[e.To][e.From] = struct{}{}
	}

	search := &chainSearch{succ: g.succ, onPath: make([]bool, len(g.entities))}
	for i := range g.entities {
		m := &g.met[i]
		m.OutDegree = len(g.succ[i])
		m.InDegree = len(preds[i])
		m.Reach = g.reach(i)
		// A simple path of k hops visits k distinct entities, all within
		// reach, so reach is an upper bound on the chain depth.
		m.ChainDepth = search.longest(i, min(g.maxDepth, m.Reach))
	}
}

// reach counts the distinct entities reachable from start within maxDepth
// hops. The visited set bounds the walk on cyclic graphs.
func (g *Graph) reach(start int) int {
	if g.maxDepth <= 0 {
		return 0
	}
	visited := map[int]struct{}{start: {}}
	frontier := []int{start}
	count := 0
	for depth := 0; depth < g.maxDepth && len(frontier) > 0; depth++ {
		var next []int
		for _, n := range frontier {
			for _, s := range g.succ[n] {
				if _, ok := visited[s]; ok {
					continue
				}
				visited[s] = struct{}{}
				count++
				next = append(next, s)
			}
		}
		frontier = next
	}
	return count
}

// chainSearch finds the longest simple path from a start entity with a
// bounded amount of work.
type chainSearch struct {
	succ   [][]int
	onPath []bool
	limit  int
	budget int
}

// longest returns the length in hops of the longest simple path starting at
// start, capped at limit.
func (c *chainSearch) longest(start, limit int) int {
	c.limit = limit
	c.budget = chainBudget
	return c.walk(start, 0)
}

func (c *chainSearch) walk(n, depth int) int {
	if depth >= c.limit || c.budget <= 0 {
		return 0
	}
	c.budget--
	c.onPath[n] = true
	defer func() { c.onPath[n] = false }()

	best := 0
	for _, s := range c.succ[n] {
		if c.onPath[s] {
			continue
		}
		if d := 1 + c.walk(s, depth+1); d > best {
			best = d
			if depth+best >= c.limit {
				break
			}
		}
		if c.budget <= 0 {
			break
		}
	}
	return best
}
