// Package planner computes a deterministic, dependency-respecting processing
// order over the scanned call graph.
package planner

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"

	"github.com/Sumatoshi-tech/oxidize/pkg/persist"
	"github.com/Sumatoshi-tech/oxidize/pkg/symbols"
)

// ErrUnknownID is returned when a persisted order references an id that does
// not exist in the current scan.
var ErrUnknownID = errors.New("translation order references unknown id")

// ErrEmptyOrder is returned when a persisted order holds no steps.
var ErrEmptyOrder = errors.New("translation order has no steps")

// ErrPrunedID is returned when a persisted order still schedules an id that
// has since been pruned.
var ErrPrunedID = errors.New("translation order schedules pruned id")

// Step is one scheduling step. A step with several ids is a strongly
// connected component: its members reference each other and share a step so
// the driver can inject "not yet translated" context for in-cycle callees.
type Step struct {
	Step      int    `json:"step"`
	IDs       []int  `json:"ids"`
	Group     bool   `json:"group"`
	Roots     []int  `json:"roots"`
	CreatedAt string `json:"created_at"`
}

// Plan computes the translation order for the given index, excluding ids in
// pruned. For any edge a -> b (a references b) with both in-project, b is
// scheduled before a unless a cycle prevents it. Cycles collapse into one
// step whose members are listed ascending, so the first-visited node of a
// cycle precedes its mutual dependents. The result depends only on the scan
// content: no map iteration order leaks into it.
func Plan(idx *symbols.Index, pruned map[int]bool) []Step {
	nodes, adj := callGraph(idx, pruned)

	components := condense(nodes, adj)
	ordered := orderComponents(components, adj)
	steps := emit(idx, nodes, adj, components, ordered, pruned)

	return steps
}

// callGraph builds the function-only adjacency over non-pruned ids, with
// sorted reference lists.
func callGraph(idx *symbols.Index, pruned map[int]bool) ([]int, map[int][]int) {
	ids := idx.FunctionIDs()

	nodes := make([]int, 0, len(ids))

	for _, id := range ids {
		if !pruned[id] {
			nodes = append(nodes, id)
		}
	}

	adj := make(map[int][]int, len(nodes))

	for _, id := range nodes {
		rec, _ := idx.Get(id)

		var refs []int

		for _, ref := range idx.InternalRefs(rec) {
			crec, ok := idx.Get(ref)
			if !ok || !crec.IsFunction() || pruned[ref] {
				continue
			}

			refs = append(refs, ref)
		}

		sort.Ints(refs)
		adj[id] = refs
	}

	return nodes, adj
}

// Restrict returns the set of function ids unreachable from every pinned
// root. Merged into the pruned set, it narrows translation to the call
// graphs below the project's declared entry points.
func Restrict(idx *symbols.Index, rootIDs []int) map[int]bool {
	if len(rootIDs) == 0 {
		return nil
	}

	nodes, adj := callGraph(idx, nil)

	keep := make(map[int]bool, len(nodes))

	for _, root := range rootIDs {
		for id := range reachable(root, adj) {
			keep[id] = true
		}
	}

	pruned := make(map[int]bool)

	for _, id := range nodes {
		if !keep[id] {
			pruned[id] = true
		}
	}

	return pruned
}

// condense runs Tarjan's algorithm, visiting nodes in ascending id order so
// that component discovery is deterministic. Members of each component are
// returned ascending.
func condense(nodes []int, adj map[int][]int) [][]int {
	index := 0
	indices := make(map[int]int, len(nodes))
	lowlinks := make(map[int]int, len(nodes))
	onStack := make(map[int]bool, len(nodes))

	var (
		stack      []int
		components [][]int
		connect    func(v int)
	)

	connect = func(v int) {
		indices[v] = index
		lowlinks[v] = index
		index++

		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, seen := indices[w]; !seen {
				connect(w)

				if lowlinks[w] < lowlinks[v] {
					lowlinks[v] = lowlinks[w]
				}
			} else if onStack[w] && indices[w] < lowlinks[v] {
				lowlinks[v] = indices[w]
			}
		}

		if lowlinks[v] == indices[v] {
			var comp []int

			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false

				comp = append(comp, w)
				if w == v {
					break
				}
			}

			sort.Ints(comp)
			components = append(components, comp)
		}
	}

	for _, v := range nodes {
		if _, seen := indices[v]; !seen {
			connect(v)
		}
	}

	return components
}

// orderComponents topologically sorts the condensed DAG leaves-first (callees
// before callers) using Kahn's algorithm with ascending tie-breaking.
func orderComponents(components [][]int, adj map[int][]int) []int {
	compOf := make(map[int]int)

	for i, comp := range components {
		for _, id := range comp {
			compOf[id] = i
		}
	}

	// Reversed edges: callee component -> caller component.
	succ := make(map[int]map[int]bool, len(components))
	indeg := make(map[int]int, len(components))

	for i := range components {
		succ[i] = make(map[int]bool)
		indeg[i] = 0
	}

	for id, refs := range adj {
		cu := compOf[id]

		for _, ref := range refs {
			cv := compOf[ref]
			if cu != cv && !succ[cv][cu] {
				succ[cv][cu] = true
				indeg[cu]++
			}
		}
	}

	var queue []int

	for i := range components {
		if indeg[i] == 0 {
			queue = append(queue, i)
		}
	}

	sort.Ints(queue)

	var order []int

	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		order = append(order, c)

		var next []int

		for s := range succ[c] {
			indeg[s]--
			if indeg[s] == 0 {
				next = append(next, s)
			}
		}

		sort.Ints(next)
		queue = append(queue, next...)
	}

	return order
}

// emit turns the component order into steps, attributing components to root
// functions in priority order: roots with larger reachable subtrees first,
// ties broken by ascending id. Residual components unreachable from any root
// are emitted last.
func emit(idx *symbols.Index, nodes []int, adj map[int][]int, components [][]int, ordered []int, pruned map[int]bool) []Step {
	now := symbols.Now()

	roots := make([]int, 0)

	for _, id := range idx.Roots() {
		if !pruned[id] {
			roots = append(roots, id)
		}
	}

	reach := make(map[int]map[int]bool, len(roots))
	for _, root := range roots {
		reach[root] = reachable(root, adj)
	}

	sort.Slice(roots, func(a, b int) bool {
		ra, rb := len(reach[roots[a]]), len(reach[roots[b]])
		if ra != rb {
			return ra > rb
		}

		return roots[a] < roots[b]
	})

	emitted := make(map[int]bool, len(nodes))

	var steps []Step

	emitFor := func(root int, within map[int]bool) {
		for _, ci := range ordered {
			var selected []int

			for _, id := range components[ci] {
				if emitted[id] {
					continue
				}

				if within != nil && !within[id] {
					continue
				}

				emitted[id] = true
				selected = append(selected, id)
			}

			if len(selected) == 0 {
				continue
			}

			step := Step{
				Step:      len(steps) + 1,
				IDs:       selected,
				Group:     len(selected) > 1,
				Roots:     []int{},
				CreatedAt: now,
			}
			if root != 0 {
				step.Roots = []int{root}
			}

			steps = append(steps, step)
		}
	}

	for _, root := range roots {
		emitFor(root, reach[root])
	}

	// Residual nodes: cycles not reachable from any root.
	emitFor(0, nil)

	return steps
}

func reachable(start int, adj map[int][]int) map[int]bool {
	visited := map[int]bool{start: true}
	stack := []int{start}

	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, w := range adj[v] {
			if !visited[w] {
				visited[w] = true
				stack = append(stack, w)
			}
		}
	}

	return visited
}

// Flatten expands steps into the flat id sequence the driver consumes.
func Flatten(steps []Step) []int {
	var ids []int

	for _, step := range steps {
		ids = append(ids, step.IDs...)
	}

	return ids
}

// WriteOrder atomically persists steps as JSONL, one step per line.
func WriteOrder(path string, steps []Step) error {
	return persist.WriteAtomic(path, func(w io.Writer) error {
		encoder := json.NewEncoder(w)

		for i := range steps {
			err := encoder.Encode(&steps[i])
			if err != nil {
				return fmt.Errorf("encode step %d: %w", steps[i].Step, err)
			}
		}

		return nil
	})
}

// ReadOrder loads a persisted order. Blank and malformed lines are skipped;
// an order with no usable steps is an error.
func ReadOrder(path string) ([]Step, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open translation order: %w", err)
	}
	defer file.Close()

	var steps []Step

	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		var step Step

		unmarshalErr := json.Unmarshal(line, &step)
		if unmarshalErr != nil || len(step.IDs) == 0 {
			continue
		}

		steps = append(steps, step)
	}

	err = sc.Err()
	if err != nil {
		return nil, fmt.Errorf("read translation order: %w", err)
	}

	if len(steps) == 0 {
		return nil, ErrEmptyOrder
	}

	return steps, nil
}

// Validate checks that every id in the order exists in the current scan and
// that none of them is in the pruned set. An order written before a
// replacement pass pruned part of the graph is stale.
func Validate(steps []Step, idx *symbols.Index, pruned map[int]bool) error {
	for _, step := range steps {
		for _, id := range step.IDs {
			if _, ok := idx.Get(id); !ok {
				return fmt.Errorf("%w: step %d id %d", ErrUnknownID, step.Step, id)
			}

			if pruned[id] {
				return fmt.Errorf("%w: step %d id %d", ErrPrunedID, step.Step, id)
			}
		}
	}

	return nil
}

// Ensure returns a valid order at path, computing and persisting one when the
// file is missing, empty, or stale against the current scan and pruned set.
// When force is set the order is always recomputed.
func Ensure(path string, idx *symbols.Index, pruned map[int]bool, force bool) ([]Step, error) {
	if !force {
		steps, err := ReadOrder(path)
		if err == nil {
			validateErr := Validate(steps, idx, pruned)
			if validateErr == nil {
				return steps, nil
			}
		} else if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, ErrEmptyOrder) {
			return nil, err
		}
	}

	steps := Plan(idx, pruned)
	if len(steps) == 0 {
		return nil, ErrEmptyOrder
	}

	err := WriteOrder(path, steps)
	if err != nil {
		return nil, err
	}

	return steps, nil
}
