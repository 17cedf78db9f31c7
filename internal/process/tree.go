package process

import (
	"iter"
	"slices"

	"github.com/dushixiang/gleam/internal/protocol"
)

// PPIDResolver looks up the parent of a process.
type PPIDResolver interface {
	PPID(pid uint32) (uint32, bool)
}

// Node is one process in the tree.
type Node struct {
	PID      uint32
	PPID     uint32
	Info     protocol.ProcessData
	Children []uint32 // sorted ascending
}

// Entry is one rendered row.
type Entry struct {
	Node  *Node
	Depth int
}

// Tree is a forest built from a flat process table. It is rebuilt wholesale, never patched.
type Tree struct {
	nodes map[uint32]*Node
	roots []uint32
}

// Build links every process under its parent. A process is a root when its parent is 0,
// itself, unknown to the resolver or absent from procs. Parent loops, which a racing
// process table can produce, are broken at their lowest pid.
func Build(procs []protocol.ProcessData, resolver PPIDResolver) *Tree {
	t := &Tree{nodes: make(map[uint32]*Node, len(procs))}
	for _, p := range procs {
		if _, dup := t.nodes[p.PID]; dup {
			continue
		}
		ppid, ok := resolver.PPID(p.PID)
		if !ok {
			ppid = 0
		}
		t.nodes[p.PID] = &Node{PID: p.PID, PPID: ppid, Info: p}
	}

	pids := make([]uint32, 0, len(t.nodes))
	for pid := range t.nodes {
		pids = append(pids, pid)
	}
	slices.Sort(pids)

	for _, pid := range pids {
		node := t.nodes[pid]
		parent, ok := t.nodes[node.PPID]
		if node.PPID == 0 || node.PPID == pid || !ok {
			t.roots = append(t.roots, pid)
			continue
		}
		// pids are visited in ascending order, so children end up sorted
		parent.Children = append(parent.Children, pid)
	}

	t.breakCycles(pids)
	return t
}

// breakCycles promotes the lowest pid of every unreachable group to a root.
func (t *Tree) breakCycles(pids []uint32) {
	reached := make(map[uint32]bool, len(t.nodes))
	var mark func(pid uint32)
	mark = func(pid uint32) {
		if reached[pid] {
			return
		}
		reached[pid] = true
		for _, c := range t.nodes[pid].Children {
			mark(c)
		}
	}
	for _, r := range t.roots {
		mark(r)
	}
	if len(reached) == len(t.nodes) {
		return
	}

	for _, pid := range pids {
		if reached[pid] {
			continue
		}
		node := t.nodes[pid]
		if parent, ok := t.nodes[node.PPID]; ok {
			parent.Children = slices.DeleteFunc(parent.Children, func(c uint32) bool { return c == pid })
		}
		t.roots = append(t.roots, pid)
		mark(pid)
	}
	slices.Sort(t.roots)
}

// Len returns the number of processes.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns the node for pid.
func (t *Tree) Node(pid uint32) (*Node, bool) {
	n, ok := t.nodes[pid]
	return n, ok
}

// Roots returns root pids in ascending order.
func (t *Tree) Roots() []uint32 {
	return t.roots
}

// Walk yields (node, depth) in depth-first pre-order over pid-sorted roots and children.
// A collapsed node is yielded but its subtree is skipped.
func (t *Tree) Walk(collapsed map[uint32]bool) iter.Seq2[*Node, int] {
	return func(yield func(*Node, int) bool) {
		var visit func(pid uint32, depth int) bool
		visit = func(pid uint32, depth int) bool {
			node := t.nodes[pid]
			if !yield(node, depth) {
				return false
			}
			if collapsed[pid] {
				return true
			}
			for _, c := range node.Children {
				if !visit(c, depth+1) {
					return false
				}
			}
			return true
		}
		for _, r := range t.roots {
			if !visit(r, 0) {
				return
			}
		}
	}
}

// RenderOrder collects Walk into a slice.
func (t *Tree) RenderOrder(collapsed map[uint32]bool) []Entry {
	entries := make([]Entry, 0, len(t.nodes))
	for node, depth := range t.Walk(collapsed) {
		entries = append(entries, Entry{Node: node, Depth: depth})
	}
	return entries
}

// AggregatedCPU returns the CPU usage of pid plus all of its descendants.
func (t *Tree) AggregatedCPU(pid uint32) (float64, bool) {
	node, ok := t.nodes[pid]
	if !ok {
		return 0, false
	}
	total := node.Info.CPUUsage
	for _, c := range node.Children {
		v, _ := t.AggregatedCPU(c)
		total += v
	}
	return total, true
}

// AggregatedMemory returns the memory in KB of pid plus all of its descendants.
func (t *Tree) AggregatedMemory(pid uint32) (uint64, bool) {
	node, ok := t.nodes[pid]
	if !ok {
		return 0, false
	}
	total := node.Info.MemoryKB
	for _, c := range node.Children {
		v, _ := t.AggregatedMemory(c)
		total += v
	}
	return total, true
}
