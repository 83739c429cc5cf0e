// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classify

import (
	"container/heap"
)

// TopoSort orders nodes 0..n-1 so that every node follows all of its
// dependencies.
//
// Description:
//
//	Kahn's algorithm with a min-heap of ready nodes, so among nodes whose
//	dependencies are all placed the lowest index goes first. The result is
//	fully determined by n and deps.
//
// Inputs:
//
//	n - Node count.
//	deps - Returns the dependencies of a node. Out-of-range and duplicate
//	       entries are ignored. A node depending on itself is a cycle.
//
// Outputs:
//
//	order - All n nodes, or nil when a cycle exists.
//	cycle - One dependency cycle as a closed walk (first == last), or nil.
//
// Complexity: O((V + E) log V).
func TopoSort(n int, deps func(int) []int) (order []int, cycle []int) {
	pending := make([]int, n)
	dependents := make([][]int, n)
	depSets := make([][]int, n)

	for i := 0; i < n; i++ {
		seen := make(map[int]bool)
		for _, d := range deps(i) {
			if d < 0 || d >= n || seen[d] {
				continue
			}
			seen[d] = true
			depSets[i] = append(depSets[i], d)
			dependents[d] = append(dependents[d], i)
			pending[i]++
		}
	}

	ready := &intHeap{}
	for i := 0; i < n; i++ {
		if pending[i] == 0 {
			heap.Push(ready, i)
		}
	}

	order = make([]int, 0, n)
	for ready.Len() > 0 {
		cur := heap.Pop(ready).(int)
		order = append(order, cur)
		for _, dep := range dependents[cur] {
			pending[dep]--
			if pending[dep] == 0 {
				heap.Push(ready, dep)
			}
		}
	}

	if len(order) == n {
		return order, nil
	}
	return nil, findCycle(n, depSets, pending)
}

// findCycle walks dependency links among the unplaced nodes. Every unplaced
// node has at least one unplaced dependency, so the walk must revisit a node.
func findCycle(n int, depSets [][]int, pending []int) []int {
	start := -1
	for i := 0; i < n; i++ {
		if pending[i] > 0 {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}

	pos := make(map[int]int)
	var walk []int
	cur := start
	for {
		if at, ok := pos[cur]; ok {
			return append(walk[at:], cur)
		}
		pos[cur] = len(walk)
		walk = append(walk, cur)

		next := -1
		for _, d := range depSets[cur] {
			if pending[d] > 0 {
				next = d
				break
			}
		}
		if next < 0 {
			return walk
		}
		cur = next
	}
}

type intHeap []int

func (h intHeap) Len() int           { return len(h) }
func (h intHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}
