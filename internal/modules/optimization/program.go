// Package optimization builds and solves the discrete investment program.
package optimization

import (
	"context"
	"fmt"
	"math"

	"github.com/aristath/aidalloc/internal/domain"
)

// feasibilityTol is the absolute slack allowed on budget and floor rows.
const feasibilityTol = 1e-6

// Item is one selectable option of a group: an investment tier.
type Item struct {
	Tier  int     // index into the caller's tier schedule
	Cost  float64 // money spent when chosen
	Value float64 // objective contribution when chosen
}

// Group is a set of mutually exclusive items; exactly one must be chosen.
// Floor marks groups whose chosen cost counts toward the floor row.
type Group struct {
	ID    string
	Items []Item
	Floor bool
}

// BinaryProgram is a multiple-choice program:
//
//	maximize   Σ value·x
//	subject to Σ_j x[g,j] = 1           for every group g
//	           Σ cost·x ≤ Capacity
//	           Σ_{g floor} cost·x ≥ FloorMin   (only when HasFloor)
//	           x binary
type BinaryProgram struct {
	Groups   []Group
	Capacity float64
	FloorMin float64
	HasFloor bool
}

// Validate checks the structural invariants of the program.
func (p *BinaryProgram) Validate() error {
	if math.IsNaN(p.Capacity) || p.Capacity < 0 {
		return fmt.Errorf("capacity must be non-negative, got %v", p.Capacity)
	}
	if p.HasFloor && (math.IsNaN(p.FloorMin) || math.IsInf(p.FloorMin, 0)) {
		return fmt.Errorf("floor must be finite, got %v", p.FloorMin)
	}
	for i, g := range p.Groups {
		if len(g.Items) == 0 {
			return fmt.Errorf("group %d (%s) has no items", i, g.ID)
		}
		for _, it := range g.Items {
			if it.Cost < 0 || math.IsNaN(it.Cost) || math.IsInf(it.Cost, 0) {
				return fmt.Errorf("group %s: invalid cost %v", g.ID, it.Cost)
			}
			if math.IsNaN(it.Value) || math.IsInf(it.Value, 0) {
				return fmt.Errorf("group %s: invalid value %v", g.ID, it.Value)
			}
		}
	}
	return nil
}

// Variables returns the number of binary variables.
func (p *BinaryProgram) Variables() int {
	n := 0
	for _, g := range p.Groups {
		n += len(g.Items)
	}
	return n
}

// Evaluate returns the objective value, total cost and floor cost of a choice.
// choice[g] is the position of the chosen item inside p.Groups[g].Items.
func (p *BinaryProgram) Evaluate(choice []int) (value, cost, floorCost float64) {
	for g, j := range choice {
		it := p.Groups[g].Items[j]
		value += it.Value
		cost += it.Cost
		if p.Groups[g].Floor {
			floorCost += it.Cost
		}
	}
	return value, cost, floorCost
}

// Feasible reports whether choice satisfies the budget and floor rows.
func (p *BinaryProgram) Feasible(choice []int) bool {
	if len(choice) != len(p.Groups) {
		return false
	}
	for g, j := range choice {
		if j < 0 || j >= len(p.Groups[g].Items) {
			return false
		}
	}
	_, cost, floorCost := p.Evaluate(choice)
	if cost > p.Capacity+feasibilityTol*math.Max(1, p.Capacity) {
		return false
	}
	if p.HasFloor && floorCost < p.FloorMin-feasibilityTol*math.Max(1, p.FloorMin) {
		return false
	}
	return true
}

// Solution is what a Solver returns for one program.
type Solution struct {
	Status    domain.Status
	Choice    []int   // chosen item position per group, nil unless Status.Solved()
	Objective float64 // value of Choice
	Bound     float64 // best proven upper bound on the objective
	Nodes     int
	LPSolves  int
	Message   string
}

// Gap is the relative distance between the bound and the objective.
func (s Solution) Gap() float64 {
	if !s.Status.Solved() {
		return math.Inf(1)
	}
	den := math.Max(math.Abs(s.Objective), 1e-9)
	return math.Max(0, s.Bound-s.Objective) / den
}

// Solver solves binary programs. Implementations must not keep state between calls.
type Solver interface {
	Solve(ctx context.Context, p *BinaryProgram) (Solution, error)
}
