package optimization

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aidalloc/internal/domain"
)

func exactSolver() *BranchAndBound {
	return NewBranchAndBound(BranchAndBoundOptions{RelativeGap: 1e-9}, zerolog.Nop())
}

// bruteForce enumerates every assignment and returns the best objective,
// or -Inf when no assignment is feasible.
func bruteForce(p *BinaryProgram) float64 {
	best := math.Inf(-1)
	choice := make([]int, len(p.Groups))
	var walk func(g int)
	walk = func(g int) {
		if g == len(p.Groups) {
			if p.Feasible(choice) {
				v, _, _ := p.Evaluate(choice)
				best = math.Max(best, v)
			}
			return
		}
		for j := range p.Groups[g].Items {
			choice[g] = j
			walk(g + 1)
		}
	}
	walk(0)
	return best
}

func randomProgram(rng *rand.Rand, groups int) *BinaryProgram {
	tiers := []float64{0, 10, 20, 40, 70}
	p := &BinaryProgram{}
	total := 0.0
	for g := 0; g < groups; g++ {
		grp := Group{ID: string(rune('a' + g)), Floor: rng.Intn(2) == 0}
		n := 2 + rng.Intn(len(tiers)-1)
		value := 0.0
		for j := 0; j < n; j++ {
			if j > 0 {
				value += rng.Float64() * 30
			}
			grp.Items = append(grp.Items, Item{Tier: j, Cost: tiers[j], Value: value})
		}
		total += tiers[n-1]
		p.Groups = append(p.Groups, grp)
	}
	p.Capacity = math.Round(total * (0.2 + 0.5*rng.Float64()))
	if rng.Intn(3) > 0 {
		p.HasFloor = true
		p.FloorMin = math.Round(p.Capacity * 0.6 * rng.Float64())
	}
	return p
}

func TestBranchAndBound_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	solver := exactSolver()

	for i := 0; i < 60; i++ {
		p := randomProgram(rng, 3+rng.Intn(4))
		want := bruteForce(p)

		sol, err := solver.Solve(context.Background(), p)
		require.NoError(t, err, "program %d", i)

		if math.IsInf(want, -1) {
			assert.Equal(t, domain.StatusInfeasible, sol.Status, "program %d", i)
			assert.Nil(t, sol.Choice)
			continue
		}
		require.Equal(t, domain.StatusOptimal, sol.Status, "program %d", i)
		require.True(t, p.Feasible(sol.Choice), "program %d", i)
		assert.InDelta(t, want, sol.Objective, 1e-6*math.Max(1, math.Abs(want)), "program %d", i)
	}
}

func TestBranchAndBound_FloorForcesSimplex(t *testing.T) {
	// The valuable items sit outside the floor groups, so the budget-only
	// relaxation ignores the floor and the simplex has to take over.
	p := &BinaryProgram{
		Capacity: 100,
		HasFloor: true,
		FloorMin: 50,
		Groups: []Group{
			{ID: "rich-1", Items: []Item{{Cost: 0}, {Tier: 1, Cost: 50, Value: 90}}},
			{ID: "rich-2", Items: []Item{{Cost: 0}, {Tier: 1, Cost: 50, Value: 80}}},
			{ID: "need-1", Floor: true, Items: []Item{{Cost: 0}, {Tier: 1, Cost: 30, Value: 5}, {Tier: 2, Cost: 50, Value: 8}}},
			{ID: "need-2", Floor: true, Items: []Item{{Cost: 0}, {Tier: 1, Cost: 30, Value: 4}, {Tier: 2, Cost: 50, Value: 6}}},
		},
	}

	sol, err := exactSolver().Solve(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, domain.StatusOptimal, sol.Status)

	assert.Greater(t, sol.LPSolves, 0)
	assert.InDelta(t, bruteForce(p), sol.Objective, 1e-9)
	_, cost, floorCost := p.Evaluate(sol.Choice)
	assert.LessOrEqual(t, cost, p.Capacity)
	assert.GreaterOrEqual(t, floorCost, p.FloorMin)
	// The floor leaves room for one rich item; need-1's top tier is the best way to fill it.
	assert.Equal(t, []int{1, 0, 2, 0}, sol.Choice)
}

func TestBranchAndBound_Infeasible(t *testing.T) {
	tests := []struct {
		name string
		p    *BinaryProgram
	}{
		{
			name: "floor above what the floor groups can absorb",
			p: &BinaryProgram{
				Capacity: 100, HasFloor: true, FloorMin: 80,
				Groups: []Group{
					{ID: "a", Floor: true, Items: []Item{{Cost: 0}, {Cost: 50, Value: 1}}},
					{ID: "b", Items: []Item{{Cost: 0}, {Cost: 50, Value: 1}}},
				},
			},
		},
		{
			name: "tier granularity misses the floor",
			p: &BinaryProgram{
				Capacity: 70, HasFloor: true, FloorMin: 60,
				Groups: []Group{
					{ID: "a", Floor: true, Items: []Item{{Cost: 0}, {Cost: 50, Value: 1}}},
					{ID: "b", Floor: true, Items: []Item{{Cost: 0}, {Cost: 50, Value: 1}}},
				},
			},
		},
		{
			name: "mandatory spend over budget",
			p: &BinaryProgram{
				Capacity: 10,
				Groups:   []Group{{ID: "a", Items: []Item{{Cost: 20, Value: 1}}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sol, err := exactSolver().Solve(context.Background(), tt.p)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusInfeasible, sol.Status)
			assert.Nil(t, sol.Choice)
			assert.NotEmpty(t, sol.Message)
		})
	}
}

func TestBranchAndBound_ZeroCapacity(t *testing.T) {
	p := &BinaryProgram{
		Capacity: 0,
		HasFloor: true,
		FloorMin: 0,
		Groups: []Group{
			{ID: "a", Floor: true, Items: []Item{{Cost: 0}, {Tier: 1, Cost: 50, Value: 10}}},
			{ID: "b", Items: []Item{{Cost: 0}, {Tier: 1, Cost: 50, Value: 20}}},
		},
	}

	sol, err := exactSolver().Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOptimal, sol.Status)
	assert.Equal(t, []int{0, 0}, sol.Choice)
	assert.Equal(t, 0.0, sol.Objective)
}

func TestBranchAndBound_EmptyProgram(t *testing.T) {
	sol, err := exactSolver().Solve(context.Background(), &BinaryProgram{Capacity: 10})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOptimal, sol.Status)
	assert.Empty(t, sol.Choice)
}

func TestBranchAndBound_InvalidProgram(t *testing.T) {
	p := &BinaryProgram{Capacity: 10, Groups: []Group{{ID: "a"}}}
	_, err := exactSolver().Solve(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no items")
}

func TestBranchAndBound_Cancelled(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	p := randomProgram(rng, 6)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sol, err := exactSolver().Solve(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNotSolved, sol.Status)
	assert.Equal(t, "cancelled", sol.Message)
	assert.Zero(t, sol.Nodes)
}

func TestBranchAndBound_NodeLimitKeepsIncumbent(t *testing.T) {
	p := &BinaryProgram{}
	for g := 0; g < 30; g++ {
		p.Groups = append(p.Groups, Group{
			ID:    string(rune('A' + g)),
			Items: []Item{{Cost: 0}, {Tier: 1, Cost: 7, Value: 10 + float64(g%5)}, {Tier: 2, Cost: 11, Value: 15 + float64(g%3)}},
		})
	}
	// A fractional capacity keeps the root relaxation fractional.
	p.Capacity = 150.5

	solver := NewBranchAndBound(BranchAndBoundOptions{MaxNodes: 1, RelativeGap: 1e-12}, zerolog.Nop())
	sol, err := solver.Solve(context.Background(), p)
	require.NoError(t, err)

	require.Equal(t, domain.StatusFeasible, sol.Status)
	assert.Equal(t, "node limit reached", sol.Message)
	assert.True(t, p.Feasible(sol.Choice))
	assert.GreaterOrEqual(t, sol.Bound, sol.Objective)
	assert.Equal(t, 1, sol.Nodes)
}

func TestUpperHull(t *testing.T) {
	items := []Item{
		{Cost: 0, Value: 0},
		{Cost: 10, Value: 5},
		{Cost: 20, Value: 6}, // below the segment from 10 to 30
		{Cost: 30, Value: 12},
		{Cost: 30, Value: 11}, // same cost, lower value
		{Cost: 40, Value: 12}, // no gain
	}
	allowed := []bool{true, true, true, true, true, true}

	assert.Equal(t, []int{0, 1, 3}, upperHull(items, allowed))

	allowed[1] = false
	assert.Equal(t, []int{0, 3}, upperHull(items, allowed))
}

func TestKnapsackRelaxation_Fractional(t *testing.T) {
	p := &BinaryProgram{
		Capacity: 15,
		Groups: []Group{
			{ID: "a", Items: []Item{{Cost: 0}, {Cost: 10, Value: 10}}},
			{ID: "b", Items: []Item{{Cost: 0}, {Cost: 10, Value: 8}}},
		},
	}
	v, ok := presolve(p, [][]bool{{true, true}, {true, true}})
	require.True(t, ok)

	r := knapsackRelaxation(p, v)
	assert.InDelta(t, 14.0, r.value, 1e-12)
	assert.Equal(t, []float64{0, 1}, r.x[0])
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, r.x[1], 1e-12)
}

func TestPresolve_RemovesItemsThatCannotFit(t *testing.T) {
	p := &BinaryProgram{
		Capacity: 30,
		Groups: []Group{
			{ID: "a", Items: []Item{{Cost: 0}, {Cost: 20, Value: 1}, {Cost: 50, Value: 3}}},
			{ID: "b", Items: []Item{{Cost: 10}, {Cost: 40, Value: 2}}},
		},
	}
	allowed := [][]bool{{true, true, true}, {true, true}}

	v, ok := presolve(p, allowed)
	require.True(t, ok)
	assert.Equal(t, []bool{true, true, false}, allowed[0])
	assert.Equal(t, []bool{true, false}, allowed[1])
	assert.Equal(t, []int{0}, v.free)
	assert.Equal(t, -1, v.fixed[0])
	assert.Equal(t, 0, v.fixed[1])
	assert.InDelta(t, 20.0, v.capacity, 1e-12)
}
