package optimization

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/aidalloc/internal/domain"
)

// Branch-and-bound defaults
const (
	DefaultMaxNodes    = 20_000
	DefaultRelativeGap = 1e-4
	DefaultTimeLimit   = 30 * time.Second
	DefaultLPTolerance = 1e-10

	integralityTol = 1e-6
)

// BranchAndBoundOptions bound the work of one solve.
type BranchAndBoundOptions struct {
	MaxNodes    int
	RelativeGap float64
	TimeLimit   time.Duration // zero disables the limit; the context still applies
	LPTolerance float64
}

// DefaultBranchAndBoundOptions returns the default limits.
func DefaultBranchAndBoundOptions() BranchAndBoundOptions {
	return BranchAndBoundOptions{
		MaxNodes:    DefaultMaxNodes,
		RelativeGap: DefaultRelativeGap,
		TimeLimit:   DefaultTimeLimit,
		LPTolerance: DefaultLPTolerance,
	}
}

// BranchAndBound is a depth-first branch-and-bound solver for BinaryProgram.
// Node relaxations are solved with the multiple-choice knapsack greedy when
// the floor row is slack and with gonum's simplex otherwise.
type BranchAndBound struct {
	opts BranchAndBoundOptions
	log  zerolog.Logger
}

// NewBranchAndBound creates a solver. Zero-valued options fall back to defaults.
func NewBranchAndBound(opts BranchAndBoundOptions, log zerolog.Logger) *BranchAndBound {
	def := DefaultBranchAndBoundOptions()
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = def.MaxNodes
	}
	if opts.RelativeGap <= 0 {
		opts.RelativeGap = def.RelativeGap
	}
	if opts.LPTolerance <= 0 {
		opts.LPTolerance = def.LPTolerance
	}
	return &BranchAndBound{
		opts: opts,
		log:  log.With().Str("component", "branch_and_bound").Logger(),
	}
}

type node struct {
	allowed [][]bool
	bound   float64
	depth   int
}

// search holds the state of one Solve call.
type search struct {
	p         *BinaryProgram
	opts      BranchAndBoundOptions
	incumbent []int
	best      float64
	nodes     int
	lpSolves  int
	log       zerolog.Logger
}

// Solve implements Solver.
func (b *BranchAndBound) Solve(ctx context.Context, p *BinaryProgram) (Solution, error) {
	if err := p.Validate(); err != nil {
		return Solution{}, fmt.Errorf("invalid program: %w", err)
	}
	if b.opts.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.TimeLimit)
		defer cancel()
	}

	s := &search{p: p, opts: b.opts, best: math.Inf(-1), log: b.log}
	if len(p.Groups) == 0 {
		if p.HasFloor && p.FloorMin > tolerance(p.FloorMin) {
			return Solution{Status: domain.StatusInfeasible, Message: "floor cannot be met without groups"}, nil
		}
		return Solution{Status: domain.StatusOptimal, Choice: []int{}}, nil
	}

	root := node{allowed: make([][]bool, len(p.Groups)), bound: math.Inf(1)}
	for g, grp := range p.Groups {
		root.allowed[g] = make([]bool, len(grp.Items))
		for j := range grp.Items {
			root.allowed[g][j] = true
		}
	}

	b.log.Debug().
		Int("groups", len(p.Groups)).
		Int("variables", p.Variables()).
		Float64("capacity", p.Capacity).
		Bool("has_floor", p.HasFloor).
		Float64("floor", p.FloorMin).
		Msg("Starting branch and bound")

	stack := []node{root}
	stopped := ""
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			stopped = "time limit reached"
			if err == context.Canceled {
				stopped = "cancelled"
			}
			break
		}
		if s.nodes >= s.opts.MaxNodes {
			stopped = "node limit reached"
			break
		}

		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if s.prunable(nd.bound) {
			continue
		}
		s.nodes++
		stack = append(stack, s.process(nd)...)
	}

	sol := Solution{Nodes: s.nodes, LPSolves: s.lpSolves}
	open := math.Inf(-1)
	for _, nd := range stack {
		open = math.Max(open, nd.bound)
	}

	switch {
	case s.incumbent != nil && stopped == "":
		sol.Status = domain.StatusOptimal
		sol.Bound = s.best
	case s.incumbent != nil:
		sol.Status = domain.StatusFeasible
		sol.Bound = math.Max(s.best, open)
		sol.Message = stopped
	case stopped == "":
		sol.Status = domain.StatusInfeasible
		sol.Message = "no assignment satisfies the budget and floor constraints"
	default:
		sol.Status = domain.StatusNotSolved
		sol.Message = stopped
	}
	if s.incumbent != nil {
		sol.Choice = s.incumbent
		sol.Objective = s.best
	}

	evt := b.log.Debug()
	if sol.Status != domain.StatusOptimal {
		evt = b.log.Warn()
	}
	evt.Str("status", string(sol.Status)).
		Int("nodes", sol.Nodes).
		Int("lp_solves", sol.LPSolves).
		Float64("objective", sol.Objective).
		Str("reason", sol.Message).
		Msg("Branch and bound finished")
	return sol, nil
}

func (s *search) prunable(bound float64) bool {
	if s.incumbent == nil {
		return false
	}
	return bound <= s.best+s.opts.RelativeGap*math.Max(math.Abs(s.best), 1)
}

// process solves one node and returns the children to explore.
func (s *search) process(nd node) []node {
	v, ok := presolve(s.p, nd.allowed)
	if !ok {
		return nil
	}
	if len(v.free) == 0 {
		if v.floorMet(s.p) {
			s.offer(append([]int(nil), v.fixed...))
		}
		return nil
	}

	r := knapsackRelaxation(s.p, v)
	short := !v.floorMet(s.p) && r.floorCost < v.floor-tolerance(s.p.FloorMin)
	if short {
		s.lpSolves++
		lpr, err := simplexRelaxation(s.p, v, s.opts.LPTolerance)
		switch {
		case err == errRelaxationInfeasible:
			return nil
		case err != nil:
			// The budget-only relaxation is still a valid bound.
			s.log.Debug().Err(err).Int("depth", nd.depth).Msg("Simplex failed, branching on budget-only relaxation")
		case lpr.value > r.value+tolerance(r.value):
			s.log.Debug().Int("depth", nd.depth).Msg("Discarding simplex solution above budget-only bound")
		default:
			r, short = lpr, false
		}
	}

	if s.prunable(r.value) {
		return nil
	}

	group, item, ok := s.branchOn(v, r, short)
	if !ok {
		return nil
	}
	if group < 0 {
		s.offer(s.roundChoice(v, r, false))
		return nil
	}

	s.heuristics(v, r)
	if s.prunable(r.value) {
		return nil
	}

	fix := cloneAllowed(v.allowed)
	for j := range fix[group] {
		fix[group][j] = j == item
	}
	exclude := cloneAllowed(v.allowed)
	exclude[group][item] = false

	// The fixing child is popped first.
	return []node{
		{allowed: exclude, bound: r.value, depth: nd.depth + 1},
		{allowed: fix, bound: r.value, depth: nd.depth + 1},
	}
}

// branchOn picks the most fractional group and its largest item. When the
// relaxation is integral but short of the floor, it picks a floor group that
// can still move to a more expensive item. group is -1 when r is an integral
// solution to offer; ok is false when the node cannot reach the floor.
func (s *search) branchOn(v *view, r relaxation, short bool) (group, item int, ok bool) {
	group, item = -1, -1
	weakest := 1.0
	for _, g := range v.free {
		top, arg := -1.0, -1
		for j, xj := range r.x[g] {
			if xj > top {
				top, arg = xj, j
			}
		}
		if top < 1-integralityTol && top < weakest {
			weakest, group, item = top, g, arg
		}
	}
	if group >= 0 || !short {
		return group, item, true
	}

	for _, g := range v.free {
		if !s.p.Groups[g].Floor {
			continue
		}
		cur := -1
		for j, xj := range r.x[g] {
			if xj >= 1-integralityTol {
				cur = j
			}
		}
		if cur < 0 {
			continue
		}
		for j, it := range s.p.Groups[g].Items {
			if v.allowed[g][j] && it.Cost > s.p.Groups[g].Items[cur].Cost {
				return g, cur, true
			}
		}
	}
	return -1, -1, false
}

// offer records choice as the incumbent when it is feasible and better.
func (s *search) offer(choice []int) {
	if choice == nil || !s.p.Feasible(choice) {
		return
	}
	value, _, _ := s.p.Evaluate(choice)
	if s.incumbent == nil || value > s.best {
		s.incumbent = choice
		s.best = value
		s.log.Debug().Float64("objective", value).Int("node", s.nodes).Msg("New incumbent")
	}
}

// roundChoice turns a relaxation into an integral choice. Fractional groups
// take the cheapest item in the support, or the most expensive one for floor
// groups when up is set.
func (s *search) roundChoice(v *view, r relaxation, up bool) []int {
	choice := make([]int, len(s.p.Groups))
	for g := range s.p.Groups {
		if v.fixed[g] >= 0 {
			choice[g] = v.fixed[g]
			continue
		}
		items := s.p.Groups[g].Items
		pick, top := -1, -1.0
		for j, xj := range r.x[g] {
			if xj > top {
				pick, top = j, xj
			}
		}
		if top >= 1-integralityTol {
			choice[g] = pick
			continue
		}
		pickUp := up && s.p.Groups[g].Floor
		pick = -1
		for j, xj := range r.x[g] {
			if xj <= integralityTol {
				continue
			}
			if pick < 0 ||
				(!pickUp && items[j].Cost < items[pick].Cost) ||
				(pickUp && items[j].Cost > items[pick].Cost) {
				pick = j
			}
		}
		choice[g] = pick
	}
	return choice
}

// heuristics derives incumbents from a fractional relaxation.
func (s *search) heuristics(v *view, r relaxation) {
	for _, up := range []bool{false, true} {
		choice := s.roundChoice(v, r, up)
		s.fill(v, choice)
		s.offer(choice)
	}
}

// fill spends leftover budget on the upgrade with the best value per unit
// cost among the node's allowed items until nothing else fits.
func (s *search) fill(v *view, choice []int) {
	_, cost, _ := s.p.Evaluate(choice)
	spare := s.p.Capacity - cost
	for spare > 0 {
		bestG, bestJ, bestEff := -1, -1, 0.0
		for _, g := range v.free {
			cur := s.p.Groups[g].Items[choice[g]]
			for j, it := range s.p.Groups[g].Items {
				if !v.allowed[g][j] {
					continue
				}
				dc, dv := it.Cost-cur.Cost, it.Value-cur.Value
				if dc <= 0 || dv <= 0 || dc > spare {
					continue
				}
				if eff := dv / dc; eff > bestEff {
					bestG, bestJ, bestEff = g, j, eff
				}
			}
		}
		if bestG < 0 {
			return
		}
		spare -= s.p.Groups[bestG].Items[bestJ].Cost - s.p.Groups[bestG].Items[choice[bestG]].Cost
		choice[bestG] = bestJ
	}
}

func cloneAllowed(src [][]bool) [][]bool {
	out := make([][]bool, len(src))
	for i, row := range src {
		out[i] = append([]bool(nil), row...)
	}
	return out
}
