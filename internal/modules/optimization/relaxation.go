package optimization

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// view is a branch-and-bound node after presolve: groups with a single
// allowed item are fixed and folded into the residual budget and floor.
type view struct {
	allowed    [][]bool
	fixed      []int // chosen item of a fixed group, -1 when free
	cheapest   []int // cheapest allowed item per group, highest value on ties
	free       []int
	fixedValue float64
	capacity   float64 // budget left for the free groups
	floor      float64 // floor left for the free groups, <= 0 when already met
}

func tolerance(scale float64) float64 {
	return feasibilityTol * math.Max(1, math.Abs(scale))
}

// presolve fixes single-item groups, removes items that cannot fit the
// residual budget and detects nodes whose relaxation is infeasible.
// allowed is owned by the node and modified in place.
func presolve(p *BinaryProgram, allowed [][]bool) (*view, bool) {
	v := &view{
		allowed:  allowed,
		fixed:    make([]int, len(p.Groups)),
		cheapest: make([]int, len(p.Groups)),
	}
	capTol := tolerance(p.Capacity)

	for {
		v.free = v.free[:0]
		v.fixedValue = 0
		v.capacity = p.Capacity
		v.floor = p.FloorMin
		spare := p.Capacity

		for g, grp := range p.Groups {
			v.fixed[g] = -1
			count, cheap := 0, -1
			for j, it := range grp.Items {
				if !allowed[g][j] {
					continue
				}
				count++
				if cheap < 0 {
					cheap = j
					continue
				}
				c := grp.Items[cheap]
				if it.Cost < c.Cost || (it.Cost == c.Cost && it.Value > c.Value) {
					cheap = j
				}
			}
			if count == 0 {
				return nil, false
			}
			v.cheapest[g] = cheap
			cost := grp.Items[cheap].Cost
			spare -= cost
			if count == 1 {
				v.fixed[g] = cheap
				v.fixedValue += grp.Items[cheap].Value
				v.capacity -= cost
				if grp.Floor {
					v.floor -= cost
				}
				continue
			}
			v.free = append(v.free, g)
		}
		if spare < -capTol {
			return nil, false
		}

		changed := false
		for _, g := range v.free {
			base := p.Groups[g].Items[v.cheapest[g]].Cost
			for j, it := range p.Groups[g].Items {
				if allowed[g][j] && it.Cost-base > spare+capTol {
					allowed[g][j] = false
					changed = true
				}
			}
		}
		if changed {
			continue
		}

		if p.HasFloor && v.floor > tolerance(p.FloorMin) {
			reach, gain := 0.0, 0.0
			for _, g := range v.free {
				if !p.Groups[g].Floor {
					continue
				}
				base := p.Groups[g].Items[v.cheapest[g]].Cost
				top := base
				for j, it := range p.Groups[g].Items {
					if allowed[g][j] && it.Cost > top {
						top = it.Cost
					}
				}
				reach += base
				gain += top - base
			}
			reach += math.Min(gain, math.Max(spare, 0))
			if reach < v.floor-tolerance(p.FloorMin) {
				return nil, false
			}
		}
		return v, true
	}
}

// floorMet reports whether the residual floor is already satisfied.
func (v *view) floorMet(p *BinaryProgram) bool {
	return !p.HasFloor || v.floor <= tolerance(p.FloorMin)
}

// relaxation is an LP solution of a node. x[g] is nil for fixed groups.
type relaxation struct {
	value     float64
	x         [][]float64
	floorCost float64 // floor cost contributed by the free groups
}

func (r *relaxation) computeFloorCost(p *BinaryProgram, v *view) {
	r.floorCost = 0
	for _, g := range v.free {
		if !p.Groups[g].Floor {
			continue
		}
		for j, xj := range r.x[g] {
			r.floorCost += xj * p.Groups[g].Items[j].Cost
		}
	}
}

// upperHull returns the allowed items of a group on the upper concave hull
// of (cost, value), ordered by cost. Items off the hull never appear in an
// optimal solution of the budget-only relaxation.
func upperHull(items []Item, allowed []bool) []int {
	idx := make([]int, 0, len(items))
	for j := range items {
		if allowed[j] {
			idx = append(idx, j)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ia, ib := items[idx[a]], items[idx[b]]
		if ia.Cost != ib.Cost {
			return ia.Cost < ib.Cost
		}
		return ia.Value > ib.Value
	})

	pts := make([]int, 0, len(idx))
	best := math.Inf(-1)
	for _, j := range idx {
		if items[j].Value <= best {
			continue
		}
		best = items[j].Value
		pts = append(pts, j)
	}

	hull := make([]int, 0, len(pts))
	for _, j := range pts {
		for len(hull) >= 2 {
			a, b, c := items[hull[len(hull)-2]], items[hull[len(hull)-1]], items[j]
			if (b.Value-a.Value)*(c.Cost-a.Cost) <= (c.Value-a.Value)*(b.Cost-a.Cost) {
				hull = hull[:len(hull)-1]
				continue
			}
			break
		}
		hull = append(hull, j)
	}
	return hull
}

// knapsackRelaxation solves the node's LP without the floor row exactly:
// every free group starts at its cheapest hull point and hull steps are
// bought in order of decreasing value per unit cost until the budget runs
// out, the last one possibly fractionally.
func knapsackRelaxation(p *BinaryProgram, v *view) relaxation {
	type step struct {
		g, from, to int
		dc, dv, eff float64
	}

	r := relaxation{value: v.fixedValue, x: make([][]float64, len(p.Groups))}
	spare := v.capacity
	var steps []step

	for _, g := range v.free {
		items := p.Groups[g].Items
		hull := upperHull(items, v.allowed[g])
		r.x[g] = make([]float64, len(items))
		r.x[g][hull[0]] = 1
		r.value += items[hull[0]].Value
		spare -= items[hull[0]].Cost
		for k := 0; k+1 < len(hull); k++ {
			a, b := items[hull[k]], items[hull[k+1]]
			dc, dv := b.Cost-a.Cost, b.Value-a.Value
			steps = append(steps, step{g: g, from: hull[k], to: hull[k+1], dc: dc, dv: dv, eff: dv / dc})
		}
	}

	// Steps of one group have strictly decreasing efficiency, so a stable
	// sort keeps them in hull order.
	sort.SliceStable(steps, func(a, b int) bool { return steps[a].eff > steps[b].eff })

	for _, s := range steps {
		if spare <= 0 {
			break
		}
		if s.dc <= spare {
			r.x[s.g][s.from] = 0
			r.x[s.g][s.to] = 1
			r.value += s.dv
			spare -= s.dc
			continue
		}
		t := spare / s.dc
		r.x[s.g][s.from] = 1 - t
		r.x[s.g][s.to] = t
		r.value += t * s.dv
		break
	}

	r.computeFloorCost(p, v)
	return r
}

// errRelaxationInfeasible is returned when the node LP has no solution.
var errRelaxationInfeasible = errors.New("relaxation infeasible")

// simplexRelaxation solves the node LP including the floor row with gonum's
// simplex. The program is put in standard form with one row per free group,
// a budget row with a slack column and a floor row with a surplus column.
// Money is scaled by the largest amount in play and values by the largest
// value so that the simplex tolerances are meaningful.
func simplexRelaxation(p *BinaryProgram, v *view, tol float64) (relaxation, error) {
	type column struct{ g, j int }

	costScale, valueScale := math.Max(v.capacity, v.floor), 0.0
	var cols []column
	colOf := make(map[int][]int, len(v.free))
	for _, g := range v.free {
		pos := make([]int, len(p.Groups[g].Items))
		for j, it := range p.Groups[g].Items {
			pos[j] = -1
			if !v.allowed[g][j] {
				continue
			}
			pos[j] = len(cols)
			cols = append(cols, column{g: g, j: j})
			costScale = math.Max(costScale, it.Cost)
			valueScale = math.Max(valueScale, math.Abs(it.Value))
		}
		colOf[g] = pos
	}
	if costScale <= 0 {
		costScale = 1
	}
	if valueScale <= 0 {
		valueScale = 1
	}

	nFree := len(v.free)
	budgetRow, floorRow := nFree, nFree+1
	rows, n := nFree+2, len(cols)+2
	slackCol, surplusCol := len(cols), len(cols)+1

	A := mat.NewDense(rows, n, nil)
	c := make([]float64, n)
	b := make([]float64, rows)
	rowOf := make(map[int]int, nFree)
	for i, g := range v.free {
		rowOf[g] = i
		b[i] = 1
	}
	for k, col := range cols {
		grp := p.Groups[col.g]
		it := grp.Items[col.j]
		A.Set(rowOf[col.g], k, 1)
		A.Set(budgetRow, k, it.Cost/costScale)
		if grp.Floor {
			A.Set(floorRow, k, it.Cost/costScale)
		}
		c[k] = -it.Value / valueScale
	}
	A.Set(budgetRow, slackCol, 1)
	A.Set(floorRow, surplusCol, -1)
	b[budgetRow] = math.Max(v.capacity, 0) / costScale
	b[floorRow] = v.floor / costScale

	basis := startBasis(p, v, colOf, slackCol, surplusCol)
	optF, optX, err := runSimplex(c, A, b, tol, basis)
	if err != nil && basis != nil && errors.Is(err, errBasisRejected) {
		optF, optX, err = runSimplex(c, A, b, tol, nil)
	}
	if err != nil {
		if errors.Is(err, lp.ErrInfeasible) {
			return relaxation{}, errRelaxationInfeasible
		}
		return relaxation{}, fmt.Errorf("simplex on %d rows x %d columns: %w", rows, n, err)
	}

	r := relaxation{value: v.fixedValue - optF*valueScale, x: make([][]float64, len(p.Groups))}
	for _, g := range v.free {
		r.x[g] = make([]float64, len(p.Groups[g].Items))
	}
	for k, col := range cols {
		r.x[col.g][col.j] = math.Max(0, optX[k])
	}
	r.computeFloorCost(p, v)
	return r, nil
}

var errBasisRejected = errors.New("start basis rejected")

// runSimplex calls lp.Simplex, turning its panic on an unusable start basis
// into an error so the caller can retry with a phase-one start.
func runSimplex(c []float64, A mat.Matrix, b []float64, tol float64, basis []int) (optF float64, optX []float64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if basis == nil {
				panic(rec)
			}
			err = fmt.Errorf("%w: %v", errBasisRejected, rec)
		}
	}()
	return lp.Simplex(c, A, b, tol, basis)
}

// startBasis builds an integral feasible assignment of the free groups and
// returns its basic columns: the chosen item of every group plus the slack
// and surplus columns. It returns nil when the greedy assignment misses the
// floor, leaving the start to the simplex phase one.
func startBasis(p *BinaryProgram, v *view, colOf map[int][]int, slackCol, surplusCol int) []int {
	choice := make(map[int]int, len(v.free))
	spare, floorCost := v.capacity, 0.0
	var floorGroups []int
	for _, g := range v.free {
		j := v.cheapest[g]
		choice[g] = j
		spare -= p.Groups[g].Items[j].Cost
		if p.Groups[g].Floor {
			floorCost += p.Groups[g].Items[j].Cost
			floorGroups = append(floorGroups, g)
		}
	}

	maxCost := func(g int) float64 {
		top := 0.0
		for j, it := range p.Groups[g].Items {
			if v.allowed[g][j] && it.Cost > top {
				top = it.Cost
			}
		}
		return top
	}
	sort.SliceStable(floorGroups, func(a, b int) bool { return maxCost(floorGroups[a]) > maxCost(floorGroups[b]) })

	floorTol := tolerance(p.FloorMin)
	for _, g := range floorGroups {
		if floorCost >= v.floor-floorTol {
			break
		}
		cur := p.Groups[g].Items[choice[g]].Cost
		best := choice[g]
		for j, it := range p.Groups[g].Items {
			if v.allowed[g][j] && it.Cost-cur <= spare && it.Cost > p.Groups[g].Items[best].Cost {
				best = j
			}
		}
		delta := p.Groups[g].Items[best].Cost - cur
		spare -= delta
		floorCost += delta
		choice[g] = best
	}
	if floorCost < v.floor || spare < 0 {
		return nil
	}

	basis := make([]int, 0, len(v.free)+2)
	for _, g := range v.free {
		basis = append(basis, colOf[g][choice[g]])
	}
	return append(basis, slackCol, surplusCol)
}
