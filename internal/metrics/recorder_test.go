package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aidalloc/internal/domain"
	"github.com/aristath/aidalloc/internal/modules/allocation"
	"github.com/aristath/aidalloc/internal/modules/optimization"
)

var (
	_ optimization.SolveObserver   = (*Recorder)(nil)
	_ allocation.StrategyObserver = (*Recorder)(nil)
)

func TestRecorder_ObserveSolve(t *testing.T) {
	r := NewRecorder()
	r.ObserveSolve(domain.StatusOptimal, 12, 3, 40*time.Millisecond)
	r.ObserveSolve(domain.StatusOptimal, 4, 0, 10*time.Millisecond)
	r.ObserveSolve(domain.StatusInfeasible, 1, 1, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.solves.WithLabelValues("Optimal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.solves.WithLabelValues("Infeasible")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.lpSolves))
	assert.Equal(t, 1, testutil.CollectAndCount(r.solveNodes))
}

func TestRecorder_ObserveStrategy(t *testing.T) {
	r := NewRecorder()
	r.ObserveStrategy("base", domain.StatusOptimal, 1_000_000)
	r.ObserveStrategy("base", domain.StatusOptimal, 750_000)
	r.ObserveStrategy("performance", domain.StatusNoCandidates, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.strategyRuns.WithLabelValues("base", "Optimal")))
	assert.Equal(t, 750_000.0, testutil.ToFloat64(r.strategyAllocated.WithLabelValues("base")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.strategyAllocated))

	expected := `
# HELP aidalloc_strategy_runs_total Continuous strategy runs by strategy and status.
# TYPE aidalloc_strategy_runs_total counter
aidalloc_strategy_runs_total{status="NoCandidates",strategy="performance"} 1
aidalloc_strategy_runs_total{status="Optimal",strategy="base"} 2
`
	require.NoError(t, testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected), "aidalloc_strategy_runs_total"))
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveSolve(domain.StatusOptimal, 1, 1, time.Second)
		r.ObserveStrategy("base", domain.StatusOptimal, 1)
	})
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteFile(filepath.Join(t.TempDir(), "metrics.prom")))
}

func TestRecorder_WriteFile(t *testing.T) {
	r := NewRecorder()
	r.ObserveSolve(domain.StatusFeasible, 20_000, 150, 30*time.Second)

	path := filepath.Join(t.TempDir(), "aidalloc.prom")
	require.NoError(t, r.WriteFile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `aidalloc_solver_solves_total{status="Feasible"} 1`)
	assert.Contains(t, string(raw), "aidalloc_solver_lp_solves_total 150")
}
