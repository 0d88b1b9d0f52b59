package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/aidalloc/internal/modules/impact"
	"github.com/aristath/aidalloc/internal/modules/optimization"
	"github.com/aristath/aidalloc/internal/modules/scenario"
	"github.com/aristath/aidalloc/internal/utils"
)

type discreteOptions struct {
	budget            float64
	minHighNeedShare  float64
	maxPerInstitution float64
	tiers             string
	riskThreshold     float64
	candidateLimit    int
	minSelectivity    float64
	timeLimit         time.Duration
	maxNodes          int
	limit             int
}

func newDiscreteCmd(root *rootOptions) *cobra.Command {
	opts := &discreteOptions{}
	cmd := &cobra.Command{
		Use:   "discrete",
		Short: "Choose one investment tier per high-risk institution",
		Long: "Selects the highest-risk, lowest-retention institutions and solves a binary\n" +
			"integer program that picks one investment tier for each, maximising projected\n" +
			"retained students under the budget, the per-institution cap and the high-need floor.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDiscrete(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.Float64Var(&opts.budget, "budget", optimization.DefaultTotalBudget, "Total budget")
	f.Float64Var(&opts.minHighNeedShare, "min-high-need-share", optimization.DefaultMinHighNeedShare, "Requested share of the budget for high-need institutions")
	f.Float64Var(&opts.maxPerInstitution, "max-per-institution", optimization.DefaultMaxPerInstitution, "Largest investment in one institution")
	f.StringVar(&opts.tiers, "tiers", "", "Comma-separated investment tiers, starting with 0")
	f.Float64Var(&opts.riskThreshold, "risk-threshold", scenario.DefaultRiskThreshold, "Minimum risk index of a candidate")
	f.IntVar(&opts.candidateLimit, "candidate-limit", scenario.DefaultCandidateLimit, "Number of lowest-retention candidates to optimize over")
	f.Float64Var(&opts.minSelectivity, "min-selectivity", 0, "Drop candidates reporting a selectivity metric below this value (0 disables)")
	f.DurationVar(&opts.timeLimit, "time-limit", optimization.DefaultTimeLimit, "Solver time limit (0 disables)")
	f.IntVar(&opts.maxNodes, "max-nodes", optimization.DefaultMaxNodes, "Branch-and-bound node limit")
	f.IntVar(&opts.limit, "limit", optimization.DefaultDisplayLimit, "Allocations listed in the output")
	return cmd
}

func runDiscrete(cmd *cobra.Command, root *rootOptions, opts *discreteOptions) error {
	a, err := root.setup(cmd)
	if err != nil {
		return err
	}
	if err := opts.apply(cmd, a); err != nil {
		return err
	}

	ds, err := a.loadDataset(cmd)
	if err != nil {
		return err
	}

	solver := optimization.NewBranchAndBound(a.cfg.SolverOptions(), a.log)
	optimizer := optimization.NewDiscreteOptimizer(solver, impact.NewScorer(), a.log)
	optimizer.SetObserver(a.recorder)
	runner := scenario.NewRunner(scenario.NewSelector(a.log), optimizer, a.log)

	res, err := runner.Run(cmd.Context(), ds.Institutions, a.cfg.Criteria(), a.cfg.DiscreteRequest())
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}
	if err := a.emit(res); err != nil {
		return err
	}
	return checkStatus(res.Status, res.Message)
}

// apply copies the flags set on the command line over the configuration.
func (o *discreteOptions) apply(cmd *cobra.Command, a *app) error {
	flags := cmd.Flags()
	c := a.cfg
	if flags.Changed("budget") {
		c.Discrete.Budget = o.budget
	}
	if flags.Changed("min-high-need-share") {
		c.Discrete.MinHighNeedShare = o.minHighNeedShare
	}
	if flags.Changed("max-per-institution") {
		c.Discrete.MaxPerInstitution = o.maxPerInstitution
	}
	if flags.Changed("tiers") {
		tiers, err := utils.ParseFloatList(o.tiers)
		if err != nil {
			return fmt.Errorf("invalid --tiers: %w", err)
		}
		c.Discrete.Tiers = tiers
	}
	if flags.Changed("limit") {
		c.Discrete.DisplayLimit = o.limit
	}
	if flags.Changed("risk-threshold") {
		c.Scenario.RiskThreshold = o.riskThreshold
	}
	if flags.Changed("candidate-limit") {
		c.Scenario.CandidateLimit = o.candidateLimit
	}
	if flags.Changed("min-selectivity") {
		c.Scenario.MinSelectivity = o.minSelectivity
	}
	if flags.Changed("time-limit") {
		c.Solver.TimeLimit = o.timeLimit
	}
	if flags.Changed("max-nodes") {
		c.Solver.MaxNodes = o.maxNodes
	}
	return c.Validate()
}
