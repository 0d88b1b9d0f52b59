package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/aidalloc/internal/modules/allocation"
)

type strategyOptions struct {
	strategy            string
	budget              float64
	performanceBonusPct float64
	retentionReservePct float64
	minCompletionRate   float64
	maxPerInstitution   float64
	limit               int
	compare             bool
}

func (o *strategyOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64Var(&o.budget, "budget", allocation.DefaultBudget, "Total budget")
	f.Float64Var(&o.performanceBonusPct, "bonus-pct", allocation.DefaultPerformanceBonusPct, "Share of the budget held back as the performance bonus pool")
	f.Float64Var(&o.retentionReservePct, "reserve-pct", allocation.DefaultRetentionReservePct, "Share of the budget held back as the emergency reserve")
	f.Float64Var(&o.minCompletionRate, "min-completion", allocation.DefaultMinCompletionRate, "Minimum completion rate of a candidate")
	f.Float64Var(&o.maxPerInstitution, "max-per-institution", allocation.DefaultMaxPerInstitution, "Cap on one institution's allocation")
	f.IntVar(&o.limit, "limit", allocation.DefaultDisplayLimit, "Allocations listed in the output")
}

// apply copies the flags set on the command line over the configuration and
// returns the resulting request.
func (o *strategyOptions) apply(cmd *cobra.Command, a *app) (allocation.Request, error) {
	flags := cmd.Flags()
	c := &a.cfg.Strategies
	if flags.Changed("strategy") {
		c.Strategy = o.strategy
	}
	if flags.Changed("budget") {
		c.Budget = o.budget
	}
	if flags.Changed("bonus-pct") {
		c.PerformanceBonusPct = o.performanceBonusPct
	}
	if flags.Changed("reserve-pct") {
		c.RetentionReservePct = o.retentionReservePct
	}
	if flags.Changed("min-completion") {
		c.MinCompletionRate = o.minCompletionRate
	}
	if flags.Changed("max-per-institution") {
		c.MaxPerInstitution = o.maxPerInstitution
	}
	if flags.Changed("limit") {
		c.DisplayLimit = o.limit
	}
	return a.cfg.StrategyRequest()
}

func newStrategyCmd(root *rootOptions) *cobra.Command {
	opts := &strategyOptions{}
	cmd := &cobra.Command{
		Use:   "strategy",
		Short: "Allocate the budget with one continuous strategy",
		Long: "Distributes the budget in proportion to expected graduates. The performance\n" +
			"strategy holds back a bonus pool for high value-add institutions; the\n" +
			"retention_trigger strategy holds back an emergency reserve for high dropout risk.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.compare {
				return runCompare(cmd, root, opts)
			}
			return runStrategy(cmd, root, opts)
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVarP(&opts.strategy, "strategy", "s", string(allocation.StrategyBase), "Strategy: base, performance or retention_trigger")
	cmd.Flags().BoolVar(&opts.compare, "compare", false, "Run every strategy and compare them")
	return cmd
}

func runStrategy(cmd *cobra.Command, root *rootOptions, opts *strategyOptions) error {
	a, err := root.setup(cmd)
	if err != nil {
		return err
	}
	req, err := opts.apply(cmd, a)
	if err != nil {
		return err
	}
	ds, err := a.loadDataset(cmd)
	if err != nil {
		return err
	}

	allocator := allocation.NewAllocator(a.log)
	allocator.SetObserver(a.recorder)
	res, err := allocator.Allocate(cmd.Context(), ds.Institutions, req)
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}
	if err := a.emit(res); err != nil {
		return err
	}
	return checkStatus(res.Status, res.Message)
}
