package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/aidalloc/internal/domain"
	"github.com/aristath/aidalloc/internal/modules/allocation"
)

func newCompareCmd(root *rootOptions) *cobra.Command {
	opts := &strategyOptions{}
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Run every continuous strategy under one budget and compare them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCompare(cmd, root, opts)
		},
	}
	opts.register(cmd)
	return cmd
}

func runCompare(cmd *cobra.Command, root *rootOptions, opts *strategyOptions) error {
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
	cmp, err := allocation.NewComparator(allocator, a.log).Compare(cmd.Context(), ds.Institutions, req)
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}
	if err := a.emit(cmp); err != nil {
		return err
	}

	// The comparison is usable when at least one strategy allocated.
	for _, row := range cmp.Rows {
		if row.Status == domain.StatusOptimal {
			return nil
		}
	}
	first := cmp.Rows[0]
	return checkStatus(first.Status, cmp.Results[first.Strategy].Message)
}
