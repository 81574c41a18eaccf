package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/Zacy-Sokach/RoboDash/internal/report"
	"github.com/Zacy-Sokach/RoboDash/internal/robot"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type compareOptions struct {
	models     []string
	reportPath string
}

func newCompareCmd(root *rootOptions) *cobra.Command {
	opts := &compareOptions{}
	cmd := &cobra.Command{
		Use:   "compare <prompt>",
		Short: "无界面运行一次多模型对比",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, root, opts, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringSliceVarP(&opts.models, "model", "m", nil, "参与对比的模型，可重复（默认使用配置中的 models）")
	cmd.Flags().StringVar(&opts.reportPath, "report", "", "保存切换历史（.md / .html / .json）")
	return cmd
}

func runCompare(cmd *cobra.Command, root *rootOptions, opts *compareOptions, prompt string) error {
	a, err := newApp(root.configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	models := opts.models
	if len(models) == 0 {
		models = a.cfg.Models
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "对比 %d 个模型: %s\n", len(models), strings.Join(models, ", "))

	transitions, unsubscribe := a.engine.Subscribe(transitionBuffer)

	var results []robot.ModelResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return printTransitions(out, transitions)
	})
	g.Go(func() error {
		defer unsubscribe()
		var compareErr error
		results, compareErr = a.tracker.Compare(gctx, prompt, models)
		if err := settle(gctx, a.engine); err != nil && compareErr == nil {
			return err
		}
		return compareErr
	})
	runErr := g.Wait()

	for _, r := range results {
		printResult(out, r)
	}

	if opts.reportPath != "" {
		if err := report.Save(opts.reportPath, a.engine.History()); err != nil {
			return err
		}
		fmt.Fprintf(out, "历史已保存到 %s\n", opts.reportPath)
	}
	return runErr
}
