package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/Zacy-Sokach/RoboDash/internal/report"
	"github.com/Zacy-Sokach/RoboDash/internal/scenario"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type replayOptions struct {
	speed      float64
	reportPath string
}

func newReplayCmd(root *rootOptions) *cobra.Command {
	opts := &replayOptions{}
	cmd := &cobra.Command{
		Use:   "replay <file|demo>",
		Short: "无界面回放 AppState 剧本，打印状态切换和播报",
		Long: `Replays a YAML scenario of AppState snapshots through the robot state
engine and prints every transition with its announcement. Use "demo" for the
built-in scenario that walks through every state.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, root, opts, args[0])
		},
	}
	cmd.Flags().Float64Var(&opts.speed, "speed", 1.0, "回放倍速（例如 2.0 = 2 倍速）")
	cmd.Flags().StringVar(&opts.reportPath, "report", "", "保存切换历史（.md / .html / .json）")
	return cmd
}

func runReplay(cmd *cobra.Command, root *rootOptions, opts *replayOptions, source string) error {
	var (
		sc  *scenario.Scenario
		err error
	)
	if source == "demo" {
		sc = scenario.Demo()
	} else if sc, err = scenario.Load(source); err != nil {
		return err
	}

	a, err := newApp(root.configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "回放剧本 %q：%d 步，约 %s\n", sc.Name, len(sc.Steps), sc.Duration())

	transitions, unsubscribe := a.engine.Subscribe(transitionBuffer)
	player := scenario.NewPlayer(sc,
		scenario.WithSpeed(opts.speed),
		scenario.WithStepHook(func(i int, step scenario.Step) {
			a.logger.Debug("scenario step",
				zap.Int("step", i+1),
				zap.String("note", step.Note),
				zap.String("expect", string(step.Expect)))
		}),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return printTransitions(out, transitions)
	})
	g.Go(func() error {
		defer unsubscribe()
		if err := player.Play(gctx, a.engine); err != nil {
			return err
		}
		return settle(gctx, a.engine)
	})
	runErr := g.Wait()

	if opts.reportPath != "" {
		if err := report.Save(opts.reportPath, a.engine.History()); err != nil {
			return err
		}
		fmt.Fprintf(out, "历史已保存到 %s\n", opts.reportPath)
	}
	return runErr
}
