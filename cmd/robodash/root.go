package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/Zacy-Sokach/RoboDash/internal/config"
	"github.com/Zacy-Sokach/RoboDash/internal/tui"
	"github.com/Zacy-Sokach/RoboDash/internal/update"
	"github.com/Zacy-Sokach/RoboDash/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "robodash",
		Short: "Terminal robot companion for multi-model comparisons",
		Long: `RoboDash sends one prompt to several models behind an OpenAI-compatible
gateway and shows a robot whose face follows the comparison: thinking while
requests are pending, talking while answers stream, idle or error otherwise.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), opts)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "配置文件路径（默认 "+utils.GetConfigPathForDisplay()+"）")

	cmd.AddCommand(
		newReplayCmd(opts),
		newCompareCmd(opts),
		newModelsCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// releaseAPIURL 测试时替换为本地服务
var releaseAPIURL = ""

func newVersionCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "RoboDash %s\n", version)
			if !check {
				return nil
			}

			res, err := update.NewChecker(releaseAPIURL).Check(cmd.Context(), version)
			if err != nil {
				return fmt.Errorf("检查更新失败: %w", err)
			}
			if res.HasUpdate {
				fmt.Fprintf(out, "发现新版本 %s: %s\n下载: %s\n", res.Latest, res.URL, update.DownloadURL(res.Latest))
			} else {
				fmt.Fprintf(out, "已是最新版本（最新发布 %s）\n", res.Latest)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "检查 GitHub 上是否有新版本")
	return cmd
}

// runTUI 界面和配置监听一起运行，界面退出时停止监听
func runTUI(ctx context.Context, opts *rootOptions) error {
	a, err := newApp(opts.configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	exportDir, err := utils.GetDataPath("exports")
	if err != nil {
		return fmt.Errorf("获取导出目录失败: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	watcher, err := config.NewWatcher(a.configPath, func(cfg *config.Config) {
		a.engine.Reconfigure(cfg.Robot.Timings())
	}, a.logger.Named("config"))
	if err != nil {
		a.logger.Warn("config watcher disabled", zap.Error(err))
	}

	tui.Version = version
	g, gctx := errgroup.WithContext(ctx)
	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}
	g.Go(func() error {
		defer cancel()
		return tui.Run(tui.Config{
			Engine:    a.engine,
			Tracker:   a.tracker,
			Bus:       a.bus,
			Models:    a.cfg.Models,
			ExportDir: exportDir,
			Logger:    a.logger.Named("tui"),
		})
	})
	return g.Wait()
}
