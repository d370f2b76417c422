package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"yqhp/mandelbrot/internal/config"
	"yqhp/mandelbrot/internal/master"
	"yqhp/mandelbrot/internal/picture"
	"yqhp/mandelbrot/internal/sink"
	"yqhp/mandelbrot/internal/stats"
	"yqhp/mandelbrot/internal/transport"
	"yqhp/mandelbrot/internal/worker"
	"yqhp/mandelbrot/pkg/logger"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "单进程渲染",
		Long: `在同一进程内启动主节点和多个工作节点，通过内存通道通信。

调度方式:
  dynamic - 动态分配，工作节点完成一行后领取下一行（默认）
  static  - 静态分配，每个工作节点负责一段连续的行`,
		Example: `  # 默认参数渲染到 outFile
  mandelbrot run

  # 8 个工作节点，输出 png 和 raw
  mandelbrot run --workers 8 --rows 768 --cols 1024 -o png=set.png -o set.raw

  # 放大到海马谷
  mandelbrot run --startx -0.76 --endx -0.72 --starty 0.08 --endy 0.12 --its 1000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStandalone(cmd, opts)
		},
	}

	addRenderFlags(runCmd)
	addOutputFlags(runCmd)
	runCmd.Flags().IntP("workers", "w", config.DefaultConfig().Workers, "工作节点数量")
	runCmd.Flags().String("schedule", "dynamic", "调度方式 (dynamic, static)")

	return runCmd
}

func runStandalone(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	sinks, err := createSinks(cfg.Output.Targets, log)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	params := cfg.Render.Params()
	log = log.With(zap.String("run", uuid.NewString()))
	log.Info("starting render",
		zap.String("schedule", cfg.Master.Schedule),
		zap.Int("workers", cfg.Workers),
		zap.Int("rows", params.Plane.Rows),
		zap.Int("cols", params.Plane.Cols),
		zap.Int("max_iterations", params.MaxIterations))

	start := time.Now()
	var (
		pic     *picture.Picture
		summary *stats.Summary
	)
	if cfg.Master.Schedule == "static" {
		pic, err = master.RunStatic(ctx, params, cfg.Workers, log)
	} else {
		var s stats.Summary
		pic, s, err = runDynamic(ctx, cfg, log)
		summary = &s
	}
	if err != nil {
		return fmt.Errorf("渲染失败: %w", err)
	}
	log.Info("render finished", zap.Duration("elapsed", time.Since(start)))

	if err := writeOutputs(pic, sinks, log); err != nil {
		return err
	}

	if cfg.Output.Summary && !opts.quiet {
		if summary != nil {
			_, err = summary.WriteTo(cmd.OutOrStdout())
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wall time\t%s\n", time.Since(start))
	}
	return nil
}

// runDynamic 在内存通道上运行动态调度器和工作节点
func runDynamic(ctx context.Context, cfg *config.Config, log *zap.Logger) (*picture.Picture, stats.Summary, error) {
	params := cfg.Render.Params()
	hub, endpoints := transport.NewLocal(cfg.Workers)
	defer hub.Close()

	scheduler, err := master.NewScheduler(params, hub, master.Options{Logger: log})
	if err != nil {
		return nil, stats.Summary{}, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, ep := range endpoints {
		w := worker.New(ep, params, log)
		g.Go(func() error {
			st, err := w.Run(gctx)
			if err != nil {
				return err
			}
			log.Debug("worker done",
				zap.String("worker", string(st.ID)),
				zap.Int("rows", st.Rows),
				zap.Duration("busy", st.Busy))
			return nil
		})
	}

	pic, runErr := scheduler.Run(gctx)
	if runErr != nil {
		// unblock workers still waiting for an assignment
		_ = hub.Close()
	}
	waitErr := g.Wait()
	if runErr != nil {
		return nil, stats.Summary{}, runErr
	}
	if waitErr != nil {
		return nil, stats.Summary{}, waitErr
	}
	return pic, scheduler.Stats(), nil
}

// writeOutputs 将完整图像写入全部输出
func writeOutputs(pic *picture.Picture, sinks []sink.Sink, log *zap.Logger) error {
	for _, s := range sinks {
		log.Info("writing output", zap.String("sink", s.Description()))
	}
	if err := sink.WriteAll(pic, sinks); err != nil {
		return fmt.Errorf("写入输出失败: %w", err)
	}
	return nil
}
