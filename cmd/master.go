package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/mandelbrot/internal/config"
	"yqhp/mandelbrot/internal/master"
	"yqhp/mandelbrot/internal/transport/wstransport"
	"yqhp/mandelbrot/pkg/logger"
)

func newMasterCmd(opts *rootOptions) *cobra.Command {
	masterCmd := &cobra.Command{
		Use:   "master",
		Short: "启动网络主节点",
		Long: `启动网络主节点，等待指定数量的工作节点通过 WebSocket 注册，
然后按行动态分配任务，全部完成后写出图像并退出。

工作节点数量在运行期间固定；任一工作节点在收到终止消息前断开，
本次渲染失败。`,
		Example: `  # 在 7070 端口等待 4 个工作节点
  mandelbrot master --workers 4 -o png=set.png

  # 最多等待 30 秒
  mandelbrot master --address :9000 --workers 2 --wait-timeout 30s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMaster(cmd, opts)
		},
	}

	addRenderFlags(masterCmd)
	addOutputFlags(masterCmd)
	masterCmd.Flags().IntP("workers", "w", config.DefaultConfig().Workers, "等待的工作节点数量")
	masterCmd.Flags().StringP("address", "a", ":7070", "监听地址")
	masterCmd.Flags().Duration("wait-timeout", 0, "等待工作节点注册的超时时间，0 表示一直等待")

	return masterCmd
}

func runMaster(cmd *cobra.Command, opts *rootOptions) error {
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

	printBanner(cmd, opts)

	sigCtx, cancel := signalContext(cmd.Context())
	defer cancel()
	ctx, cancelCause := context.WithCancelCause(sigCtx)
	defer cancelCause(nil)

	params := cfg.Render.Params()
	log = log.With(zap.String("run", uuid.NewString()))

	server, err := wstransport.NewServer(wstransport.ServerConfig{
		Address: cfg.Master.Address,
		Workers: cfg.Workers,
		Params:  params,
		Logger:  log,
	})
	if err != nil {
		return fmt.Errorf("创建主节点失败: %w", err)
	}
	defer server.Close()

	go func() {
		if err := server.ListenAndServe(); err != nil {
			cancelCause(fmt.Errorf("监听 %s 失败: %w", cfg.Master.Address, err))
		}
	}()

	log.Info("waiting for workers",
		zap.String("address", cfg.Master.Address),
		zap.Int("workers", cfg.Workers))

	waitCtx := ctx
	if cfg.Master.WaitTimeout > 0 {
		var waitCancel context.CancelFunc
		waitCtx, waitCancel = context.WithTimeout(ctx, cfg.Master.WaitTimeout)
		defer waitCancel()
	}
	if err := server.WaitForWorkers(waitCtx); err != nil {
		return fmt.Errorf("等待工作节点失败: %w", causeOf(ctx, err))
	}
	log.Info("all workers registered", zap.Int("workers", len(server.Workers())))

	scheduler, err := master.NewScheduler(params, server, master.Options{Logger: log})
	if err != nil {
		return err
	}

	start := time.Now()
	pic, err := scheduler.Run(ctx)
	if err != nil {
		return fmt.Errorf("渲染失败: %w", causeOf(ctx, err))
	}
	log.Info("render finished", zap.Duration("elapsed", time.Since(start)))

	if err := server.Close(); err != nil {
		log.Warn("closing server", zap.Error(err))
	}

	if err := writeOutputs(pic, sinks, log); err != nil {
		return err
	}

	if cfg.Output.Summary && !opts.quiet {
		summary := scheduler.Stats()
		if _, err := summary.WriteTo(cmd.OutOrStdout()); err != nil {
			return err
		}
	}
	return nil
}

// causeOf 优先返回上下文取消的原因
func causeOf(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
	}
	return err
}
