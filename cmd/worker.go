package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/mandelbrot/internal/transport/wstransport"
	"yqhp/mandelbrot/internal/worker"
	"yqhp/mandelbrot/pkg/logger"
)

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "启动网络工作节点",
		Long: `连接主节点并注册，然后循环计算主节点分配的行，
直到收到终止消息后退出。渲染参数由主节点在注册时下发。`,
		Example: `  # 连接本机主节点
  mandelbrot worker

  # 指定主节点地址和节点 ID
  mandelbrot worker --master 10.0.0.1:7070 --id worker-a`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd, opts)
		},
	}

	workerCmd.Flags().StringP("master", "m", "localhost:7070", "主节点地址")
	workerCmd.Flags().String("id", "", "工作节点 ID（为空则由主节点分配）")

	return workerCmd
}

func runWorker(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	ep, params, err := wstransport.Dial(ctx, cfg.Worker.MasterAddr, cfg.Worker.ID, log)
	if err != nil {
		return fmt.Errorf("连接主节点失败: %w", err)
	}
	defer ep.Close()

	log.Info("registered with master",
		zap.String("master", cfg.Worker.MasterAddr),
		zap.String("worker", string(ep.ID())),
		zap.Int("rows", params.Plane.Rows),
		zap.Int("cols", params.Plane.Cols))

	st, err := worker.New(ep, params, log).Run(ctx)
	if err != nil {
		return err
	}

	if !opts.quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "worker %s: %d rows, busy %s, elapsed %s\n",
			st.ID, st.Rows, st.Busy, st.Elapsed)
	}
	return nil
}
