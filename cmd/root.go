// Package cmd 提供 Mandelbrot 分布式渲染 CLI 的命令实现。
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/mandelbrot/internal/config"
	"yqhp/mandelbrot/internal/sink"
	"yqhp/mandelbrot/pkg/logger"
)

// Version 版本信息
const Version = "1.0.0"

// Banner 启动横幅
const Banner = `
  __  __                 _      _ _               _
 |  \/  | __ _ _ __   __| | ___| | |__  _ __ ___ | |_
 | |\/| |/ _' | '_ \ / _' |/ _ \ | '_ \| '__/ _ \| __|
 | |  | | (_| | | | | (_| |  __/ | |_) | | | (_) | |_
 |_|  |_|\__,_|_| |_|\__,_|\___|_|_.__/|_|  \___/ \__|
                                          v%s
`

// rootOptions 全局标志
type rootOptions struct {
	cfgFile string
	debug   bool
	quiet   bool
}

// NewRootCmd 创建根命令及全部子命令
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "mandelbrot",
		Short: "分布式 Mandelbrot 渲染器",
		Long: `mandelbrot 通过主从模式并行计算 Mandelbrot 集合图像。

主节点按行动态分配任务：每个工作节点完成一行后立即领取下一行，
直到全部行完成。结果可以写入 raw、png、tiff、bmp 等格式。

模式:
  run     - 单进程模式，主节点与工作节点在同一进程内
  master  - 网络主节点，等待工作节点通过 WebSocket 连接
  worker  - 网络工作节点，连接主节点并计算分配的行`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "启用调试模式")
	rootCmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "静默模式，只输出错误")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate(`{{printf "mandelbrot version %s\n" .Version}}`)

	rootCmd.AddCommand(
		newRunCmd(opts),
		newMasterCmd(opts),
		newWorkerCmd(opts),
		newConvertCmd(opts),
		newStatusCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)

	return rootCmd
}

// Execute 执行根命令
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}

// loadConfig 按 默认值 < 配置文件 < 环境变量 < 命令行 的顺序加载并校验配置
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	loader := config.NewLoader().WithCmdArgs(flagOverrides(cmd))
	if opts.cfgFile != "" {
		loader = loader.WithConfigPath(opts.cfgFile)
	}

	// 输出路径可能包含逗号，不经过点路径覆盖
	if f := cmd.Flags().Lookup("out"); f != nil && f.Changed {
		targets, err := cmd.Flags().GetStringArray("out")
		if err != nil {
			return nil, err
		}
		loader = loader.WithOverride(func(cfg *config.Config) { cfg.Output.Targets = targets })
	}

	loader = loader.WithOverride(func(cfg *config.Config) {
		switch {
		case opts.debug:
			cfg.Logging.Level = "debug"
		case opts.quiet:
			cfg.Logging.Level = "warn"
		}
	})

	return loader.LoadAndValidate()
}

// newLogger 根据配置初始化全局日志并返回
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if err := logger.Init(cfg.Logging.LoggerConfig()); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return logger.L(), nil
}

// createSinks 在计算开始前创建全部输出，格式错误尽早暴露
func createSinks(targets []string, log *zap.Logger) ([]sink.Sink, error) {
	sinks := make([]sink.Sink, 0, len(targets))
	for _, target := range targets {
		params, err := sink.ParseTarget(target)
		if err != nil {
			return nil, err
		}
		params.Logger = log
		s, err := sink.Create(params)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// signalContext 返回在 SIGINT/SIGTERM 时取消的上下文
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func printBanner(cmd *cobra.Command, opts *rootOptions) {
	if !opts.quiet {
		fmt.Fprintf(cmd.OutOrStdout(), Banner, Version)
		fmt.Fprintln(cmd.OutOrStdout())
	}
}
