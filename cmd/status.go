package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"yqhp/mandelbrot/internal/transport/wstransport"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	statusCmd := &cobra.Command{
		Use:     "status",
		Short:   "查看主节点状态",
		Long:    `查询正在运行的主节点：已注册的工作节点数量，以及已分配和已完成的行数。`,
		Example: `  mandelbrot status --master localhost:7070`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, opts)
		},
	}

	statusCmd.Flags().StringP("master", "m", "localhost:7070", "主节点地址")
	statusCmd.Flags().Duration("timeout", 5*time.Second, "请求超时时间")

	return statusCmd
}

func runStatus(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

	status, err := wstransport.FetchStatus(cfg.Worker.MasterAddr, timeout)
	if err != nil {
		return fmt.Errorf("无法连接主节点 %s: %w", cfg.Worker.MasterAddr, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Master 状态: %s\n", cfg.Worker.MasterAddr)
	fmt.Fprintf(out, "  工作节点: %d/%d\n", status.WorkersRegistered, status.WorkersExpected)
	fmt.Fprintf(out, "  已分配行: %d/%d\n", status.RowsAssigned, status.RowsTotal)
	fmt.Fprintf(out, "  已完成行: %d/%d\n", status.RowsCompleted, status.RowsTotal)
	return nil
}
