package cmd

import (
	"github.com/spf13/cobra"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "打印生效配置",
		Long: `合并默认值、配置文件、环境变量和命令行参数后，以 YAML 格式打印最终配置。
输出可以直接作为 --config 文件使用。`,
		Example: `  # 生成配置文件模板
  mandelbrot config > render.yaml

  # 查看覆盖后的结果
  MB_WORKERS=16 mandelbrot config --rows 1024`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			data, err := cfg.Serialize()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	addRenderFlags(configCmd)
	addOutputFlags(configCmd)
	configCmd.Flags().IntP("workers", "w", 0, "工作节点数量")

	return configCmd
}
