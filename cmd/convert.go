package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/mandelbrot/internal/sink"
	"yqhp/mandelbrot/pkg/logger"
)

func newConvertCmd(opts *rootOptions) *cobra.Command {
	convertCmd := &cobra.Command{
		Use:   "convert <raw-file>",
		Short: "转换 raw 图像文件",
		Long: `读取 run 或 master 写出的 raw 文件，写入其他格式。
图像尺寸和最大迭代次数从 raw 文件头读取。

可用格式: raw, png, tiff, bmp`,
		Example: `  mandelbrot convert outFile -o png=set.png -o tiff=set.tiff`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, opts, args[0])
		},
	}

	convertCmd.Flags().StringArrayP("out", "o", nil, "输出目标 format=path，可重复")

	return convertCmd
}

func runConvert(cmd *cobra.Command, opts *rootOptions, input string) error {
	if !cmd.Flags().Changed("out") {
		return errors.New("至少需要一个 --out 输出目标")
	}
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

	pic, err := sink.ReadRawFile(input)
	if err != nil {
		return fmt.Errorf("读取 %s 失败: %w", input, err)
	}

	log.Info("converting", zap.String("input", input),
		zap.Int("rows", pic.Rows()), zap.Int("cols", pic.Cols()))

	return writeOutputs(pic, sinks, log)
}
