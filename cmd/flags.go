package cmd

import (
	"github.com/spf13/cobra"

	"yqhp/mandelbrot/internal/config"
)

// renderFlag 将命令行标志映射到配置路径
type renderFlag struct {
	name string
	path string
}

var renderFlags = []renderFlag{
	{"startx", "render.start_x"},
	{"starty", "render.start_y"},
	{"endx", "render.end_x"},
	{"endy", "render.end_y"},
	{"its", "render.max_iterations"},
	{"rows", "render.rows"},
	{"cols", "render.cols"},
	{"workers", "workers"},
	{"schedule", "master.schedule"},
	{"address", "master.address"},
	{"wait-timeout", "master.wait_timeout"},
	{"master", "worker.master_addr"},
	{"id", "worker.id"},
	{"summary", "output.summary"},
}

// addRenderFlags 注册渲染参数标志，默认值仅用于帮助信息
func addRenderFlags(cmd *cobra.Command) {
	def := config.DefaultConfig().Render
	f := cmd.Flags()
	f.Float64("startx", def.StartX, "复平面左边界")
	f.Float64("starty", def.StartY, "复平面下边界")
	f.Float64("endx", def.EndX, "复平面右边界")
	f.Float64("endy", def.EndY, "复平面上边界")
	f.Int("its", def.MaxIterations, "最大迭代次数")
	f.Int("rows", def.Rows, "图像行数")
	f.Int("cols", def.Cols, "图像列数")
}

// addOutputFlags 注册输出标志
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayP("out", "o", nil, "输出目标 format=path，可重复；裸路径表示 raw 格式")
	cmd.Flags().Bool("summary", false, "结束后打印统计表")
}

// flagOverrides 收集显式设置的标志，交给配置加载器按路径覆盖
func flagOverrides(cmd *cobra.Command) map[string]string {
	args := make(map[string]string)
	for _, rf := range renderFlags {
		f := cmd.Flags().Lookup(rf.name)
		if f == nil || !f.Changed {
			continue
		}
		args[rf.path] = f.Value.String()
	}
	return args
}
