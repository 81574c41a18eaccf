// robodash 是多模型对比工具的终端机器人伙伴。
//
// Usage:
//
//	robodash                          启动交互式界面
//	robodash replay <file|demo>       无界面回放剧本并打印状态切换
//	robodash compare <prompt> -m ...  无界面运行一次对比
//	robodash models                   列出网关可用模型
//	robodash version                  显示版本
package main

import (
	"fmt"
	"os"
)

// version 构建时通过 -ldflags 设置
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
