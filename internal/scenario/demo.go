package scenario

import (
	_ "embed"
	"fmt"
)

//go:embed demo.yaml
var demoYAML []byte

// Demo 内置演示剧本，依次经过全部四种状态
func Demo() *Scenario {
	s, err := Parse(demoYAML)
	if err != nil {
		panic(fmt.Sprintf("内置剧本无效: %v", err))
	}
	return s
}
