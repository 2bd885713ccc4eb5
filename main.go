package main

import (
	"JamFM/cmd"
)

func main() {
	cmd.Execute()
	// Execute 出错时 Cobra 会自行 os.Exit，走到这里说明命令正常结束。
}
