package main

import (
	"os"
	"runtime/debug"

	"github.com/mezonai/bitvm20/cmd"
	"github.com/mezonai/bitvm20/logx"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			_ = logx.Errorf("MAIN", "crashed: %v\n%s", r, debug.Stack())
			os.Exit(1)
		}
	}()

	cmd.Execute()
}
