package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// 退出码：0 全部成功；1 有条目失败或运行期错误；2 参数/配置错误。
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

// exitError 携带退出码；err 为 nil 时不再打印（命令已自行输出）。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil && !errors.Is(ee.err, context.Canceled) {
			fmt.Fprintln(os.Stderr, ee.err)
		}
		return ee.code
	}
	// cobra 自身的参数错误（未知 flag、多余参数等）。
	fmt.Fprintln(os.Stderr, err)
	return exitUsage
}
