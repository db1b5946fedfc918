package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/derekmu8/video-scraping/internal/config"
	"github.com/derekmu8/video-scraping/internal/domain"
	"github.com/derekmu8/video-scraping/internal/infra/fsx"
	"github.com/derekmu8/video-scraping/internal/ledger"
)

type historyFlags struct {
	output string
	limit  int
	run    string
	status string
}

func newHistoryCommand(configFlag *string) *cobra.Command {
	var f historyFlags

	cmd := &cobra.Command{
		Use:   "history",
		Short: "查看输出目录中记录的历史运行",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := config.CLIArgs{
				ConfigPath: *configFlag,
				Offline:    true,
				Output:     f.output,
				OutputSet:  cmd.Flags().Changed("output"),
			}
			return showHistory(cmd.Context(), cli, f, cmd.OutOrStdout())
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.output, "output", "o", "", "输出目录（默认 ./output）")
	fl.IntVarP(&f.limit, "limit", "n", 20, "最多列出多少次运行（0 表示全部）")
	fl.StringVar(&f.run, "run", "", "列出指定运行的条目")
	fl.StringVar(&f.status, "status", "", "配合 --run 只列出某一状态：downloaded|exists|failed")
	return cmd
}

func showHistory(ctx context.Context, cli config.CLIArgs, f historyFlags, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cwd, err := os.Getwd()
	if err != nil {
		return &exitError{code: exitFailed, err: fmt.Errorf("读取当前目录失败：%w", err)}
	}
	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		return &exitError{code: exitUsage, err: err}
	}

	status, err := parseStatus(f.status)
	if err != nil {
		return &exitError{code: exitUsage, err: err}
	}
	if status != "" && f.run == "" {
		return &exitError{code: exitUsage, err: errors.New("--status 需要和 --run 一起使用")}
	}

	// 不要为了查看历史去创建数据库。
	_, exists, err := fsx.FileSize(filepath.Join(eff.OutputDir, ledger.FileName))
	if err != nil {
		return &exitError{code: exitFailed, err: err}
	}
	if !exists {
		fmt.Fprintf(stdout, "%s 中没有运行记录\n", eff.OutputDir)
		return nil
	}

	store, err := ledger.Open(ctx, eff.OutputDir)
	if err != nil {
		return &exitError{code: exitFailed, err: err}
	}
	defer store.Close()

	if f.run != "" {
		items, err := store.Items(ctx, f.run, status)
		if err != nil {
			return &exitError{code: exitFailed, err: err}
		}
		if len(items) == 0 {
			fmt.Fprintf(stdout, "运行 %s 没有匹配的条目\n", f.run)
			return nil
		}
		fmt.Fprintln(stdout, renderItems(items))
		return nil
	}

	runs, err := store.ListRuns(ctx, f.limit)
	if err != nil {
		return &exitError{code: exitFailed, err: err}
	}
	if len(runs) == 0 {
		fmt.Fprintf(stdout, "%s 中没有运行记录\n", eff.OutputDir)
		return nil
	}
	fmt.Fprintln(stdout, renderHistory(runs))
	return nil
}

func parseStatus(s string) (domain.OutcomeStatus, error) {
	switch st := domain.OutcomeStatus(s); st {
	case "", domain.OutcomeDownloaded, domain.OutcomeExists, domain.OutcomeFailed:
		return st, nil
	default:
		return "", fmt.Errorf("未知的状态 %q（可选 downloaded|exists|failed）", s)
	}
}
