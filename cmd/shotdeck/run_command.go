package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/derekmu8/video-scraping/internal/app/run"
	"github.com/derekmu8/video-scraping/internal/config"
	"github.com/derekmu8/video-scraping/internal/infra/fsx"
	"github.com/derekmu8/video-scraping/internal/ledger"
	"github.com/derekmu8/video-scraping/internal/logging"
)

const (
	lockName = ".shotdeck.lock"
	logName  = "shotdeck.log"
)

type runFlags struct {
	output        string
	method        string
	target        int
	concurrency   int
	clipFilter    string
	session       string
	metadataCache bool
	ledger        bool
	logLevel      string
	logFormat     string
}

func newRunCommand(configFlag *string) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "发现 shot、抓取元数据、下载 clip 并输出分组结果",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := cliArgs(cmd, *configFlag, f)
			return runPipeline(cmd.Context(), cli, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.output, "output", "o", "", "输出目录（默认 ./output）")
	fl.StringVarP(&f.method, "method", "m", "", "发现方式：search|cdn（默认 search）")
	fl.IntVarP(&f.target, "target", "n", 0, "最多处理的 shot 数（0 表示不设上限；默认 2000）")
	fl.IntVarP(&f.concurrency, "concurrency", "j", 0, "下载并发数（默认 3，上限 16）")
	fl.StringVar(&f.clipFilter, "clip-filter", "", "search 方法保留哪类条目：with_clip|without_clip")
	fl.StringVar(&f.session, "session", "", "会话 cookie 值（也可用 "+config.EnvSession+"）")
	fl.BoolVar(&f.metadataCache, "metadata-cache", false, "缓存详情 HTML 到 <output>/cache/details")
	fl.BoolVar(&f.ledger, "ledger", true, "把运行记录写入 <output>/"+ledger.FileName)
	fl.StringVar(&f.logLevel, "log-level", "", "日志级别：debug|info|warn|error")
	fl.StringVar(&f.logFormat, "log-format", "", "日志格式：console|json")
	return cmd
}

// cliArgs 把 flag 转为 config.CLIArgs；只有显式给出的 flag 才参与覆盖。
func cliArgs(cmd *cobra.Command, configPath string, f runFlags) config.CLIArgs {
	changed := cmd.Flags().Changed
	return config.CLIArgs{
		ConfigPath:       configPath,
		Output:           f.output,
		OutputSet:        changed("output"),
		Method:           f.method,
		MethodSet:        changed("method"),
		Target:           f.target,
		TargetSet:        changed("target"),
		Concurrency:      f.concurrency,
		ConcurrencySet:   changed("concurrency"),
		ClipFilter:       f.clipFilter,
		ClipFilterSet:    changed("clip-filter"),
		Session:          f.session,
		SessionSet:       changed("session"),
		MetadataCache:    f.metadataCache,
		MetadataCacheSet: changed("metadata-cache"),
		Ledger:           f.ledger,
		LedgerSet:        changed("ledger"),
		LogLevel:         f.logLevel,
		LogLevelSet:      changed("log-level"),
		LogFormat:        f.logFormat,
		LogFormatSet:     changed("log-format"),
	}
}

func runPipeline(ctx context.Context, cli config.CLIArgs, stdout, stderr io.Writer) error {
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

	if err := fsx.EnsureDir(eff.OutputDir); err != nil {
		return &exitError{code: exitFailed, err: fmt.Errorf("创建输出目录失败：%w", err)}
	}

	// 同一输出目录同时只允许一个运行（否则两个进程会写同一个 clip/文档）。
	lock := flock.New(filepath.Join(eff.OutputDir, lockName))
	ok, err := lock.TryLock()
	if err != nil {
		return &exitError{code: exitFailed, err: fmt.Errorf("获取目录锁失败：%w", err)}
	}
	if !ok {
		return &exitError{code: exitFailed, err: fmt.Errorf("输出目录 %s 正在被另一个 shotdeck 使用", eff.OutputDir)}
	}
	defer func() { _ = lock.Unlock() }()

	progressW, interactive := pickProgressWriter(stdout, stderr)

	// 交互终端上进度由 progress UI 展示，日志写入输出目录，避免两者交错。
	logW := stderr
	if interactive {
		f, err := os.OpenFile(filepath.Join(eff.OutputDir, logName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return &exitError{code: exitFailed, err: fmt.Errorf("打开日志文件失败：%w", err)}
		}
		defer f.Close()
		logW = f
	}
	log, err := logging.New(logging.Options{Level: eff.LogLevel, Format: eff.LogFormat, Writer: logW})
	if err != nil {
		return &exitError{code: exitUsage, err: err}
	}

	deps, err := run.NewDeps(eff, log)
	if err != nil {
		return &exitError{code: exitUsage, err: err}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var obs run.Observer
	var ui *progressUI
	if interactive {
		ui = newProgressUI(progressW)
		obs = ui
	}

	res := run.ExecuteWithObserver(ctx, eff, deps, obs)
	if ui != nil {
		ui.Stop()
	}

	docPath, err := run.WriteDocument(eff.OutputDir, res.Document)
	if err != nil {
		return &exitError{code: exitFailed, err: fmt.Errorf("写入 %s 失败：%w", run.DocumentName, err)}
	}
	log.Info("document written", slog.String("path", docPath))

	if eff.Ledger {
		if err := recordLedger(context.WithoutCancel(ctx), eff.OutputDir, res, docPath); err != nil {
			// ledger 只是附加记录，失败不影响本次结果。
			log.Warn("ledger write failed", slog.Any("error", err))
			fmt.Fprintf(stderr, "写入运行记录失败：%v\n", err)
		}
	}

	if err := emitResult(stdout, stderr, res, docPath); err != nil {
		return &exitError{code: exitFailed, err: err}
	}

	if ctx.Err() != nil {
		return &exitError{code: exitFailed, err: errors.New("运行被中断，已写入部分结果")}
	}
	if res.Failed() > 0 {
		return &exitError{code: exitFailed}
	}
	return nil
}

func recordLedger(ctx context.Context, dir string, res run.Result, docPath string) error {
	store, err := ledger.Open(ctx, dir)
	if err != nil {
		return err
	}
	defer store.Close()
	r, items := run.LedgerEntry(res, docPath)
	return store.RecordRun(ctx, r, items)
}

// emitResult：stdout 是终端时输出摘要表格；否则 stdout 只输出一个 JSON 文档，
// 一行完成摘要写到 stderr。
func emitResult(stdout, stderr io.Writer, res run.Result, docPath string) error {
	if isTerminal(stdout) {
		_, err := fmt.Fprint(stdout, renderSummary(res, docPath))
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res.Document); err != nil {
		return err
	}
	st := res.Document.Stats
	fmt.Fprintf(stderr, "完成：downloaded=%d existing=%d failed=%d groups=%d document=%s\n",
		st.VideosDownloaded, st.VideosExisting, st.VideosFailed, st.UniqueGroups, docPath,
	)
	return nil
}

// pickProgressWriter：进度输出只在交互终端启用；优先 stderr，不污染 stdout。
func pickProgressWriter(stdout, stderr io.Writer) (io.Writer, bool) {
	if isTerminal(stderr) {
		return stderr, true
	}
	if isTerminal(stdout) {
		return stdout, true
	}
	return nil, false
}
