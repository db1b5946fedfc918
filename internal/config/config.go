package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/derekmu8/video-scraping/internal/domain"
	"github.com/derekmu8/video-scraping/internal/logging"
)

const (
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeSessionMissing 表示 search 方法缺少会话 cookie。
	ErrCodeSessionMissing = "session_missing"
)

const (
	FileName   = "shotdeck.toml"
	DotEnvName = ".env"
	// EnvSession 覆盖配置文件中的会话 cookie（可放在 .env 中）。
	EnvSession = "SHOTDECK_SESSION"
)

const (
	MethodSearch = "search"
	MethodCDN    = "cdn"
)

// 内置默认值（CLI、环境变量与配置文件都未指定时使用）。
const (
	DefaultOutputDir       = "output"
	DefaultTarget          = 2000
	DefaultConcurrency     = 3
	MaxConcurrency         = 16
	DefaultPageSize        = 36
	DefaultPageDelay       = 300 * time.Millisecond
	DefaultMetadataDelay   = 500 * time.Millisecond
	DefaultGenerationWait  = 300 * time.Millisecond
	DefaultRequestTimeout  = 30 * time.Second
	DefaultDownloadTimeout = 120 * time.Second
	DefaultCookieName      = "PHPSESSID"
)

// DefaultEndpoints 是站点的固定地址；只在测试或站点迁移时需要改。
var DefaultEndpoints = Endpoints{
	Search:       "https://shotdeck.com/browse/searchstillsajax",
	Viewclip:     "https://crunch.shotdeck.com/browse/viewclip/src/1/s",
	VideoBase:    "https://crunch.shotdeck.com/assets/images/clips",
	MetadataBase: "https://shotdeck.com/browse/shotdetailsajax/image",
	CDNDirectory: "https://crunch.shotdeck.com/assets/images/clips/",
}

// CLIArgs 保留“是否显式指定”的信息，保证 --x=零值 也能覆盖配置文件。
type CLIArgs struct {
	ConfigPath string

	// Offline 用于不访问站点的子命令（history），跳过会话检查。
	Offline bool

	Output    string
	OutputSet bool

	Method    string
	MethodSet bool

	Target    int
	TargetSet bool

	Concurrency    int
	ConcurrencySet bool

	ClipFilter    string
	ClipFilterSet bool

	Session    string
	SessionSet bool

	MetadataCache    bool
	MetadataCacheSet bool

	Ledger    bool
	LedgerSet bool

	LogLevel    string
	LogLevelSet bool

	LogFormat    string
	LogFormatSet bool
}

// FileConfig 对应 shotdeck.toml。指针字段区分“未设置”与“显式为 0”。
type FileConfig struct {
	OutputDir        string `toml:"output_dir"`
	Method           string `toml:"method"`
	Target           *int   `toml:"target"`
	Concurrency      int    `toml:"concurrency"`
	ClipFilter       string `toml:"clip_filter"`
	PageSize         int    `toml:"page_size"`
	PageDelayMS      *int   `toml:"page_delay_ms"`
	MetadataDelayMS  *int   `toml:"metadata_delay_ms"`
	GenerationWaitMS *int   `toml:"generation_wait_ms"`
	RequestTimeoutS  int    `toml:"request_timeout_s"`
	DownloadTimeoutS int    `toml:"download_timeout_s"`
	MetadataCache    bool   `toml:"metadata_cache"`
	Ledger           *bool  `toml:"ledger"`

	Session   SessionConfig   `toml:"session"`
	Endpoints EndpointsConfig `toml:"endpoints"`
	Log       LogConfig       `toml:"log"`
}

type SessionConfig struct {
	CookieName string `toml:"cookie_name"`
	Cookie     string `toml:"cookie"`
}

type EndpointsConfig struct {
	Search       string `toml:"search"`
	Viewclip     string `toml:"viewclip"`
	VideoBase    string `toml:"video_base"`
	MetadataBase string `toml:"metadata_base"`
	CDNDirectory string `toml:"cdn_directory"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Endpoints struct {
	Search       string
	Viewclip     string
	VideoBase    string
	MetadataBase string
	CDNDirectory string
}

// EffectiveConfig 是合并并规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// ConfigPath 是实际读取的配置文件；未读取时为空。
	ConfigPath string

	OutputDir   string
	Method      string
	Target      int // 0 表示不设上限
	Concurrency int
	ClipFilter  domain.ClipFilter
	PageSize    int

	PageDelay       time.Duration
	MetadataDelay   time.Duration
	GenerationWait  time.Duration
	RequestTimeout  time.Duration
	DownloadTimeout time.Duration

	MetadataCache bool
	Ledger        bool

	CookieName string
	Cookie     string

	Endpoints Endpoints

	LogLevel  string
	LogFormat string
}

// HasSession 表示是否配置了会话 cookie。
func (c EffectiveConfig) HasSession() bool { return c.Cookie != "" }

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeSessionMissing:
		return fmt.Sprintf("%s：search 方法需要会话 cookie（--session、%s 或 [session].cookie）", e.Code, EnvSession)
	case ErrCodeInvalid:
		if e.Path == "" && e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 读取配置并与 CLI 参数合并为最终配置。
//
// 发现规则：
// - CLI 给了 --config：必须存在
// - 否则读取 <cwd>/shotdeck.toml（可选）
// - <cwd>/.env 可选，只提供环境变量的默认值（进程环境变量优先）
//
// 覆盖优先级：CLI 显式指定 > 环境变量 > 配置文件 > 内置默认。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	required := false
	if strings.TrimSpace(cli.ConfigPath) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
		required = true
	}

	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		if required {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: os.ErrNotExist}
		}
		cfgPath = ""
	}

	env, err := readEnv(filepath.Join(cwdAbs, DotEnvName))
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: filepath.Join(cwdAbs, DotEnvName), Err: err}
	}

	return merge(cwdAbs, cli, env, fc, cfgPath)
}

func merge(cwdAbs string, cli CLIArgs, env map[string]string, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, args...)}
	}

	eff := EffectiveConfig{ConfigPath: cfgPath}

	// output：CLI > config > 默认
	out := DefaultOutputDir
	if cli.OutputSet {
		out = cli.Output
	} else if strings.TrimSpace(fc.OutputDir) != "" {
		out = fc.OutputDir
	}
	if strings.TrimSpace(out) == "" {
		return EffectiveConfig{}, invalid("output_dir 不能为空")
	}
	eff.OutputDir = absCleanFrom(cwdAbs, out)

	method := MethodSearch
	if cli.MethodSet {
		method = cli.Method
	} else if strings.TrimSpace(fc.Method) != "" {
		method = fc.Method
	}
	method = strings.ToLower(strings.TrimSpace(method))
	if method != MethodSearch && method != MethodCDN {
		return EffectiveConfig{}, invalid("method 只能是 search 或 cdn，实际是 %q", method)
	}
	eff.Method = method

	eff.Target = DefaultTarget
	if cli.TargetSet {
		eff.Target = cli.Target
	} else if fc.Target != nil {
		eff.Target = *fc.Target
	}
	if eff.Target < 0 {
		return EffectiveConfig{}, invalid("target 不能为负数：%d", eff.Target)
	}

	concurrency := fc.Concurrency
	if cli.ConcurrencySet {
		concurrency = cli.Concurrency
	}
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	// 超出 [1, MaxConcurrency] 截断。
	eff.Concurrency = min(max(concurrency, 1), MaxConcurrency)

	filter := string(domain.ClipFilterWithClip)
	if cli.ClipFilterSet {
		filter = cli.ClipFilter
	} else if strings.TrimSpace(fc.ClipFilter) != "" {
		filter = fc.ClipFilter
	}
	switch domain.ClipFilter(strings.TrimSpace(filter)) {
	case domain.ClipFilterWithClip:
		eff.ClipFilter = domain.ClipFilterWithClip
	case domain.ClipFilterWithoutClip:
		if method == MethodCDN {
			return EffectiveConfig{}, invalid("cdn 方法只能发现有 clip 的 shot（clip_filter=without_clip 不可用）")
		}
		eff.ClipFilter = domain.ClipFilterWithoutClip
	default:
		return EffectiveConfig{}, invalid("clip_filter 只能是 with_clip 或 without_clip，实际是 %q", filter)
	}

	if fc.PageSize < 0 {
		return EffectiveConfig{}, invalid("page_size 不能为负数：%d", fc.PageSize)
	}
	eff.PageSize = fc.PageSize
	if eff.PageSize == 0 {
		eff.PageSize = DefaultPageSize
	}

	var err error
	if eff.PageDelay, err = msOrDefault("page_delay_ms", fc.PageDelayMS, DefaultPageDelay); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if eff.MetadataDelay, err = msOrDefault("metadata_delay_ms", fc.MetadataDelayMS, DefaultMetadataDelay); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if eff.GenerationWait, err = msOrDefault("generation_wait_ms", fc.GenerationWaitMS, DefaultGenerationWait); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if fc.RequestTimeoutS < 0 || fc.DownloadTimeoutS < 0 {
		return EffectiveConfig{}, invalid("超时时间不能为负数")
	}
	eff.RequestTimeout = secondsOrDefault(fc.RequestTimeoutS, DefaultRequestTimeout)
	eff.DownloadTimeout = secondsOrDefault(fc.DownloadTimeoutS, DefaultDownloadTimeout)

	eff.MetadataCache = fc.MetadataCache
	if cli.MetadataCacheSet {
		eff.MetadataCache = cli.MetadataCache
	}
	eff.Ledger = true
	if cli.LedgerSet {
		eff.Ledger = cli.Ledger
	} else if fc.Ledger != nil {
		eff.Ledger = *fc.Ledger
	}

	// session：CLI > 环境变量（进程 > .env）> config
	eff.CookieName = strings.TrimSpace(fc.Session.CookieName)
	if eff.CookieName == "" {
		eff.CookieName = DefaultCookieName
	}
	eff.Cookie = strings.TrimSpace(fc.Session.Cookie)
	if v, ok := lookupEnv(env, EnvSession); ok {
		eff.Cookie = v
	}
	if cli.SessionSet {
		eff.Cookie = strings.TrimSpace(cli.Session)
	}
	if method == MethodSearch && eff.Cookie == "" && !cli.Offline {
		return EffectiveConfig{}, &Error{Code: ErrCodeSessionMissing, Path: cfgPath}
	}

	eff.Endpoints = Endpoints{
		Search:       orDefault(fc.Endpoints.Search, DefaultEndpoints.Search),
		Viewclip:     orDefault(fc.Endpoints.Viewclip, DefaultEndpoints.Viewclip),
		VideoBase:    orDefault(fc.Endpoints.VideoBase, DefaultEndpoints.VideoBase),
		MetadataBase: orDefault(fc.Endpoints.MetadataBase, DefaultEndpoints.MetadataBase),
		CDNDirectory: orDefault(fc.Endpoints.CDNDirectory, DefaultEndpoints.CDNDirectory),
	}
	for name, u := range map[string]string{
		"endpoints.search":        eff.Endpoints.Search,
		"endpoints.viewclip":      eff.Endpoints.Viewclip,
		"endpoints.video_base":    eff.Endpoints.VideoBase,
		"endpoints.metadata_base": eff.Endpoints.MetadataBase,
		"endpoints.cdn_directory": eff.Endpoints.CDNDirectory,
	} {
		if err := validateHTTPURL(u); err != nil {
			return EffectiveConfig{}, invalid("%s 无效：%v", name, err)
		}
	}

	eff.LogLevel = orDefault(fc.Log.Level, "info")
	if cli.LogLevelSet {
		eff.LogLevel = cli.LogLevel
	}
	if _, err := logging.ParseLevel(eff.LogLevel); err != nil {
		return EffectiveConfig{}, invalid("log.level 无效：%v", err)
	}
	eff.LogFormat = strings.ToLower(orDefault(fc.Log.Format, "console"))
	if cli.LogFormatSet {
		eff.LogFormat = strings.ToLower(strings.TrimSpace(cli.LogFormat))
	}
	if eff.LogFormat != "console" && eff.LogFormat != "json" {
		return EffectiveConfig{}, invalid("log.format 只能是 console 或 json，实际是 %q", eff.LogFormat)
	}

	return eff, nil
}

func msOrDefault(name string, v *int, def time.Duration) (time.Duration, error) {
	if v == nil {
		return def, nil
	}
	if *v < 0 {
		return 0, fmt.Errorf("%s 不能为负数：%d", name, *v)
	}
	return time.Duration(*v) * time.Millisecond, nil
}

func secondsOrDefault(v int, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return time.Duration(v) * time.Second
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("必须是 http/https：%q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("缺少 host：%q", raw)
	}
	return nil
}

// lookupEnv：进程环境变量优先，其次 .env。空值视为未设置。
func lookupEnv(dotenv map[string]string, key string) (string, bool) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v, true
	}
	if v := strings.TrimSpace(dotenv[key]); v != "" {
		return v, true
	}
	return "", false
}

// readEnv 解析 .env（不写入进程环境）；文件不存在返回空 map。
func readEnv(path string) (map[string]string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	return godotenv.Read(path)
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 TOML 配置文件（未知字段报错，避免拼写错误被静默忽略）。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	defer f.Close()

	dec := toml.NewDecoder(f).DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
