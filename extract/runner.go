package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/forever-free1/DumpMixer/config"
	"github.com/forever-free1/DumpMixer/watch"
)

// Runner 负责对每个内存转储调用一次外部提取工具
// 提取工具扫描原始内存捕获，把目标模块的页面落盘并产出页面清单日志；
// 本工具只消费它的日志与落盘文件，从不自己解析内存捕获格式
type Runner struct {
	cfg    *config.Config
	logger hclog.Logger
	hub    *watch.Hub
}

// NewRunner 创建一个新的 Runner
// 参数：
//   - cfg: 配置（解释器、提取工具与插件目录的路径）
//   - logger: 结构化日志
//   - hub: 进度事件通知中心，可为 nil
//
// 返回：
//   - *Runner: Runner 指针
func NewRunner(cfg *config.Config, logger hclog.Logger, hub *watch.Hub) *Runner {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Runner{
		cfg:    cfg,
		logger: logger.Named("extract"),
		hub:    hub,
	}
}

// BuildArgs 构造一次提取调用的参数列表（不含解释器本身）
// 字段顺序与提取工具的命令行约定一致，不可调整
// 参数：
//   - dumpFile: 内存转储文件路径
//   - moduleName: 目标模块名
//   - outDir: 页面落盘目录
//   - logPath: 页面清单日志输出路径
//   - profile: 可选的系统画像名，空字符串表示不传
//
// 返回：
//   - []string: 参数列表
func (r *Runner) BuildArgs(dumpFile, moduleName, outDir, logPath, profile string) []string {
	args := []string{
		r.cfg.ExtractorBin,
		"--plugins=" + r.cfg.PluginDir,
	}
	if profile != "" {
		args = append(args, "--profile="+profile)
	}
	args = append(args,
		"-f", dumpFile,
		"-r", moduleName,
		"-D", outDir,
		"--log-memory-pages", logPath,
		"sum",
	)
	return args
}

// ExtractAll 对目录中的每个转储文件调用一次提取工具
// 非零退出码的转储只产生告警并被排除在混合之外；重建会继续使用
// 所有提取成功的日志。转储目录不存在或不可读是致命错误
// 参数：
//   - ctx: 上下文
//   - dumpsDir: 内存转储所在目录
//   - moduleName: 目标模块名
//   - outDir: 日志与页面的落盘目录
//   - profile: 可选的系统画像名
//
// 返回：
//   - []string: 提取成功的日志文件路径列表
//   - []string: 非致命告警
//   - error: 转储目录不可读时返回
func (r *Runner) ExtractAll(ctx context.Context, dumpsDir, moduleName, outDir, profile string) ([]string, []string, error) {
	entries, err := os.ReadDir(dumpsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("读取转储目录失败: %w", err)
	}

	var (
		logs     []string
		warnings []string
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		dumpFile := filepath.Join(dumpsDir, entry.Name())
		if strings.ContainsRune(dumpFile, ' ') {
			warnings = append(warnings, fmt.Sprintf("转储文件名包含空格：%q，提取工具可能无法识别", dumpFile))
		}

		logPath := filepath.Join(outDir, entry.Name()+".log")
		args := r.BuildArgs(dumpFile, moduleName, outDir, logPath, profile)

		r.logger.Debug("调用提取工具", "interpreter", r.cfg.Interpreter, "args", strings.Join(args, " "))
		if r.hub != nil {
			r.hub.NotifyPhase("extract", fmt.Sprintf("提取 %s", dumpFile))
		}

		cmd := exec.CommandContext(ctx, r.cfg.Interpreter, args...)
		output, err := cmd.CombinedOutput()
		if err != nil {
			// 单个转储的提取失败不致命：告警并排除该日志
			msg := fmt.Sprintf("转储 %s 的提取失败，排除其日志：%v", dumpFile, err)
			warnings = append(warnings, msg)
			r.logger.Warn(msg, "output", string(output))
			if r.hub != nil {
				r.hub.NotifyWarning("extract", msg)
			}
			continue
		}

		r.logger.Debug("提取完成", "dump", dumpFile, "log", logPath)
		logs = append(logs, logPath)
	}

	return logs, warnings, nil
}
