package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/forever-free1/DumpMixer/config"
	"github.com/forever-free1/DumpMixer/extract"
	"github.com/forever-free1/DumpMixer/mixer"
	"github.com/forever-free1/DumpMixer/pagelog"
	"github.com/forever-free1/DumpMixer/rebuild"
	"github.com/forever-free1/DumpMixer/watch"
)

// ==================== 请求与结果 ====================

// Request 描述一次完整的重建运行
type Request struct {
	// Module 目标模块名
	Module string

	// DumpsDir 内存转储所在目录（LogFiles 为空时必填）
	DumpsDir string

	// Profile 可选的系统画像名，透传给提取工具
	Profile string

	// OutputFile 输出文件名，空字符串表示 <Module>.mixed
	OutputFile string

	// LogFiles 直接使用这些页面清单日志，跳过提取阶段
	// 适用于提取工具已经跑过、只需要重新混合的场景
	LogFiles []string

	// IndexType 页面归属索引类型
	IndexType mixer.IndexType

	// CompressCopy 是否写出 snappy 压缩副本
	CompressCopy bool

	// WriteManifest 是否写出 msgpack 归属清单
	WriteManifest bool
}

// Outcome 表示一次运行的全部产出
type Outcome struct {
	// Summary 重建摘要
	Summary *rebuild.Summary

	// LogFiles 实际参与混合的日志文件
	LogFiles []string

	// Warnings 所有阶段的非致命告警
	Warnings []string
}

// ==================== 流水线 ====================

// Run 执行完整的重建流水线：提取 -> 解析 -> 混合 -> 生成
// 各阶段严格串行：重建必须在完整的归属映射就绪后才能开始；
// 只有相互独立的日志解析在内部并行。
// 运行中途异常终止时，部分写出的输出文件无效，调用方必须丢弃
// 参数：
//   - ctx: 上下文
//   - cfg: 配置
//   - req: 运行请求
//   - logger: 结构化日志
//   - hub: 进度事件通知中心，可为 nil
//
// 返回：
//   - *Outcome: 运行产出
//   - error: 致命错误
func Run(ctx context.Context, cfg *config.Config, req Request, logger hclog.Logger, hub *watch.Hub) (*Outcome, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if req.Module == "" {
		return nil, fmt.Errorf("缺少目标模块名")
	}
	if req.DumpsDir == "" && len(req.LogFiles) == 0 {
		return nil, fmt.Errorf("缺少转储目录")
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	outcome := &Outcome{}

	// 第一阶段：对每个转储调用提取工具（除非日志已就绪）
	logs := req.LogFiles
	if len(logs) == 0 {
		runner := extract.NewRunner(cfg, logger, hub)
		extracted, warnings, err := runner.ExtractAll(ctx, req.DumpsDir, req.Module, cfg.OutputDir, req.Profile)
		if err != nil {
			return nil, err
		}
		outcome.Warnings = append(outcome.Warnings, warnings...)
		logs = extracted
	}
	if len(logs) == 0 {
		return nil, fmt.Errorf("没有任何提取成功的日志，无法混合")
	}
	outcome.LogFiles = logs

	// 第二阶段：解析页面清单日志
	groups, warnings, err := pagelog.ParseFiles(ctx, logs)
	if err != nil {
		return nil, err
	}
	outcome.Warnings = append(outcome.Warnings, warnings...)

	// 第三阶段：混合
	mx := mixer.New(
		mixer.WithIndexType(req.IndexType),
		mixer.WithLogger(logger),
		mixer.WithHub(hub),
	)
	result, err := mx.Mix(groups)
	if err != nil {
		return nil, err
	}
	outcome.Warnings = append(outcome.Warnings, result.Warnings...)

	// 第四阶段：生成混合模块文件
	outName := req.OutputFile
	if outName == "" {
		outName = req.Module + ".mixed"
	}
	rb := rebuild.New(
		rebuild.WithPageSize(cfg.PageSize),
		rebuild.WithModule(req.Module),
		rebuild.WithCompressCopy(req.CompressCopy),
		rebuild.WithManifest(req.WriteManifest),
		rebuild.WithLogger(logger),
		rebuild.WithHub(hub),
	)
	summary, err := rb.Run(result, filepath.Join(cfg.OutputDir, outName))
	if err != nil {
		return nil, err
	}
	outcome.Warnings = append(outcome.Warnings, summary.Warnings...)
	outcome.Summary = summary

	return outcome, nil
}
