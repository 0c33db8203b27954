package rebuild

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/golang/snappy"
	"github.com/hashicorp/go-hclog"

	"github.com/forever-free1/DumpMixer/mixer"
	"github.com/forever-free1/DumpMixer/watch"
)

// ==================== 配置 ====================

// DefaultPageSize 默认页大小（字节）
const DefaultPageSize = 4096

// Options 定义重建器的配置选项
type Options struct {
	// PageSize 页大小（字节）
	PageSize int

	// Module 目标模块名（写入清单）
	Module string

	// CompressCopy 是否同时写出 snappy 压缩副本（<输出文件>.snappy）
	// 大量补零页压缩率极高，适合把产物从分析机上搬走
	CompressCopy bool

	// WriteManifest 是否写出 msgpack 归属清单（<输出文件>.manifest）
	WriteManifest bool

	// Logger 结构化日志
	Logger hclog.Logger

	// Hub 进度事件通知中心，可为 nil
	Hub *watch.Hub
}

// Option 定义 Options 的配置函数
type Option func(*Options)

// WithPageSize 设置页大小
func WithPageSize(size int) Option {
	return func(o *Options) {
		o.PageSize = size
	}
}

// WithModule 设置目标模块名
func WithModule(name string) Option {
	return func(o *Options) {
		o.Module = name
	}
}

// WithCompressCopy 开启 snappy 压缩副本
func WithCompressCopy(enable bool) Option {
	return func(o *Options) {
		o.CompressCopy = enable
	}
}

// WithManifest 开启归属清单
func WithManifest(enable bool) Option {
	return func(o *Options) {
		o.WriteManifest = enable
	}
}

// WithLogger 设置日志
func WithLogger(logger hclog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithHub 设置进度事件通知中心
func WithHub(hub *watch.Hub) Option {
	return func(o *Options) {
		o.Hub = hub
	}
}

// ==================== 重建器 ====================

// Rebuilder 按页号升序把混合产物落盘为单一的二进制模块文件
// 输出格式：恰好 total_pages * page_size 字节，无头无尾；每个页槽要么
// 从胜出来源逐字节拷贝，要么整页为零。输出是顺序写出的流，从不整体驻留内存
type Rebuilder struct {
	options *Options
	logger  hclog.Logger
}

// Summary 表示一次重建的结果摘要
type Summary struct {
	OutputPath   string   // 输出文件路径
	TotalPages   int64    // 声明（或推断）的总页数
	Recovered    int64    // 从转储中恢复的页面数
	ZeroFilled   int64    // 补零的页面数
	ShortReads   int64    // 发生短读的页面数
	BytesWritten int64    // 写出的总字节数
	Warnings     []string // 重建过程中产生的非致命告警
}

// New 创建一个新的重建器
// 参数：
//   - opts: 配置选项
//
// 返回：
//   - *Rebuilder: 重建器指针
func New(opts ...Option) *Rebuilder {
	options := &Options{
		PageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(options)
	}

	logger := options.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Rebuilder{
		options: options,
		logger:  logger.Named("rebuild"),
	}
}

// ==================== 重建算法 ====================

// Run 执行重建，把混合产物写为输出文件
//
// 游标从 -1 开始；按页号升序遍历归属映射，每个页号如果不是游标的
// 直接后继，先写出 (page - cursor - 1) * pageSize 个零字节；然后从该页
// 的来源文件 page*pageSize 偏移处读取恰好一页追加到输出；游标推进到
// 该页。遍历结束后，若游标未达 total_pages - 1，补零到声明的总长度。
//
// 短读是可报告的非致命状态，该页缺失的尾部按零处理。来源文件无法打开
// 或读取时同样降级为整页零，尽可能产出最完整的产物。
// 输出文件本身的写入错误是致命的：部分写出的产物无效，调用方必须丢弃。
//
// 参数：
//   - result: 混合产物（恰好消费一次）
//   - outPath: 输出文件路径
//
// 返回：
//   - *Summary: 重建摘要
//   - error: 致命错误
func (r *Rebuilder) Run(result *mixer.Result, outPath string) (*Summary, error) {
	if result == nil || result.Index == nil {
		return nil, ErrNoResult
	}

	pageSize := r.options.PageSize
	summary := &Summary{
		OutputPath: outPath,
		TotalPages: result.TotalPages,
	}

	r.notifyPhase("rebuild", fmt.Sprintf("开始生成混合模块（%d 个页面待写出）", result.Index.Size()))

	// 输出文件：顺序写出的单一流
	outFile, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("创建输出文件失败: %w", err)
	}
	defer outFile.Close()

	buffered := bufio.NewWriterSize(outFile, 1<<20)
	var out io.Writer = buffered

	// 可选的 snappy 压缩副本，与主输出逐字节同步
	var (
		snapFile   *os.File
		snapWriter *snappy.Writer
	)
	if r.options.CompressCopy {
		snapFile, err = os.OpenFile(outPath+".snappy", os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return nil, fmt.Errorf("创建压缩副本失败: %w", err)
		}
		defer snapFile.Close()
		snapWriter = snappy.NewBufferedWriter(snapFile)
		out = io.MultiWriter(buffered, snapWriter)
	}

	// 同一来源的句柄只打开一次；输出字节与逐页开关文件完全一致
	cache := NewFileCache()
	defer cache.Close()

	var pages map[int64]string
	if r.options.WriteManifest {
		pages = make(map[int64]string)
	}

	zeroPage := make([]byte, pageSize)
	cursor := int64(-1) // 起始页号为 0，游标初始化为 -1
	var walkErr error

	result.Index.Ascend(func(page int64, source string) bool {
		// 补齐游标与当前页之间的空洞
		if gap := page - cursor - 1; gap > 0 {
			r.logger.Debug("补零", "from", cursor+1, "to", page-1)
			if walkErr = r.writeZeroPages(out, zeroPage, gap, summary); walkErr != nil {
				return false
			}
		}

		buf := r.readPage(result, page, source, cache, summary)
		if _, err := out.Write(buf); err != nil {
			walkErr = fmt.Errorf("写出页面 %d 失败: %w", page, err)
			return false
		}
		summary.BytesWritten += int64(len(buf))

		if pages != nil {
			pages[page] = source
		}
		cursor = page
		if summary.Recovered%256 == 0 {
			r.notifyProgress("rebuild", summary.Recovered)
		}
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}

	// 补齐尾部空洞，使输出长度恰为 total_pages * page_size
	switch {
	case summary.TotalPages < 0:
		summary.TotalPages = cursor + 1
		r.warn(summary, fmt.Sprintf("所有日志都未声明总页数，按最后恢复的页面推断为 %d", summary.TotalPages))
	case cursor > summary.TotalPages-1:
		r.warn(summary, fmt.Sprintf("认领的页号超出了声明的总页数（最大页号 %d，总页数 %d）", cursor, summary.TotalPages))
	case cursor < summary.TotalPages-1:
		if err := r.writeZeroPages(out, zeroPage, summary.TotalPages-1-cursor, summary); err != nil {
			return nil, err
		}
	}

	// 落盘：flush 缓冲并同步到磁盘
	if err := buffered.Flush(); err != nil {
		return nil, fmt.Errorf("刷新输出缓冲失败: %w", err)
	}
	if err := outFile.Sync(); err != nil {
		return nil, fmt.Errorf("同步输出文件失败: %w", err)
	}
	if snapWriter != nil {
		if err := snapWriter.Close(); err != nil {
			return nil, fmt.Errorf("关闭压缩副本失败: %w", err)
		}
	}

	// 归属清单
	if r.options.WriteManifest {
		manifest := &Manifest{
			Module:     r.options.Module,
			TotalPages: summary.TotalPages,
			PageSize:   pageSize,
			Pages:      pages,
			Recovered:  summary.Recovered,
			ZeroFilled: summary.ZeroFilled,
			ShortReads: summary.ShortReads,
		}
		if err := WriteManifest(outPath+".manifest", manifest); err != nil {
			return nil, err
		}
	}

	msg := fmt.Sprintf("重建完成：%d / %d 个内存页恢复成功", summary.Recovered, summary.TotalPages)
	r.logger.Info(msg,
		"output", outPath,
		"zero_filled", summary.ZeroFilled,
		"short_reads", summary.ShortReads,
		"bytes", summary.BytesWritten,
	)
	if r.options.Hub != nil {
		r.options.Hub.NotifyDone(msg)
	}

	return summary, nil
}

// readPage 从页面的胜出来源读出一页内容
// 来源打不开或读取出错时降级为整页零并记告警，绝不中止重建
func (r *Rebuilder) readPage(result *mixer.Result, page int64, source string, cache *FileCache, summary *Summary) []byte {
	path := source
	if real, ok := result.Sources[source]; ok {
		path = real
	}

	df, err := cache.Get(path)
	if err != nil {
		r.warn(summary, fmt.Sprintf("页面 %d 的来源 %s 无法打开，整页按零处理：%v", page, source, err))
		summary.ZeroFilled++
		return make([]byte, r.options.PageSize)
	}

	buf, n, err := df.ReadPage(page, r.options.PageSize)
	if err != nil {
		r.warn(summary, fmt.Sprintf("页面 %d 读取失败，整页按零处理：%v", page, err))
		summary.ZeroFilled++
		return make([]byte, r.options.PageSize)
	}
	if n < r.options.PageSize {
		summary.ShortReads++
		r.warn(summary, fmt.Sprintf("页面 %d 短读（来源 %s 只有 %d 字节），尾部按零处理", page, source, n))
	}

	summary.Recovered++
	return buf
}

// writeZeroPages 写出 n 个全零页面
func (r *Rebuilder) writeZeroPages(out io.Writer, zeroPage []byte, n int64, summary *Summary) error {
	for i := int64(0); i < n; i++ {
		if _, err := out.Write(zeroPage); err != nil {
			return fmt.Errorf("写出补零页面失败: %w", err)
		}
		summary.ZeroFilled++
		summary.BytesWritten += int64(len(zeroPage))
	}
	return nil
}

// ==================== 告警与事件 ====================

func (r *Rebuilder) warn(summary *Summary, msg string) {
	summary.Warnings = append(summary.Warnings, msg)
	r.logger.Warn(msg)
	if r.options.Hub != nil {
		r.options.Hub.NotifyWarning("rebuild", msg)
	}
}

func (r *Rebuilder) notifyPhase(topic, msg string) {
	r.logger.Info(msg)
	if r.options.Hub != nil {
		r.options.Hub.NotifyPhase(topic, msg)
	}
}

func (r *Rebuilder) notifyProgress(topic string, value int64) {
	if r.options.Hub != nil {
		r.options.Hub.NotifyProgress(topic, value)
	}
}
