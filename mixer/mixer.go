package mixer

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-hclog"

	"github.com/forever-free1/DumpMixer/index"
	"github.com/forever-free1/DumpMixer/pagelog"
	"github.com/forever-free1/DumpMixer/watch"
)

// ==================== 配置 ====================

// IndexType 定义页面归属索引的实现类型
type IndexType int

const (
	// IndexTypeAVL 使用 AVL 树作为页面归属索引（默认）
	IndexTypeAVL IndexType = iota
	// IndexTypeART 使用自适应基数树作为页面归属索引
	IndexTypeART
)

// Options 定义混合引擎的配置选项
type Options struct {
	// IndexType 索引类型
	IndexType IndexType

	// BloomCapacity 布隆过滤器的预期页面数量
	BloomCapacity uint

	// BloomFP 布隆过滤器的期望误判率
	BloomFP float64

	// Logger 结构化日志
	Logger hclog.Logger

	// Hub 进度事件通知中心，可为 nil
	Hub *watch.Hub
}

// Option 定义 Options 的配置函数
type Option func(*Options)

// WithIndexType 设置索引类型
func WithIndexType(t IndexType) Option {
	return func(o *Options) {
		o.IndexType = t
	}
}

// WithBloomFilter 设置布隆过滤器参数
func WithBloomFilter(capacity uint, fp float64) Option {
	return func(o *Options) {
		o.BloomCapacity = capacity
		o.BloomFP = fp
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

// ==================== 混合引擎 ====================

// Mixer 是冲突消解与混合引擎
// 消费所有转储解析出来的页面分组，对分组按排名排序后执行先到先得的
// 页面认领，产出页号到胜出来源的唯一映射
type Mixer struct {
	options *Options
	logger  hclog.Logger
}

// Result 表示一次混合的产物，由重建器消费一次
type Result struct {
	// Index 页号 -> 胜出来源的映射，按页号升序可遍历
	Index index.PageIndex

	// TotalPages 权威的总页数（所有日志中第一个声明的值），未知时为 -1
	TotalPages int64

	// RefDigest 参考首页摘要（第一个观察到的非空摘要）
	RefDigest string

	// RefVersion 参考版本标签
	RefVersion string

	// RefBase 参考基址标签
	RefBase string

	// Sources 来源标识 -> 实际转储文件路径
	// 版本后缀变体（source@version）也映射回真实文件，供重建器打开
	Sources map[string]string

	// Warnings 混合过程中产生的所有非致命告警
	Warnings []string

	// GroupsMerged 参与认领的分组数
	GroupsMerged int

	// GroupsSkipped 因基址不一致而被整组跳过的分组数
	GroupsSkipped int

	// PagesClaimed 被认领的页面总数（等于 Index.Size()）
	PagesClaimed int64
}

// New 创建一个新的混合引擎
// 参数：
//   - opts: 配置选项
//
// 返回：
//   - *Mixer: 混合引擎指针
func New(opts ...Option) *Mixer {
	options := &Options{
		IndexType:     IndexTypeAVL,
		BloomCapacity: 1000000, // 预估最多 100 万个页面
		BloomFP:       0.01,    // 默认 1% 误判率
	}
	for _, opt := range opts {
		opt(options)
	}

	logger := options.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Mixer{
		options: options,
		logger:  logger.Named("mixer"),
	}
}

// newIndex 根据配置创建页面归属索引
func (m *Mixer) newIndex() index.PageIndex {
	switch m.options.IndexType {
	case IndexTypeART:
		return index.NewARTIndex()
	default:
		return index.NewAVLIndex()
	}
}

// ==================== 混合算法 ====================

// Mix 把所有分组混合为一个页面归属映射
//
// 排名策略：分组按页面数量（Rank）降序处理，数量相同按出现顺序稳定排序。
// 恢复到更多连续页面的来源更可能是完整可信的捕获，应当在冲突时胜出。
//
// 认领规则：对每个分组按排名顺序，对分组中的每个页号：
// 页号未被认领则映射到该分组的来源；已被认领则跳过（先到先得，不覆盖，
// 不比较内容）。低排名分组仍然可以贡献高排名分组没有恢复到的页面。
//
// 相同输入多次混合产出完全相同的映射（纯函数，无隐藏状态）。
//
// 参数：
//   - groups: 所有日志解析出来的页面分组，顺序即观察顺序
//
// 返回：
//   - *Result: 混合产物
//   - error: 没有任何分组时返回 ErrNoGroups
func (m *Mixer) Mix(groups []*pagelog.PageGroup) (*Result, error) {
	if len(groups) == 0 {
		return nil, ErrNoGroups
	}

	result := &Result{
		Index:      m.newIndex(),
		TotalPages: -1,
		Sources:    make(map[string]string),
	}

	m.notifyPhase("mix", "开始混合页面分组")

	// 参考元数据按观察顺序（日志顺序）确立：第一个声明的总页数、
	// 第一个非空的摘要/版本/基址成为权威参考值
	for _, g := range groups {
		if result.TotalPages < 0 && g.TotalPages >= 0 {
			result.TotalPages = g.TotalPages
		}
		if result.RefDigest == "" && g.Digest != "" {
			result.RefDigest = g.Digest
		}
		if result.RefVersion == "" && g.Version != "" {
			result.RefVersion = g.Version
		}
		if result.RefBase == "" && g.BaseAddr != "" {
			result.RefBase = g.BaseAddr
		}
	}

	// 按排名降序稳定排序；排名相同的分组维持观察顺序
	ranked := make([]*pagelog.PageGroup, len(groups))
	copy(ranked, groups)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Rank > ranked[j].Rank
	})

	// 布隆过滤器挡掉绝大多数"页号一定未被认领"的精确查找
	claimed := index.NewBloomFilter(m.options.BloomCapacity, m.options.BloomFP)

	for _, g := range ranked {
		srcID, skip := m.resolveSource(result, g)
		if skip {
			result.GroupsSkipped++
			continue
		}
		result.Sources[srcID] = g.SourceID

		before := result.PagesClaimed
		for _, page := range g.Pages {
			// 布隆过滤器说"一定没有"时无需查树；说"可能有"时由树给出准确答案
			if claimed.Test(page) {
				if _, ok := result.Index.Get(page); ok {
					continue
				}
			}
			if result.Index.PutIfAbsent(page, srcID) {
				claimed.Add(page)
				result.PagesClaimed++
			}
		}

		result.GroupsMerged++
		m.logger.Debug("分组处理完成",
			"source", srcID,
			"rank", g.Rank,
			"claimed", result.PagesClaimed-before,
		)
		m.notifyProgress("mix", result.PagesClaimed)
	}

	m.notifyPhase("mix", fmt.Sprintf("混合完成：%d 个分组认领了 %d 个页面", result.GroupsMerged, result.PagesClaimed))
	return result, nil
}

// resolveSource 对单个分组做元数据比对与歧义消解
// 返回分组实际使用的来源标识，以及是否应整组跳过
//
// 规则：摘要或基址与参考值不一致时，
//   - 版本标签也不一致：视为同名模块的另一个构建变体，来源标识
//     追加版本后缀后继续参与认领，避免两个构建的页面被静默混在一起
//   - 版本一致但基址不一致：双架构进程在不同加载地址共享同名模块的
//     已知现象，整组跳过，避免混入另一个内存实例的页面
//
// 所有不一致都只产生告警，绝不中止混合
func (m *Mixer) resolveSource(result *Result, g *pagelog.PageGroup) (string, bool) {
	// 总页数不一致：第一个声明值为准，其余告警
	if g.TotalPages >= 0 && result.TotalPages >= 0 && g.TotalPages != result.TotalPages {
		m.warn(result, fmt.Sprintf("来源 %s 声明的总页数不一致（发现 %d，应为 %d）", g.SourceID, g.TotalPages, result.TotalPages))
	}

	digestMismatch := result.RefDigest != "" && g.Digest != "" && g.Digest != result.RefDigest
	baseMismatch := result.RefBase != "" && g.BaseAddr != "" && g.BaseAddr != result.RefBase
	if !digestMismatch && !baseMismatch {
		return g.SourceID, false
	}

	if digestMismatch {
		m.warn(result, fmt.Sprintf("来源 %s 首页摘要不一致（发现 %s，应为 %s）", g.SourceID, g.Digest, result.RefDigest))
	}
	if baseMismatch {
		m.warn(result, fmt.Sprintf("来源 %s 基址不一致（发现 %s，应为 %s）", g.SourceID, g.BaseAddr, result.RefBase))
	}

	if g.Version != result.RefVersion {
		// 版本不同：按独立的模块变体处理
		suffixed := g.SourceID + "@" + g.Version
		m.warn(result, fmt.Sprintf("来源 %s 版本标签 %q 与参考 %q 不同，按变体 %s 参与认领", g.SourceID, g.Version, result.RefVersion, suffixed))
		return suffixed, false
	}

	if baseMismatch {
		// 版本相同但基址不同：跳过整个分组
		m.warn(result, fmt.Sprintf("来源 %s 版本相同但基址不同，整组跳过", g.SourceID))
		return g.SourceID, true
	}

	// 摘要不同但版本与基址一致：只告警，继续按原来源参与认领
	return g.SourceID, false
}

// ==================== 告警与事件 ====================

func (m *Mixer) warn(result *Result, msg string) {
	result.Warnings = append(result.Warnings, msg)
	m.logger.Warn(msg)
	if m.options.Hub != nil {
		m.options.Hub.NotifyWarning("mix", msg)
	}
}

func (m *Mixer) notifyPhase(topic, msg string) {
	m.logger.Info(msg)
	if m.options.Hub != nil {
		m.options.Hub.NotifyPhase(topic, msg)
	}
}

func (m *Mixer) notifyProgress(topic string, value int64) {
	if m.options.Hub != nil {
		m.options.Hub.NotifyProgress(topic, value)
	}
}
