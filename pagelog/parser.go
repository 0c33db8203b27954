package pagelog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ==================== 分组定义 ====================

// PageGroup 表示从单个内存转储中恢复出来的一组页面
// 由解析器创建，创建后不可变；混合引擎只在混合过程中短暂持有它
type PageGroup struct {
	SourceID   string  // 来源标识（提取工具落盘的转储文件路径）
	Digest     string  // 首页内容摘要，用于跨转储的一致性比对
	Version    string  // 文件格式版本标签
	BaseAddr   string  // 模块加载基址标签（可选）
	Pages      []int64 // 恢复到的页号列表，保持日志中的顺序
	Rank       int     // 排名值 = 页号列表长度，越大越可信
	TotalPages int64   // 该日志声明的总页数，未声明时为 -1
	LogFile    string  // 产生该分组的日志文件（用于告警定位）
}

// ==================== 行解析 ====================

// 日志行格式（与外部提取工具约定，字段顺序与分隔符不可更改）：
//   <source_id>,<digest>,<version_tag>[,<base_addr>]:<页号1,页号2,...>:<total_pages>
// 头部字段用 , 分隔，: 分隔头部、页号列表和总页数，页号之间用 , 分隔

// ParseLine 解析单行日志，产出一个 PageGroup
// 参数：
//   - line: 日志行
//   - logFile: 行所属的日志文件名（仅用于告警定位）
//
// 返回：
//   - *PageGroup: 分组指针
//   - []string: 非致命告警（坏页号、缺失总页数等）
//   - error: 行结构不完整时返回 ErrBadLine / ErrBadHeader
func ParseLine(line, logFile string) (*PageGroup, []string, error) {
	var warnings []string

	segs := strings.Split(line, ":")
	if len(segs) < 2 {
		return nil, nil, fmt.Errorf("%w: %q", ErrBadLine, line)
	}

	// 头部：来源、摘要、版本标签、可选的基址标签
	fields := strings.Split(segs[0], ",")
	if len(fields) < 3 {
		return nil, nil, fmt.Errorf("%w: %q", ErrBadHeader, segs[0])
	}

	group := &PageGroup{
		SourceID:   strings.TrimSpace(fields[0]),
		Digest:     strings.TrimSpace(fields[1]),
		Version:    strings.TrimSpace(fields[2]),
		TotalPages: -1,
		LogFile:    logFile,
	}
	if len(fields) >= 4 {
		group.BaseAddr = strings.TrimSpace(fields[3])
	}

	// 页号列表：跳过无法解析的页号，不中断整行
	for _, raw := range strings.Split(segs[1], ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		page, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || page < 0 {
			warnings = append(warnings, fmt.Sprintf("日志 %s：忽略无效页号 %q（来源 %s）", logFile, raw, group.SourceID))
			continue
		}
		group.Pages = append(group.Pages, page)
	}
	group.Rank = len(group.Pages)
	if group.Rank == 0 {
		warnings = append(warnings, fmt.Sprintf("日志 %s：来源 %s 没有任何有效页号", logFile, group.SourceID))
	}

	// 总页数：缺失时记为 -1，由混合引擎决定如何处理
	if len(segs) >= 3 {
		total, err := strconv.ParseInt(strings.TrimSpace(segs[2]), 10, 64)
		if err != nil || total < 0 {
			warnings = append(warnings, fmt.Sprintf("日志 %s：总页数字段 %q 无效（来源 %s）", logFile, segs[2], group.SourceID))
		} else {
			group.TotalPages = total
		}
	} else {
		warnings = append(warnings, fmt.Sprintf("日志 %s：缺失总页数字段（来源 %s）", logFile, group.SourceID))
	}

	return group, warnings, nil
}

// ==================== 文件解析 ====================

// ParseReader 解析一个日志流，每行产出一个 PageGroup
// 空行被跳过；结构不完整的行降级为告警，不中断解析
// 参数：
//   - r: 日志流
//   - name: 流的名字（用于告警定位）
//
// 返回：
//   - []*PageGroup: 分组列表，保持行顺序
//   - []string: 非致命告警
//   - error: 读取错误
func ParseReader(r io.Reader, name string) ([]*PageGroup, []string, error) {
	var (
		groups   []*PageGroup
		warnings []string
	)

	scanner := bufio.NewScanner(r)
	// 单行可能携带数十万个页号，放宽扫描缓冲上限
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		group, ws, err := ParseLine(line, name)
		warnings = append(warnings, ws...)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("日志 %s：跳过无法解析的行：%v", name, err))
			continue
		}
		groups = append(groups, group)
	}
	if err := scanner.Err(); err != nil {
		return nil, warnings, fmt.Errorf("读取日志 %s 失败: %w", name, err)
	}

	return groups, warnings, nil
}

// ParseFile 解析单个日志文件
// 文件无法打开是致命错误，由调用方终止运行
func ParseFile(path string) ([]*PageGroup, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("打开日志文件失败: %w", err)
	}
	defer f.Close()

	return ParseReader(f, path)
}

// ParseFiles 并发解析一组日志文件
// 分组之间相互独立且不可变，解析可以安全并行；
// 输出顺序与 paths 的顺序一致，不受并发调度影响
// 参数：
//   - ctx: 上下文
//   - paths: 日志文件路径列表
//
// 返回：
//   - []*PageGroup: 所有文件的分组，按文件顺序拼接
//   - []string: 非致命告警
//   - error: 任一文件无法打开或读取时返回
func ParseFiles(ctx context.Context, paths []string) ([]*PageGroup, []string, error) {
	type result struct {
		groups   []*PageGroup
		warnings []string
	}

	results := make([]result, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			groups, warnings, err := ParseFile(path)
			if err != nil {
				return err
			}
			results[i] = result{groups: groups, warnings: warnings}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var (
		groups   []*PageGroup
		warnings []string
	)
	for _, res := range results {
		groups = append(groups, res.groups...)
		warnings = append(warnings, res.warnings...)
	}
	return groups, warnings, nil
}
