package rebuild

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// ==================== 转储文件 ====================

// DumpFile 表示一个只读打开的内存转储提取文件
// 重建阶段按页号随机读取其中的页面内容；文件从不被修改
type DumpFile struct {
	path string
	file *os.File
	size int64
	mu   sync.Mutex // 保护 Seek+Read 的原子性
}

// OpenDumpFile 以只读模式打开一个转储提取文件
// 参数：
//   - path: 文件路径
//
// 返回：
//   - *DumpFile: 转储文件指针
//   - error: 打开错误
func OpenDumpFile(path string) (*DumpFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开转储文件失败: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("获取转储文件状态失败: %w", err)
	}

	return &DumpFile{
		path: path,
		file: file,
		size: stat.Size(),
	}, nil
}

// ReadPage 读取指定页号的一页内容
// 定位到 page*pageSize 后读取恰好 pageSize 字节；
// 读不满一页（短读）时，缺失的尾部按零字节处理，由调用方决定是否告警
// 参数：
//   - page: 页号
//   - pageSize: 页大小（字节）
//
// 返回：
//   - []byte: 长度恰为 pageSize 的页缓冲，短读部分已补零
//   - int: 实际从文件读到的字节数
//   - error: 读取错误（短读不是错误）
func (df *DumpFile) ReadPage(page int64, pageSize int) ([]byte, int, error) {
	df.mu.Lock()
	defer df.mu.Unlock()

	if df.file == nil {
		return nil, 0, ErrFileClosed
	}

	buf := make([]byte, pageSize)

	// 页号从 0 开始，偏移即 page*pageSize
	if _, err := df.file.Seek(page*int64(pageSize), io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("转储文件定位失败 (page=%d): %w", page, err)
	}

	n, err := io.ReadFull(df.file, buf)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			// 短读：buf 的剩余部分保持零值
			return buf, n, nil
		}
		return nil, n, fmt.Errorf("读取转储文件失败 (page=%d): %w", page, err)
	}

	return buf, n, nil
}

// Size 返回文件大小（字节）
func (df *DumpFile) Size() int64 {
	return df.size
}

// Path 返回文件路径
func (df *DumpFile) Path() string {
	return df.path
}

// Close 关闭转储文件
// 返回：
//   - error: 关闭错误
func (df *DumpFile) Close() error {
	df.mu.Lock()
	defer df.mu.Unlock()

	if df.file == nil {
		return nil
	}
	err := df.file.Close()
	df.file = nil
	if err != nil {
		return fmt.Errorf("关闭转储文件失败: %w", err)
	}
	return nil
}

// ==================== 句柄缓存 ====================

// FileCache 按来源缓存已打开的转储文件句柄
// 同一来源往往贡献大量页面，缓存句柄避免每页一次 open/close；
// 这是纯粹的优化，输出字节与逐页开关文件完全一致
type FileCache struct {
	files map[string]*DumpFile
	mu    sync.Mutex
}

// NewFileCache 创建一个新的句柄缓存
func NewFileCache() *FileCache {
	return &FileCache{
		files: make(map[string]*DumpFile),
	}
}

// Get 获取指定路径的转储文件，必要时打开并缓存
// 参数：
//   - path: 转储文件路径
//
// 返回：
//   - *DumpFile: 转储文件指针
//   - error: 打开错误
func (c *FileCache) Get(path string) (*DumpFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if df, ok := c.files[path]; ok {
		return df, nil
	}
	df, err := OpenDumpFile(path)
	if err != nil {
		return nil, err
	}
	c.files[path] = df
	return df, nil
}

// Close 关闭缓存中的所有转储文件
func (c *FileCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, df := range c.files {
		df.Close()
	}
	c.files = make(map[string]*DumpFile)
}
