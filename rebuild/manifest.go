package rebuild

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

// Manifest 是重建产物的归属清单
// 记录每个页面由哪个转储贡献，msgpack 编码后落盘为 <输出文件>.manifest，
// 供后续分析判断任意一页字节的出处
type Manifest struct {
	// Module 目标模块名
	Module string `msgpack:"module"`

	// TotalPages 声明的总页数
	TotalPages int64 `msgpack:"total_pages"`

	// PageSize 页大小（字节）
	PageSize int `msgpack:"page_size"`

	// Pages 页号 -> 来源标识
	Pages map[int64]string `msgpack:"pages"`

	// Recovered 实际恢复的页面数
	Recovered int64 `msgpack:"recovered"`

	// ZeroFilled 补零的页面数
	ZeroFilled int64 `msgpack:"zero_filled"`

	// ShortReads 发生短读的页面数
	ShortReads int64 `msgpack:"short_reads"`
}

// msgpackHandle 是清单编解码共享的 handle
var msgpackHandle = &codec.MsgpackHandle{}

// WriteManifest 将清单编码为 msgpack 并写入文件
// 参数：
//   - path: 清单文件路径
//   - m: 清单
//
// 返回：
//   - error: 编码或写入错误
func WriteManifest(path string, m *Manifest) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("创建清单文件失败: %w", err)
	}
	defer f.Close()

	enc := codec.NewEncoder(f, msgpackHandle)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("编码清单失败: %w", err)
	}
	return nil
}

// ReadManifest 从文件解码清单
// 参数：
//   - path: 清单文件路径
//
// 返回：
//   - *Manifest: 清单指针
//   - error: 读取或解码错误
func ReadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开清单文件失败: %w", err)
	}
	defer f.Close()

	var m Manifest
	dec := codec.NewDecoder(f, msgpackHandle)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("解码清单失败: %w", err)
	}
	return &m, nil
}
