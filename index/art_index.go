package index

import (
	"encoding/binary"

	art "github.com/plar/go-adaptive-radix-tree"
)

// ARTIndex 是基于自适应基数树（Adaptive Radix Tree）的页面归属索引实现
// 页号编码为 8 字节大端序，保证 ART 的字典序遍历等价于页号升序
type ARTIndex struct {
	tree art.Tree
}

// NewARTIndex 创建一个新的 ART 索引实例
// 返回：
//   - *ARTIndex: ART 索引指针
func NewARTIndex() *ARTIndex {
	return &ARTIndex{
		tree: art.New(),
	}
}

// pageKey 将页号编码为 8 字节大端序的 ART 键
// 页号非负，大端序的字节比较与数值比较一致
func pageKey(page int64) art.Key {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(page))
	return art.Key(buf[:])
}

// PutIfAbsent 在页号尚未被认领时写入来源
func (idx *ARTIndex) PutIfAbsent(page int64, source string) bool {
	key := pageKey(page)
	if _, found := idx.tree.Search(key); found {
		return false
	}
	idx.tree.Insert(key, source)
	return true
}

// Get 根据页号获取胜出来源
func (idx *ARTIndex) Get(page int64) (string, bool) {
	value, found := idx.tree.Search(pageKey(page))
	if !found {
		return "", false
	}
	return value.(string), true
}

// Size 返回已认领的页面数量
func (idx *ARTIndex) Size() int {
	return idx.tree.Size()
}

// Ascend 按页号升序遍历
func (idx *ARTIndex) Ascend(fn func(page int64, source string) bool) {
	idx.tree.ForEach(func(node art.Node) bool {
		page := int64(binary.BigEndian.Uint64(node.Key()))
		return fn(page, node.Value().(string))
	})
}

// Close 关闭 ART 索引
func (idx *ARTIndex) Close() {
	// ART 树没有需要关闭的资源，GC 会自动回收
}

// 确保 ARTIndex 实现了 PageIndex 接口
var _ PageIndex = (*ARTIndex)(nil)
