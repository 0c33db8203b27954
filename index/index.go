package index

// PageIndex 是页面归属索引的抽象接口
// 负责存储页号到胜出来源（转储文件标识）的映射，并支持按页号升序遍历
// 混合阶段的先到先得规则依赖 PutIfAbsent 的"只增不改"语义
type PageIndex interface {
	// PutIfAbsent 在页号尚未被认领时写入来源
	// 参数：
	//   - page: 页号（非负整数）
	//   - source: 来源标识
	// 返回：
	//   - bool: 是否完成了认领（页号已存在时返回 false，不覆盖）
	PutIfAbsent(page int64, source string) bool

	// Get 根据页号获取胜出来源
	// 参数：
	//   - page: 页号
	// 返回：
	//   - string: 来源标识
	//   - bool: 页号是否存在
	Get(page int64) (string, bool)

	// Size 返回已认领的页面数量
	Size() int

	// Ascend 按页号升序对每个 (页号, 来源) 调用 fn，fn 返回 false 时停止
	Ascend(fn func(page int64, source string) bool)

	// Close 关闭索引，释放资源
	Close()
}

// ==================== AVL 实现 ====================

// AVLIndex 是基于 AVL 树的页面归属索引实现（默认实现）
type AVLIndex struct {
	tree *AVLTree
}

// NewAVLIndex 创建一个新的 AVL 索引实例
// 返回：
//   - *AVLIndex: AVL 索引指针
func NewAVLIndex() *AVLIndex {
	return &AVLIndex{
		tree: NewAVLTree(),
	}
}

// PutIfAbsent 在页号尚未被认领时写入来源
// AVL 树的不重复插入本身就是首次插入者胜出，直接复用该语义
func (idx *AVLIndex) PutIfAbsent(page int64, source string) bool {
	return idx.tree.Insert(page, source)
}

// Get 根据页号获取胜出来源
func (idx *AVLIndex) Get(page int64) (string, bool) {
	node, err := idx.tree.Search(page)
	if err != nil {
		return "", false
	}
	return node.Value.(string), true
}

// Size 返回已认领的页面数量
func (idx *AVLIndex) Size() int {
	return idx.tree.Count()
}

// Ascend 按页号升序遍历
func (idx *AVLIndex) Ascend(fn func(page int64, source string) bool) {
	idx.tree.Ascend(func(key int64, value interface{}) bool {
		return fn(key, value.(string))
	})
}

// Tree 返回底层的 AVL 树（用于测试校验平衡不变式）
func (idx *AVLIndex) Tree() *AVLTree {
	return idx.tree
}

// Close 关闭 AVL 索引
func (idx *AVLIndex) Close() {
	// AVL 树没有需要关闭的资源，GC 会自动回收
}

// 确保 AVLIndex 实现了 PageIndex 接口
var _ PageIndex = (*AVLIndex)(nil)
