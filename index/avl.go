package index

// ==================== 节点定义 ====================

// AVLNode 表示 AVL 树的一个节点
// 节点独占左右子树的所有权，整棵树是严格的层级结构，不存在共享指针
type AVLNode struct {
	Key    int64       // 键（页号或分组大小等可排序的整数）
	Value  interface{} // 附加数据（如页面来源的转储文件名）
	Left   *AVLNode    // 左子树
	Right  *AVLNode    // 右子树
	height int         // 缓存的子树高度，空子树高度为 0
}

// Item 表示遍历输出的一个 (键, 值) 对
type Item struct {
	Key   int64
	Value interface{}
}

// newAVLNode 创建一个新的叶子节点，初始高度为 1
func newAVLNode(key int64, value interface{}) *AVLNode {
	return &AVLNode{
		Key:    key,
		Value:  value,
		height: 1,
	}
}

// nodeHeight 返回节点的缓存高度，空节点返回 0
func nodeHeight(n *AVLNode) int {
	if n == nil {
		return 0
	}
	return n.height
}

// updateHeight 根据左右子树重新计算并缓存节点高度
// 不变式：height = 1 + max(height(left), height(right))
func (n *AVLNode) updateHeight() {
	lh, rh := nodeHeight(n.Left), nodeHeight(n.Right)
	if lh > rh {
		n.height = lh + 1
	} else {
		n.height = rh + 1
	}
}

// balanceFactor 返回平衡因子：height(right) - height(left)
// 每次修改操作完成后，所有节点的平衡因子必须在 {-1, 0, 1} 内
func (n *AVLNode) balanceFactor() int {
	return nodeHeight(n.Right) - nodeHeight(n.Left)
}

// IsLeaf 检查节点是否为叶子节点
func (n *AVLNode) IsLeaf() bool {
	return n.Left == nil && n.Right == nil
}

// ==================== AVL 树定义 ====================

// AVLTree 是一棵以 int64 为键的自平衡二叉搜索树
// 默认不允许重复键（首次插入者胜出）；InsertDup 允许以插入顺序保留相等键
// 注意：AVLTree 本身不做并发保护，混合阶段是单线程的，由上层保证
type AVLTree struct {
	root *AVLNode
}

// NewAVLTree 创建一棵空的 AVL 树
// 返回：
//   - *AVLTree: 树指针
func NewAVLTree() *AVLTree {
	return &AVLTree{}
}

// ==================== 插入 ====================

// Insert 插入一个键值对（不允许重复键）
// 如果键已存在，保留原节点及其值，不创建新节点
// 插入后自底向上重新平衡到根
// 参数：
//   - key: 键
//   - value: 附加数据
//
// 返回：
//   - bool: 是否创建了新节点（键已存在时返回 false）
func (t *AVLTree) Insert(key int64, value interface{}) bool {
	created := false
	t.root = t.insert(t.root, newAVLNode(key, value), false, &created)
	return created
}

// InsertDup 插入一个键值对（允许重复键）
// 相等的键作为独立节点保留，排序上排在已有相等键之后（按插入顺序稳定）
// 参数：
//   - key: 键
//   - value: 附加数据
func (t *AVLTree) InsertDup(key int64, value interface{}) {
	created := false
	t.root = t.insert(t.root, newAVLNode(key, value), true, &created)
}

// insert 递归插入并重新平衡
// 相等键在 allowDup 时走右子树，保证中序遍历按插入顺序输出相等键
// （旋转不会改变中序顺序，因此稳定性在重平衡后依然成立）
func (t *AVLTree) insert(root, newnode *AVLNode, allowDup bool, created *bool) *AVLNode {
	if root == nil {
		*created = true
		return newnode
	}

	switch {
	case newnode.Key < root.Key:
		root.Left = t.insert(root.Left, newnode, allowDup, created)
	case newnode.Key > root.Key:
		root.Right = t.insert(root.Right, newnode, allowDup, created)
	default:
		if !allowDup {
			// 不允许重复：首次插入者胜出，丢弃新节点
			return root
		}
		root.Right = t.insert(root.Right, newnode, allowDup, created)
	}

	// 插入路径上的每个祖先都要更新高度并重新平衡
	root.updateHeight()
	return t.rebalance(root)
}

// ==================== 重平衡与旋转 ====================

// rebalance 对单个节点执行重平衡
// 平衡因子 > 1 时：右子树的右侧不低于左侧则单次左旋，否则先右旋右子树再左旋（RL）
// 平衡因子 < -1 时：镜像处理（单次右旋，或 LR 双旋）
func (t *AVLTree) rebalance(root *AVLNode) *AVLNode {
	bf := root.balanceFactor()
	if bf > 1 {
		if nodeHeight(root.Right.Right) >= nodeHeight(root.Right.Left) {
			root = t.leftRotate(root)
		} else {
			root = t.rightLeftRotate(root)
		}
	} else if bf < -1 {
		if nodeHeight(root.Left.Left) >= nodeHeight(root.Left.Right) {
			root = t.rightRotate(root)
		} else {
			root = t.leftRightRotate(root)
		}
	}
	return root
}

// leftRotate 左旋：右孩子上升为新的子树根
// 旋转涉及的两个节点在返回前都会更新高度
func (t *AVLTree) leftRotate(root *AVLNode) *AVLNode {
	tmp := root.Right
	root.Right = tmp.Left
	tmp.Left = root

	root.updateHeight()
	tmp.updateHeight()

	return tmp
}

// rightRotate 右旋：左孩子上升为新的子树根
func (t *AVLTree) rightRotate(root *AVLNode) *AVLNode {
	tmp := root.Left
	root.Left = tmp.Right
	tmp.Right = root

	root.updateHeight()
	tmp.updateHeight()

	return tmp
}

// rightLeftRotate 先对右子树右旋，再对当前节点左旋（RL 情形）
func (t *AVLTree) rightLeftRotate(root *AVLNode) *AVLNode {
	root.Right = t.rightRotate(root.Right)
	return t.leftRotate(root)
}

// leftRightRotate 先对左子树左旋，再对当前节点右旋（LR 情形）
func (t *AVLTree) leftRightRotate(root *AVLNode) *AVLNode {
	root.Left = t.leftRotate(root.Left)
	return t.rightRotate(root)
}

// ==================== 删除 ====================

// Remove 删除一个匹配键的节点
// 标准 BST 删除：叶子直接摘除；单孩子接驳；双孩子用中序后继
// （右子树最小节点）替换内容后递归删除后继原节点，随后自底向上重新平衡
// 空树或键不存在是被报告的状态，不是致命错误
// 参数：
//   - key: 要删除的键
//
// 返回：
//   - error: ErrEmptyTree 或 ErrKeyNotFound，成功时为 nil
func (t *AVLTree) Remove(key int64) error {
	if t.root == nil {
		return ErrEmptyTree
	}
	root, err := t.remove(t.root, key)
	if err != nil {
		return err
	}
	t.root = root
	return nil
}

// remove 递归删除并重新平衡
func (t *AVLTree) remove(root *AVLNode, key int64) (*AVLNode, error) {
	if root == nil {
		return nil, ErrKeyNotFound
	}

	var err error
	switch {
	case key < root.Key:
		root.Left, err = t.remove(root.Left, key)
	case key > root.Key:
		root.Right, err = t.remove(root.Right, key)
	default:
		switch {
		case root.Left == nil && root.Right == nil:
			return nil, nil
		case root.Left == nil:
			root = root.Right
		case root.Right == nil:
			root = root.Left
		default:
			// 双孩子：用中序后继（右子树最小节点）的内容覆盖当前节点，
			// 再从右子树中删除后继的原节点
			succ := minNode(root.Right)
			root.Key = succ.Key
			root.Value = succ.Value
			root.Right, err = t.remove(root.Right, succ.Key)
		}
	}
	if err != nil {
		return root, err
	}

	root.updateHeight()
	return t.rebalance(root), nil
}

// ==================== 查询 ====================

// Search 在树中查找指定键
// 参数：
//   - key: 键
//
// 返回：
//   - *AVLNode: 命中的节点
//   - error: ErrEmptyTree 或 ErrKeyNotFound
func (t *AVLTree) Search(key int64) (*AVLNode, error) {
	if t.root == nil {
		return nil, ErrEmptyTree
	}
	node := search(t.root, key)
	if node == nil {
		return nil, ErrKeyNotFound
	}
	return node, nil
}

// Exists 检查键是否存在
func (t *AVLTree) Exists(key int64) bool {
	return search(t.root, key) != nil
}

func search(root *AVLNode, key int64) *AVLNode {
	for root != nil {
		switch {
		case key < root.Key:
			root = root.Left
		case key > root.Key:
			root = root.Right
		default:
			return root
		}
	}
	return nil
}

// FindMin 返回最左侧（键最小）的节点
// 返回：
//   - *AVLNode: 最小键节点
//   - error: 空树时返回 ErrEmptyTree
func (t *AVLTree) FindMin() (*AVLNode, error) {
	if t.root == nil {
		return nil, ErrEmptyTree
	}
	return minNode(t.root), nil
}

// FindMax 返回最右侧（键最大）的节点
// 返回：
//   - *AVLNode: 最大键节点
//   - error: 空树时返回 ErrEmptyTree
func (t *AVLTree) FindMax() (*AVLNode, error) {
	if t.root == nil {
		return nil, ErrEmptyTree
	}
	node := t.root
	for node.Right != nil {
		node = node.Right
	}
	return node, nil
}

func minNode(root *AVLNode) *AVLNode {
	for root.Left != nil {
		root = root.Left
	}
	return root
}

// Height 返回树的高度，空树为 0
func (t *AVLTree) Height() int {
	return nodeHeight(t.root)
}

// Count 返回树的节点总数
func (t *AVLTree) Count() int {
	return count(t.root)
}

func count(root *AVLNode) int {
	if root == nil {
		return 0
	}
	return 1 + count(root.Left) + count(root.Right)
}

// ==================== 遍历 ====================

// InOrder 返回中序遍历的快照（键升序）
// 快照反映调用时刻的树形态，之后的修改不会影响已返回的切片
func (t *AVLTree) InOrder() []Item {
	items := make([]Item, 0, count(t.root))
	inOrder(t.root, &items)
	return items
}

func inOrder(root *AVLNode, items *[]Item) {
	if root == nil {
		return
	}
	inOrder(root.Left, items)
	*items = append(*items, Item{Key: root.Key, Value: root.Value})
	inOrder(root.Right, items)
}

// PreOrder 返回前序遍历的快照
func (t *AVLTree) PreOrder() []Item {
	items := make([]Item, 0, count(t.root))
	preOrder(t.root, &items)
	return items
}

func preOrder(root *AVLNode, items *[]Item) {
	if root == nil {
		return
	}
	*items = append(*items, Item{Key: root.Key, Value: root.Value})
	preOrder(root.Left, items)
	preOrder(root.Right, items)
}

// PostOrder 返回后序遍历的快照
func (t *AVLTree) PostOrder() []Item {
	items := make([]Item, 0, count(t.root))
	postOrder(t.root, &items)
	return items
}

func postOrder(root *AVLNode, items *[]Item) {
	if root == nil {
		return
	}
	postOrder(root.Left, items)
	postOrder(root.Right, items)
	*items = append(*items, Item{Key: root.Key, Value: root.Value})
}

// Ascend 按键升序对每个节点调用 fn，fn 返回 false 时停止
// 与 InOrder 不同，Ascend 不构造快照，适合一次性顺序消费
func (t *AVLTree) Ascend(fn func(key int64, value interface{}) bool) {
	ascend(t.root, fn)
}

func ascend(root *AVLNode, fn func(key int64, value interface{}) bool) bool {
	if root == nil {
		return true
	}
	if !ascend(root.Left, fn) {
		return false
	}
	if !fn(root.Key, root.Value) {
		return false
	}
	return ascend(root.Right, fn)
}
