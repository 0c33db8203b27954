package index

import "errors"

// ErrEmptyTree 表示对空树执行了查询或删除操作
// 这是一个可恢复的状态，由调用方决定如何处理
var ErrEmptyTree = errors.New("AVL tree is empty")

// ErrKeyNotFound 表示键在树中不存在
var ErrKeyNotFound = errors.New("key not found")
