package mixer

import "errors"

// ErrNoGroups 表示没有任何页面分组可供混合
// 通常意味着所有转储的提取都失败了，或者日志目录为空
var ErrNoGroups = errors.New("no page groups to mix")
