package rebuild

import "errors"

// ErrFileClosed 表示转储文件已关闭
var ErrFileClosed = errors.New("dump file is closed")

// ErrNoResult 表示没有混合产物可供重建
var ErrNoResult = errors.New("no mix result to rebuild from")
