package pagelog

import "errors"

// ErrBadLine 表示日志行不符合 header:pages:total 的基本结构
var ErrBadLine = errors.New("malformed page log line")

// ErrBadHeader 表示头部字段数量不足
var ErrBadHeader = errors.New("malformed page log header")
