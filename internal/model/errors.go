package model

import "github.com/cockroachdb/errors"

var (
	// ErrBlockNotFound 数据块不存在，与 I/O 错误区分
	ErrBlockNotFound = errors.New("block not found")
	// ErrInvalidBlockID 块ID为空或越出存储根目录
	ErrInvalidBlockID = errors.New("invalid block id")
	// ErrForcedClose 宽限期内未完成，连接被强制关闭
	ErrForcedClose = errors.New("connection force-closed after grace period")
	// ErrClientClosed 客户端已关闭
	ErrClientClosed = errors.New("coordinator client closed")
)
