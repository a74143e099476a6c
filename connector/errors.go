package connector

import "github.com/ceyewan/gatelimit/xerrors"

// 连接器专用的哨兵错误
var (
	ErrConnection  = xerrors.New("connector: connection failed")
	ErrConfig      = xerrors.New("connector: invalid config")
	ErrHealthCheck = xerrors.New("connector: health check failed")
	ErrClosed      = xerrors.New("connector: already closed")
)
