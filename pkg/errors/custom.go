package errors

/*
	错误码分段

	1xxx 通用
	2xxx 网关 / 分片管理
	3xxx 配置
	4xxx 外部组件（连接、限流、转发）
*/

var (
	// ErrInternal 内部错误
	ErrInternal = New(1000, "internal error")
	// ErrInvalidArgument 参数错误
	ErrInvalidArgument = New(1001, "invalid argument")
	// ErrUnavailable 依赖不可用
	ErrUnavailable = New(1002, "unavailable")
)
