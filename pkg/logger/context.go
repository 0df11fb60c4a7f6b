package logger

import "context"

type contextKey string

const (
	managerIDKey contextKey = "manager_id"
	shardIDKey   contextKey = "shard_id"
)

// ContextWithManagerID 在 Context 中记录管理器实例 ID
func ContextWithManagerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, managerIDKey, id)
}

// ManagerIDFromContext 读取管理器实例 ID
func ManagerIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(managerIDKey).(string)
	return id, ok && id != ""
}

// ContextWithShardID 在 Context 中记录分片 ID
func ContextWithShardID(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, shardIDKey, id)
}

// ShardIDFromContext 读取分片 ID
func ShardIDFromContext(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(shardIDKey).(uint64)
	return id, ok
}
