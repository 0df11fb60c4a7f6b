package logger

import "go.uber.org/zap"

// ShardID 分片 ID 字段
func ShardID(id uint64) zap.Field {
	return zap.Uint64("shard_id", id)
}

// ShardTotal 分片总数字段
func ShardTotal(total uint64) zap.Field {
	return zap.Uint64("shard_total", total)
}

// ShardIDs 分片 ID 列表字段
func ShardIDs(ids []uint64) zap.Field {
	return zap.Uint64s("shard_ids", ids)
}
