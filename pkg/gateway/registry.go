package gateway

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Registry 分片注册表
type Registry struct {
	shards sync.Map // ShardID -> Shard
	count  atomic.Int64
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{}
}

// Store 注册分片，同 ID 已存在时替换并返回旧实例
func (r *Registry) Store(shard Shard) (Shard, bool) {
	prev, loaded := r.shards.Swap(shard.ID(), shard)
	if !loaded {
		r.count.Add(1)
		return nil, false
	}
	old, _ := prev.(Shard)
	return old, true
}

// Load 获取分片
func (r *Registry) Load(id ShardID) (Shard, bool) {
	value, ok := r.shards.Load(id)
	if !ok {
		return nil, false
	}
	shard, ok := value.(Shard)
	return shard, ok
}

// Remove 仅当条目仍是 shard 这个实例时移除
func (r *Registry) Remove(id ShardID, shard Shard) bool {
	if r.shards.CompareAndDelete(id, shard) {
		r.count.Add(-1)
		return true
	}
	return false
}

// Count 已注册分片数量
func (r *Registry) Count() int {
	return int(r.count.Load())
}

// Range 遍历所有分片
func (r *Registry) Range(f func(Shard) bool) {
	r.shards.Range(func(_, value any) bool {
		shard, ok := value.(Shard)
		if !ok {
			return true
		}
		return f(shard)
	})
}

// IDs 已注册分片 ID（升序）
func (r *Registry) IDs() []ShardID {
	ids := make([]ShardID, 0, r.Count())
	r.Range(func(s Shard) bool {
		ids = append(ids, s.ID())
		return true
	})
	slices.Sort(ids)
	return ids
}
