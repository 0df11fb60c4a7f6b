package gateway

import (
	"fmt"
	"strconv"
	"strings"
)

// ShardID 分片编号，取值范围 [0, total)
type ShardID = uint64

// StrategyKind 分片策略类型
type StrategyKind int

const (
	// StrategyAutoshard 由远端推荐分片数（未实现）
	StrategyAutoshard StrategyKind = iota
	// StrategyRange 显式指定本进程负责的分片区间
	StrategyRange
)

// ShardingStrategy 分片策略
//
// Range 表示本进程从 Index 开始连续负责 Count 个分片，Total 为整个部署的分片总数，
// 会出现在握手载荷中。必须满足 Index+Count <= Total。
type ShardingStrategy struct {
	Kind  StrategyKind
	Index uint64
	Count uint64
	Total uint64
}

// Auto 自动分片（未实现，Resolve 返回 ErrAutoshardUnsupported）
func Auto() ShardingStrategy {
	return ShardingStrategy{Kind: StrategyAutoshard}
}

// Simple 单分片：(0, 1, 1)
func Simple() ShardingStrategy {
	return Range(0, 1, 1)
}

// Multi 单进程运行全部 n 个分片：(0, n, n)
func Multi(n uint64) ShardingStrategy {
	return Range(0, n, n)
}

// Range 多进程部署时显式指定区间
func Range(index, count, total uint64) ShardingStrategy {
	return ShardingStrategy{Kind: StrategyRange, Index: index, Count: count, Total: total}
}

// Resolve 解析为 (index, count, total)
func (s ShardingStrategy) Resolve() (index, count, total uint64, err error) {
	switch s.Kind {
	case StrategyAutoshard:
		return 0, 0, 0, ErrAutoshardUnsupported
	case StrategyRange:
		if s.Count == 0 || s.Total == 0 {
			return 0, 0, 0, ErrInvalidStrategy.WithMessagef("gateway: invalid sharding strategy %s: count and total must be positive", s)
		}
		// 先判断 Index 避免 Index+Count 溢出
		if s.Index >= s.Total || s.Count > s.Total-s.Index {
			return 0, 0, 0, ErrInvalidStrategy.WithMessagef("gateway: invalid sharding strategy %s: index+count exceeds total", s)
		}
		return s.Index, s.Count, s.Total, nil
	default:
		return 0, 0, 0, ErrInvalidStrategy.WithMessagef("gateway: unknown strategy kind %d", s.Kind)
	}
}

// IDs 返回本进程负责的分片 ID（升序）
func (s ShardingStrategy) IDs() ([]ShardID, error) {
	index, count, _, err := s.Resolve()
	if err != nil {
		return nil, err
	}
	ids := make([]ShardID, 0, count)
	for i := uint64(0); i < count; i++ {
		ids = append(ids, index+i)
	}
	return ids, nil
}

// String 返回可被 ParseStrategy 解析的文本
func (s ShardingStrategy) String() string {
	if s.Kind == StrategyAutoshard {
		return "auto"
	}
	switch {
	case s.Index == 0 && s.Count == 1 && s.Total == 1:
		return "simple"
	case s.Index == 0 && s.Count == s.Total:
		return fmt.Sprintf("multi:%d", s.Total)
	default:
		return fmt.Sprintf("range:%d:%d:%d", s.Index, s.Count, s.Total)
	}
}

// ParseStrategy 解析策略文本：auto | simple | multi:N | range:I:C:T
func ParseStrategy(text string) (ShardingStrategy, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(text)), ":")
	nums := make([]uint64, 0, 3)
	for _, p := range parts[1:] {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return ShardingStrategy{}, ErrInvalidStrategy.WithMessagef("gateway: invalid sharding strategy %q", text).WithError(err)
		}
		nums = append(nums, n)
	}

	switch {
	case parts[0] == "auto" && len(nums) == 0:
		return Auto(), nil
	case parts[0] == "simple" && len(nums) == 0:
		return Simple(), nil
	case parts[0] == "multi" && len(nums) == 1:
		return Multi(nums[0]), nil
	case parts[0] == "range" && len(nums) == 3:
		return Range(nums[0], nums[1], nums[2]), nil
	default:
		return ShardingStrategy{}, ErrInvalidStrategy.WithMessagef("gateway: invalid sharding strategy %q", text)
	}
}

// MarshalText 实现 encoding.TextMarshaler
func (s ShardingStrategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (s *ShardingStrategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
