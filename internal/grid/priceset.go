package grid

import (
	"sort"

	"github.com/shopspring/decimal"
)

// PriceSet 是按价格数值去重的有序集合，成员判断基于数值相等而非插入顺序。
type PriceSet struct {
	prices []decimal.Decimal
}

// NewPriceSet 构造集合，重复价格只保留一个。
func NewPriceSet(prices ...decimal.Decimal) PriceSet {
	sorted := make([]decimal.Decimal, len(prices))
	copy(sorted, prices)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LessThan(sorted[j])
	})

	out := sorted[:0]
	for i, p := range sorted {
		if i > 0 && p.Equal(out[len(out)-1]) {
			continue
		}
		out = append(out, p)
	}
	return PriceSet{prices: out}
}

// Len 返回集合大小。
func (s PriceSet) Len() int {
	return len(s.prices)
}

// Contains 判断价格是否在集合中。
func (s PriceSet) Contains(price decimal.Decimal) bool {
	i := sort.Search(len(s.prices), func(i int) bool {
		return !s.prices[i].LessThan(price)
	})
	return i < len(s.prices) && s.prices[i].Equal(price)
}

// Union 返回两个集合的并集。
func (s PriceSet) Union(other PriceSet) PriceSet {
	merged := make([]decimal.Decimal, 0, len(s.prices)+len(other.prices))
	merged = append(merged, s.prices...)
	merged = append(merged, other.prices...)
	return NewPriceSet(merged...)
}

// Ascending 返回升序副本。
func (s PriceSet) Ascending() []decimal.Decimal {
	out := make([]decimal.Decimal, len(s.prices))
	copy(out, s.prices)
	return out
}

// Descending 返回降序副本。
func (s PriceSet) Descending() []decimal.Decimal {
	out := make([]decimal.Decimal, len(s.prices))
	for i, p := range s.prices {
		out[len(s.prices)-1-i] = p
	}
	return out
}
