package validator

// Clamp 将 v 限制在 [lo, hi] 区间
func Clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// Paging 规范化分页参数：limit 落在 [1, maxLimit]，offset 不小于 0
func Paging(limit, offset, maxLimit int) (int, int) {
	return Clamp(limit, 1, maxLimit), max(offset, 0)
}
