package keyword

// BoundedDistance returns the edit distance of a and b, or limit+1 as soon as it is
// known to exceed limit.
func BoundedDistance(a, b string, limit int, transpositions bool) int {
	return editDistance([]rune(a), []rune(b), transpositions, limit)
}

// editDistance keeps three rows of the alignment matrix; the row two back is only
// read for transpositions. limit < 0 means unbounded.
func editDistance(a, b []rune, transpositions bool, limit int) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if limit >= 0 && len(a)-len(b) > limit {
		return limit + 1
	}
	if len(b) == 0 {
		return len(a)
	}

	prev2 := make([]int, len(b)+1)
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			d := min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			if transpositions && i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				d = min(d, prev2[j-2]+1)
			}
			cur[j] = d
			rowMin = min(rowMin, d)
		}
		if limit >= 0 && rowMin > limit {
			return limit + 1
		}
		prev2, prev, cur = prev, cur, prev2
	}
	return prev[len(b)]
}
