package warehouse

// dedupBy collapses rows sharing a key. The surviving row holds the values
// of the last occurrence and sits at the position of the first, so output
// order is first-occurrence order. Rows with an empty key are dropped.
func dedupBy[T any](rows []T, key func(T) string) []T {
	index := make(map[string]int, len(rows))
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		k := key(r)
		if k == "" {
			continue
		}
		if i, ok := index[k]; ok {
			out[i] = r
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}
