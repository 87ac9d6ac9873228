package core

func Map[TSource any, TResult any](source []TSource, m func(TSource) TResult) []TResult {
	results := make([]TResult, 0, len(source))
	for _, s := range source {
		results = append(results, m(s))
	}
	return results
}

// GroupBy buckets source by key, keeping the input order inside each bucket.
func GroupBy[TSource any, TKey comparable](source []TSource, key func(TSource) TKey) map[TKey][]TSource {
	groups := make(map[TKey][]TSource)
	for _, s := range source {
		k := key(s)
		groups[k] = append(groups[k], s)
	}
	return groups
}
