package reconcile

// Cluster is a set of records sharing one scoped key, in first-seen order.
type Cluster[T any] struct {
	Key     string
	Members []T
}

// Group partitions items by key in one pass. Clusters come back in the order
// their first member was seen. Items whose key is empty are left out.
func Group[T any](items []T, key func(T) string) []Cluster[T] {
	index := make(map[string]int, len(items))
	var out []Cluster[T]
	for _, it := range items {
		k := key(it)
		if k == "" {
			continue
		}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, Cluster[T]{Key: k})
		}
		out[i].Members = append(out[i].Members, it)
	}
	return out
}

// Duplicates keeps only clusters with two or more members.
func Duplicates[T any](clusters []Cluster[T]) []Cluster[T] {
	var out []Cluster[T]
	for _, c := range clusters {
		if len(c.Members) > 1 {
			out = append(out, c)
		}
	}
	return out
}
