// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

// Chunk partitions items into consecutive slices of at most size elements.
// A size below 1 yields a single chunk with all items. The returned slices
// share the backing array of items.
//
// Example:
//
//	utils.Chunk([]string{"a", "b", "c"}, 2) // [["a" "b"] ["c"]]
func Chunk(items []string, size int) [][]string {
	if len(items) == 0 {
		return nil
	}
	if size < 1 {
		return [][]string{items}
	}
	out := make([][]string, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}
