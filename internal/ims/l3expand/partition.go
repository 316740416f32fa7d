package l3expand

// DefaultWorkerCount bounds coordination overhead against parallelism.
const DefaultWorkerCount = 5

// Partition splits items into at most n contiguous, non-empty parts whose
// sizes differ by at most one. Concatenating the parts reproduces items.
// The parts share items' backing array.
func Partition[T any](items []T, n int) [][]T {
	if n < 1 {
		n = 1
	}
	if len(items) == 0 {
		return nil
	}
	if n > len(items) {
		n = len(items)
	}

	parts := make([][]T, 0, n)
	size, extra := len(items)/n, len(items)%n
	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < extra {
			end++
		}
		parts = append(parts, items[start:end:end])
		start = end
	}
	return parts
}
