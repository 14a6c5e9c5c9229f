package buffer

// Allocator defines the contract for a pool that rents and reclaims backing arrays.
type Allocator[T any] interface {
	Acquire(size int) ([]T, error)    // Acquire rents an array with len == size.
	Release(arr []T, wipe bool) error // Release returns an array to the tier it was rented from.
}
