package cache

// Cache stores encoded results by key.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get retrieves a cached value by key
	// Returns the cached data and true if found, nil and false otherwise
	Get(key string) ([]byte, bool)

	// Set stores a value in the cache with the given key
	Set(key string, value []byte)

	// Len returns the number of live entries
	Len() int

	// Close releases any resources held by the cache
	Close()
}
