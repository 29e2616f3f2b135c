package domain

// KeyValueStore is the durable string store shared by the cache and any other
// subsystem. Keys from different owners must not overlap.
type KeyValueStore interface {
	Get(key string) (string, bool, error)
	// Set replaces the value atomically. Returns ErrStorageFull when the
	// store cannot take more data.
	Set(key, value string) error
	// Remove is a no-op for absent keys.
	Remove(key string) error
	RemoveMany(keys []string) error
	Keys() ([]string, error)
	Close() error
}
