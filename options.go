package rbtree

import "go.uber.org/zap"

// MaxVersions is the default version budget: versions 0 through
// MaxVersions-1 in total, i.e. the empty version plus at most
// MaxVersions-1 mutations.
const MaxVersions = 100

const defaultCacheSize = 128

// Options define tree configuration.
type Options struct {
	// MaxVersions caps the total number of versions, the empty version 0
	// included. Zero means the default budget.
	MaxVersions int64

	// CacheSize bounds the per-version traversal cache. Zero means the
	// default size; negative disables caching.
	CacheSize int

	// Logger receives store diagnostics. Nil means no logging.
	Logger *zap.Logger
}

// DefaultOptions returns the default configuration.
func DefaultOptions() *Options {
	return &Options{
		MaxVersions: MaxVersions,
		CacheSize:   defaultCacheSize,
	}
}
