package quill

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/quillrt/quill/internal/realm"
)

// CompilationCache lets several Realms opened from one Runtime share
// compiled bytecode.Modules by source content hash, the same role
// wazero's Cache plays for compiled WebAssembly modules (SPEC_FULL.md §0),
// minus wazero's on-disk persistence: compiled modules never outlive the
// process (no Non-goal in spec.md asks for cross-process reuse).
type CompilationCache struct {
	lru *lru.Cache
}

// NewCompilationCache builds a cache holding up to size compiled modules.
// A Runtime built with NewRuntime owns one of these internally, sized by
// RuntimeConfig.WithModuleCacheSize; RuntimeConfig has no option to hand a
// Runtime an existing cache, so each Runtime's cache is its own.
func NewCompilationCache(size int) (*CompilationCache, error) {
	c, err := realm.NewModuleCache(size)
	if err != nil {
		return nil, err
	}
	return &CompilationCache{lru: c}, nil
}

// Len reports how many compiled modules are currently cached.
func (c *CompilationCache) Len() int { return c.lru.Len() }

// Close discards every cached module.
func (c *CompilationCache) Close() error {
	c.lru.Purge()
	return nil
}
