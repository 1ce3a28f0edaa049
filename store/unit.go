package store

import (
	"github.com/RuiFG/teleport/log"
	"github.com/uber-go/tally/v4"
)

// Unit is one logical table of the shared KV. A unit owns its cache and the
// keys under Prefix(Name()), and is the only one allowed to mutate them.
// All hooks must be safe to call when there is nothing to do.
type Unit interface {
	Name() string
	// OnLoad fills the cache from the KV.
	OnLoad() error
	// OnUnload persists the final state, the KV is closed right after.
	OnUnload() error
	// OnWriteBack flushes dirty state. It runs on the write back worker,
	// concurrently with the unit's own domain operations.
	OnWriteBack() error
}

// Context is handed to unit factories. KV stays owned by the registry and is
// valid until the registry is closed.
type Context struct {
	KV     KV
	Logger log.Logger
	Scope  tally.Scope
}

// WithDefaults fills a nil Logger or Scope with no-op implementations.
func (c Context) WithDefaults() Context {
	if c.Logger == nil {
		c.Logger = log.Nop()
	}
	if c.Scope == nil {
		c.Scope = tally.NoopScope
	}
	return c
}
