// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package helpdesk

import (
	"sync/atomic"

	"github.com/AleutianAI/helpdesk/services/helpdesk/resolver"
)

// ResolverHolder publishes the active resolver to request handlers.
//
// Resolvers are immutable, so a reload builds a new one and swaps the
// pointer. Requests already holding the old resolver finish against it.
//
// Thread Safety: Safe for concurrent use.
type ResolverHolder struct {
	current atomic.Pointer[resolver.Resolver]
}

// NewResolverHolder returns a holder with r installed. r may be nil.
func NewResolverHolder(r *resolver.Resolver) *ResolverHolder {
	h := &ResolverHolder{}
	if r != nil {
		h.current.Store(r)
	}
	return h
}

// Load returns the active resolver, or nil before the first Store.
func (h *ResolverHolder) Load() *resolver.Resolver {
	return h.current.Load()
}

// Store installs r and returns the resolver it replaced.
func (h *ResolverHolder) Store(r *resolver.Resolver) *resolver.Resolver {
	return h.current.Swap(r)
}

// Ready reports whether a resolver is installed.
func (h *ResolverHolder) Ready() bool {
	return h.current.Load() != nil
}
