// Copyright 2025 Hearth
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package registry maps intent labels to the retrieval providers that can
// serve them. Provider order within an intent is priority order: the
// coordinator consumes results in that order when fusing overlaps.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"hearth/connectors/base"
)

// Registry is the intent-to-provider lookup table. Registration happens at
// startup; lookups are concurrent-safe afterwards.
type Registry struct {
	mu        sync.RWMutex
	byIntent  map[string][]base.Provider
	providers map[string]base.Provider
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byIntent:  make(map[string][]base.Provider),
		providers: make(map[string]base.Provider),
	}
}

// Register adds a provider under every intent it declares. Registering the
// same provider name twice is an error.
func (r *Registry) Register(p base.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.Name()]; exists {
		return fmt.Errorf("provider %q is already registered", p.Name())
	}
	r.providers[p.Name()] = p
	for _, intent := range p.Intents() {
		r.byIntent[intent] = append(r.byIntent[intent], p)
	}
	return nil
}

// ProvidersFor returns the priority-ordered providers for an intent. A nil
// slice means no provider serves the intent; callers treat that as "no
// retrieval data", not an error.
func (r *Registry) ProvidersFor(intent string) []base.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := r.byIntent[intent]
	out := make([]base.Provider, len(providers))
	copy(out, providers)
	return out
}

// Provider returns a registered provider by name.
func (r *Registry) Provider(name string) (base.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// All returns every registered provider, sorted by name.
func (r *Registry) All() []base.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]base.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Intents returns every intent label at least one provider serves, sorted.
func (r *Registry) Intents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byIntent))
	for intent := range r.byIntent {
		out = append(out, intent)
	}
	sort.Strings(out)
	return out
}
