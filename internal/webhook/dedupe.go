// Copyright 2025 The Pollinate Authors
//
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

package webhook

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// maxDeliveries bounds how many delivery IDs are remembered at once
const maxDeliveries = 10000

// DeliveryCache remembers X-GitHub-Delivery IDs for a window so that
// redeliveries of an event are not processed twice. Expired IDs are
// evicted by the cache itself.
type DeliveryCache struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, struct{}]
}

// NewDeliveryCache creates a cache that remembers IDs for window
func NewDeliveryCache(window time.Duration) *DeliveryCache {
	return &DeliveryCache{
		seen: expirable.NewLRU[string, struct{}](maxDeliveries, nil, window),
	}
}

// Claim records id and reports whether it was not seen within the window
func (c *DeliveryCache) Claim(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen.Get(id); ok {
		return false
	}
	c.seen.Add(id, struct{}{})
	return true
}

// Release forgets id
func (c *DeliveryCache) Release(id string) {
	c.seen.Remove(id)
}

// Len returns the number of remembered deliveries
func (c *DeliveryCache) Len() int {
	return c.seen.Len()
}
