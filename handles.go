/*
 * Copyright 2026 The NeoRPC Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package neorpc

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/neorpc/neorpc-go/internal/wire"
)

// HandleKind is the kind of a server handle.
type HandleKind string

const (
	SessionHandle  HandleKind = "session"
	RowsHandle     HandleKind = "rows"
	AppenderHandle HandleKind = "appender"
)

// HandleInfo describes a handle held open by a Client.
type HandleInfo struct {
	ID      string
	Kind    HandleKind
	Parent  string
	Created time.Time
}

// handle is the client side record of a server handle. mu serializes the
// operations on the handle; nothing else is guarded by it.
type handle struct {
	id      wire.Handle
	kind    HandleKind
	parent  *handle
	created time.Time

	mu sync.Mutex

	childMu  sync.Mutex
	children map[*handle]struct{}
}

func newHandle(id wire.Handle, kind HandleKind, parent *handle) *handle {
	h := &handle{
		id:      id,
		kind:    kind,
		parent:  parent,
		created: time.Now(),
	}
	if parent != nil {
		parent.addChild(h)
	}
	return h
}

func (h *handle) addChild(child *handle) {
	h.childMu.Lock()
	defer h.childMu.Unlock()
	if h.children == nil {
		h.children = make(map[*handle]struct{})
	}
	h.children[child] = struct{}{}
}

func (h *handle) removeChild(child *handle) {
	h.childMu.Lock()
	defer h.childMu.Unlock()
	delete(h.children, child)
}

func (h *handle) childCount() int {
	h.childMu.Lock()
	defer h.childMu.Unlock()
	return len(h.children)
}

// detach unlinks h from its parent.
func (h *handle) detach() {
	if h.parent != nil {
		h.parent.removeChild(h)
	}
}

func (h *handle) info() HandleInfo {
	info := HandleInfo{
		ID:      string(h.id),
		Kind:    h.kind,
		Created: h.created,
	}
	if h.parent != nil {
		info.Parent = string(h.parent.id)
	}
	return info
}

// handleTable indexes the open handles of a Client.
type handleTable struct {
	mu sync.RWMutex
	m  map[wire.Handle]*handle
}

func newHandleTable() *handleTable {
	return &handleTable{m: make(map[wire.Handle]*handle)}
}

func (t *handleTable) add(h *handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[h.id] = h
}

// remove drops h and unlinks it from its parent. It reports whether h was
// still registered.
func (t *handleTable) remove(h *handle) bool {
	t.mu.Lock()
	_, ok := t.m[h.id]
	if ok {
		delete(t.m, h.id)
	}
	t.mu.Unlock()
	h.detach()
	return ok
}

func (t *handleTable) list() []HandleInfo {
	t.mu.RLock()
	infos := make([]HandleInfo, 0, len(t.m))
	for _, h := range t.m {
		infos = append(infos, h.info())
	}
	t.mu.RUnlock()

	slices.SortFunc(infos, func(a, b HandleInfo) int {
		if c := a.Created.Compare(b.Created); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return infos
}
