package services

import (
	"slices"
	"sync"
)

// HolderIndex maps an account to the set of listing ids it holds.
type HolderIndex struct {
	mu      sync.RWMutex
	holders map[string]map[uint64]struct{}
}

func NewHolderIndex() *HolderIndex {
	return &HolderIndex{holders: make(map[string]map[uint64]struct{})}
}

// Add records id under account. Adding an id that is already present is a no-op.
func (h *HolderIndex) Add(account string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.holders[account]
	if !ok {
		set = make(map[uint64]struct{})
		h.holders[account] = set
	}
	set[id] = struct{}{}
}

func (h *HolderIndex) Remove(account string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(account, id)
}

// Move transfers id from one account to another in a single step.
func (h *HolderIndex) Move(from, to string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.remove(from, id)
	set, ok := h.holders[to]
	if !ok {
		set = make(map[uint64]struct{})
		h.holders[to] = set
	}
	set[id] = struct{}{}
}

func (h *HolderIndex) remove(account string, id uint64) {
	set, ok := h.holders[account]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(h.holders, account)
	}
}

func (h *HolderIndex) Has(account string, id uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.holders[account][id]
	return ok
}

// Held returns the ids held by account in ascending order.
func (h *HolderIndex) Held(account string) []uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.holders[account]
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
