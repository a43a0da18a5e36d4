package ledger

import (
	"maps"
	"sort"

	"ccms/pkg/domain"
	"ccms/pkg/platform/sentinel"
)

// Registry maps account identities to per-account records. Records are held
// by value so a cloned registry shares nothing with its source. The total
// counts every record ever created and never decreases.
type Registry[A any] struct {
	accounts map[domain.AccountID]A
	total    uint64
}

// NewRegistry returns an empty registry.
func NewRegistry[A any]() *Registry[A] {
	return &Registry[A]{accounts: make(map[domain.AccountID]A)}
}

// Register stores a fresh record for id.
//
// Errors: sentinel.ErrAlreadyUsed when id already has a record; the existing
// record is left untouched.
func (r *Registry[A]) Register(id domain.AccountID, record A) error {
	if _, ok := r.accounts[id]; ok {
		return sentinel.ErrAlreadyUsed
	}
	r.accounts[id] = record
	r.total++
	return nil
}

// Lookup returns the record for id or sentinel.ErrNotFound.
func (r *Registry[A]) Lookup(id domain.AccountID) (A, error) {
	record, ok := r.accounts[id]
	if !ok {
		var zero A
		return zero, sentinel.ErrNotFound
	}
	return record, nil
}

// Put replaces the record of a registered id.
func (r *Registry[A]) Put(id domain.AccountID, record A) error {
	if _, ok := r.accounts[id]; !ok {
		return sentinel.ErrNotFound
	}
	r.accounts[id] = record
	return nil
}

// Total returns the number of records ever created.
func (r *Registry[A]) Total() uint64 {
	return r.total
}

// IDs returns the registered identities in sorted order.
func (r *Registry[A]) IDs() []domain.AccountID {
	ids := make([]domain.AccountID, 0, len(r.accounts))
	for id := range r.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Clone returns an independent copy.
func (r *Registry[A]) Clone() *Registry[A] {
	return &Registry[A]{accounts: maps.Clone(r.accounts), total: r.total}
}
