package memory

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bengol30/bandgo/internal/persistence"
)

var errReadOnly = errors.New("memory: write inside a read-only transaction")

// table is an insertion-ordered collection. A committed table is never
// mutated again; writers work on a copy made by clone.
type table[T persistence.Entity[T]] struct {
	order []string
	rows  map[string]T
}

func newTable[T persistence.Entity[T]]() *table[T] {
	return &table[T]{rows: make(map[string]T)}
}

func tableFrom[T persistence.Entity[T]](records []T) (*table[T], error) {
	t := newTable[T]()
	for _, record := range records {
		id := record.EntityID()
		if _, ok := t.rows[id]; ok {
			return nil, fmt.Errorf("memory: duplicate id %q in snapshot: %w", id, persistence.ErrDuplicate)
		}
		t.order = append(t.order, id)
		t.rows[id] = record.Clone()
	}
	return t, nil
}

// clone copies the index only. Stored values are private clones and are
// replaced, never modified, so sharing them between versions is safe.
func (t *table[T]) clone() *table[T] {
	rows := make(map[string]T, len(t.rows))
	for id, record := range t.rows {
		rows[id] = record
	}
	return &table[T]{order: slices.Clone(t.order), rows: rows}
}

func (t *table[T]) list() []T {
	out := make([]T, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.rows[id].Clone())
	}
	return out
}

// txTable is the transaction view of a table. It reads from base until the
// first write, which switches it to a private copy.
type txTable[T persistence.Entity[T]] struct {
	base     *table[T]
	own      *table[T]
	readOnly bool
}

func (t *txTable[T]) current() *table[T] {
	if t.own != nil {
		return t.own
	}
	return t.base
}

func (t *txTable[T]) writable() (*table[T], error) {
	if t.readOnly {
		return nil, errReadOnly
	}
	if t.own == nil {
		t.own = t.base.clone()
	}
	return t.own, nil
}

// committed returns the version the store should keep after commit.
func (t *txTable[T]) committed() *table[T] {
	return t.current()
}

func (t *txTable[T]) Get(id string) (T, error) {
	record, ok := t.current().rows[id]
	if !ok {
		var zero T
		return zero, persistence.ErrNotFound
	}
	return record.Clone(), nil
}

func (t *txTable[T]) Insert(record T) error {
	id := record.EntityID()
	if id == "" {
		return fmt.Errorf("memory: insert %T with empty id", record)
	}
	if _, ok := t.current().rows[id]; ok {
		return persistence.ErrDuplicate
	}
	w, err := t.writable()
	if err != nil {
		return err
	}
	w.order = append(w.order, id)
	w.rows[id] = record.Clone()
	return nil
}

func (t *txTable[T]) Update(record T) error {
	id := record.EntityID()
	if _, ok := t.current().rows[id]; !ok {
		return persistence.ErrNotFound
	}
	w, err := t.writable()
	if err != nil {
		return err
	}
	w.rows[id] = record.Clone()
	return nil
}

func (t *txTable[T]) Delete(id string) error {
	if _, ok := t.current().rows[id]; !ok {
		return persistence.ErrNotFound
	}
	w, err := t.writable()
	if err != nil {
		return err
	}
	delete(w.rows, id)
	if i := slices.Index(w.order, id); i >= 0 {
		w.order = slices.Delete(w.order, i, i+1)
	}
	return nil
}

func (t *txTable[T]) List() []T {
	return t.current().list()
}

func (t *txTable[T]) Find(keep func(T) bool) []T {
	cur := t.current()
	var out []T
	for _, id := range cur.order {
		record := cur.rows[id].Clone()
		if keep == nil || keep(record) {
			out = append(out, record)
		}
	}
	return out
}

func (t *txTable[T]) Len() int {
	return len(t.current().order)
}
