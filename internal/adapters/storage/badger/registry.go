// Package badger implements the server registry on a Badger key-value
// store, one JSON document per server.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/melih/servery/internal/core/domain"
)

const keyPrefix = "server:"

// Registry implements ports.ServerRegistry with Badger.
type Registry struct {
	db *badger.DB
	mu sync.RWMutex
}

// document is the stored value. Seq preserves insertion order because keys
// are ordered by id.
type document struct {
	Seq uint64 `json:"seq"`
	domain.Server
}

// Open opens or creates the store in directory path.
func Open(path string) (*Registry, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, &domain.StorageError{Op: "create registry dir", Err: err}
	}
	opts := badger.DefaultOptions(filepath.Clean(path))
	opts.Logger = nil                         // badger logs to stderr otherwise
	opts = opts.WithValueLogFileSize(1 << 20) // small value log, records are tiny
	db, err := badger.Open(opts)
	if err != nil {
		return nil, &domain.StorageError{Op: "open registry", Err: err}
	}
	return &Registry{db: db}, nil
}

// Close closes the store.
func (r *Registry) Close() error {
	return r.db.Close()
}

func serverKey(id domain.ID) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, uint64(id)))
}

// All returns every record in insertion order.
func (r *Registry) All(ctx context.Context) ([]domain.Server, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var docs []document
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		docs, err = scan(txn)
		return err
	})
	if err != nil {
		return nil, &domain.StorageError{Op: "list servers", Err: err}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Seq < docs[j].Seq })

	servers := make([]domain.Server, len(docs))
	for i, d := range docs {
		servers[i] = d.Server
	}
	return servers, nil
}

// ByID returns domain.ErrNotFound when no document has id.
func (r *Registry) ByID(ctx context.Context, id domain.ID) (domain.Server, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var doc document
	err := r.db.View(func(txn *badger.Txn) error {
		return get(txn, id, &doc)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Server{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Server{}, &domain.StorageError{Op: "get server", Err: err}
	}
	return doc.Server, nil
}

// Insert allocates the id and writes the document in one update transaction.
func (r *Registry) Insert(ctx context.Context, candidate *domain.ID, fields domain.ServerFields) (domain.Server, error) {
	if err := ctx.Err(); err != nil {
		return domain.Server{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec := domain.Server{ServerFields: fields, Status: domain.StatusPending}.Clone()
	if rec.Mods == nil {
		rec.Mods = []string{}
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		docs, err := scan(txn)
		if err != nil {
			return err
		}
		used := make(map[domain.ID]struct{}, len(docs))
		var seq uint64
		for _, d := range docs {
			used[d.ID] = struct{}{}
			if d.Seq >= seq {
				seq = d.Seq + 1
			}
		}
		if candidate != nil {
			if _, taken := used[*candidate]; taken {
				return &domain.DuplicateIdentityError{ID: *candidate}
			}
			rec.ID = *candidate
		} else {
			rec.ID = domain.FirstFreeID(used)
		}
		return put(txn, document{Seq: seq, Server: rec})
	})
	if err != nil {
		var dup *domain.DuplicateIdentityError
		if errors.As(err, &dup) {
			return domain.Server{}, dup
		}
		return domain.Server{}, &domain.StorageError{Op: "insert server", Err: err}
	}
	return rec, nil
}

// SetStatus rewrites the document of id with the new status.
func (r *Registry) SetStatus(ctx context.Context, id domain.ID, status domain.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidRequest, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.db.Update(func(txn *badger.Txn) error {
		var doc document
		if err := get(txn, id, &doc); err != nil {
			return err
		}
		doc.Status = status
		return put(txn, doc)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return &domain.StorageError{Op: "update status", Err: err}
	}
	return nil
}

func get(txn *badger.Txn, id domain.ID, doc *document) error {
	item, err := txn.Get(serverKey(id))
	if err != nil {
		return err
	}
	return item.Value(func(v []byte) error {
		return json.Unmarshal(v, doc)
	})
}

func put(txn *badger.Txn, doc document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return txn.Set(serverKey(doc.ID), data)
}

func scan(txn *badger.Txn) ([]document, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(keyPrefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	var docs []document
	for it.Rewind(); it.Valid(); it.Next() {
		var doc document
		if err := it.Item().Value(func(v []byte) error {
			return json.Unmarshal(v, &doc)
		}); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
