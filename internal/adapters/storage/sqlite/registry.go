// Package sqlite implements the server registry on an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/melih/servery/internal/core/domain"
)

// Registry implements ports.ServerRegistry with one row per server.
type Registry struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the database at path and migrates it.
func Open(path string) (*Registry, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, &domain.StorageError{Op: "open registry", Err: err}
	}
	return &Registry{db: db}, nil
}

// Close closes the database.
func (r *Registry) Close() error {
	return r.db.Close()
}

const selectServers = `SELECT id, name, version, mods, status FROM servers`

// All returns every record in insertion order.
func (r *Registry) All(ctx context.Context) ([]domain.Server, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, selectServers+` ORDER BY seq`)
	if err != nil {
		return nil, &domain.StorageError{Op: "list servers", Err: err}
	}
	defer rows.Close()

	servers := []domain.Server{}
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, &domain.StorageError{Op: "list servers", Err: err}
		}
		servers = append(servers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "list servers", Err: err}
	}
	return servers, nil
}

// ByID returns domain.ErrNotFound when no row has id.
func (r *Registry) ByID(ctx context.Context, id domain.ID) (domain.Server, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row := r.db.QueryRowContext(ctx, selectServers+` WHERE id = ?`, int64(id))
	s, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Server{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Server{}, &domain.StorageError{Op: "get server", Err: err}
	}
	return s, nil
}

// Insert allocates the id and writes the row in one transaction.
func (r *Registry) Insert(ctx context.Context, candidate *domain.ID, fields domain.ServerFields) (domain.Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := domain.Server{ServerFields: fields, Status: domain.StatusPending}.Clone()
	if rec.Mods == nil {
		rec.Mods = []string{}
	}
	mods, err := json.Marshal(rec.Mods)
	if err != nil {
		return domain.Server{}, &domain.StorageError{Op: "encode mods", Err: err}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Server{}, &domain.StorageError{Op: "begin insert", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	used, err := usedIDs(ctx, tx)
	if err != nil {
		return domain.Server{}, &domain.StorageError{Op: "scan ids", Err: err}
	}
	if candidate != nil {
		if _, taken := used[*candidate]; taken {
			return domain.Server{}, &domain.DuplicateIdentityError{ID: *candidate}
		}
		rec.ID = *candidate
	} else {
		rec.ID = domain.FirstFreeID(used)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO servers (id, name, version, mods, status) VALUES (?, ?, ?, ?, ?)`,
		int64(rec.ID), rec.Name, rec.Version, string(mods), string(rec.Status),
	); err != nil {
		return domain.Server{}, &domain.StorageError{Op: "insert server", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.Server{}, &domain.StorageError{Op: "commit insert", Err: err}
	}
	return rec, nil
}

// SetStatus updates the status column of id.
func (r *Registry) SetStatus(ctx context.Context, id domain.ID, status domain.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidRequest, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, `UPDATE servers SET status = ? WHERE id = ?`, string(status), int64(id))
	if err != nil {
		return &domain.StorageError{Op: "update status", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &domain.StorageError{Op: "update status", Err: err}
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func usedIDs(ctx context.Context, tx *sql.Tx) (map[domain.ID]struct{}, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM servers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	used := map[domain.ID]struct{}{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		used[domain.ID(id)] = struct{}{}
	}
	return used, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanServer(row scanner) (domain.Server, error) {
	var (
		s      domain.Server
		id     int64
		mods   string
		status string
	)
	if err := row.Scan(&id, &s.Name, &s.Version, &mods, &status); err != nil {
		return domain.Server{}, err
	}
	s.ID = domain.ID(id)
	s.Status = domain.Status(status)
	if err := json.Unmarshal([]byte(mods), &s.Mods); err != nil {
		return domain.Server{}, fmt.Errorf("decode mods of server %s: %w", s.ID, err)
	}
	if s.Mods == nil {
		s.Mods = []string{}
	}
	return s, nil
}
