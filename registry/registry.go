// Package registry keeps the set of known nodes, persisted in SQLite so that
// instances survive a daemon restart.
package registry

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/platformlayer/openstack-jenkins/node"
	"github.com/samber/lo"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Record is the persisted part of a node registration.
type Record struct {
	ID        string
	Name      string
	Cloud     string
	Template  string
	CreatedAt time.Time
}

type Registry struct {
	db *sql.DB

	mutex sync.RWMutex
	nodes map[string]*node.Handle
}

// Registry implements node.Registry
var _ node.Registry = (*Registry)(nil)

// Open opens (or creates) the database at path. Use ":memory:" for a throwaway registry.
func Open(path string) (*Registry, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry '%s': %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writes.
	db.SetMaxOpenConns(1)

	r := &Registry{db: db, nodes: map[string]*node.Handle{}}
	if err := r.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Registry) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("failed to apply migration: %w", err)
	}
	return nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

func (r *Registry) Add(ctx context.Context, h *node.Handle) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO nodes (id, name, cloud, template, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, cloud = excluded.cloud, template = excluded.template`,
		h.ID(), h.Name(), h.CloudID(), h.Spec().Template, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to persist node '%s': %w", h.Name(), err)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.nodes[h.ID()] = h
	return nil
}

func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mutex.Lock()
	delete(r.nodes, id)
	r.mutex.Unlock()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to forget node '%s': %w", id, err)
	}
	return nil
}

func (r *Registry) Get(id string) (*node.Handle, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	h, ok := r.nodes[id]
	return h, ok
}

// Find looks a node up by instance id or by name.
func (r *Registry) Find(ref string) (*node.Handle, bool) {
	if h, ok := r.Get(ref); ok {
		return h, true
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return lo.Find(lo.Values(r.nodes), func(h *node.Handle) bool { return h.Name() == ref })
}

// List returns the live handles sorted by name.
func (r *Registry) List() []*node.Handle {
	r.mutex.RLock()
	nodes := lo.Values(r.nodes)
	r.mutex.RUnlock()

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name() < nodes[j].Name() })
	return nodes
}

// Records returns every persisted registration, including those without a live handle.
func (r *Registry) Records(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, cloud, template, created_at FROM nodes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var record Record
		var createdAt int64
		if err := rows.Scan(&record.ID, &record.Name, &record.Cloud, &record.Template, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to read node: %w", err)
		}
		record.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, record)
	}
	return records, rows.Err()
}
