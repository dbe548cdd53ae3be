// Package registry is the durable-plus-cached mapping from runtime id
// to descriptor: a SQLite row per runtime (name, source_file_name) and
// an in-memory cache populated at startup and kept in sync by every
// insert/remove. Reads come entirely from the cache; writes go
// through the database first and are mirrored into the cache only
// after the database commit succeeds.
package registry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"coderunner/internal/apierr"
	"coderunner/internal/model"
	_ "modernc.org/sqlite"
)

// Registry owns the database connection, the runtimes-root filesystem
// tree, and the in-memory cache mirroring both.
type Registry struct {
	db           *sql.DB
	runtimesRoot string
	cache        *cache
}

// Open connects to the SQLite database at dbPath, applies pending
// migrations, and loads the in-memory cache from the database plus a
// filesystem probe of runtimesRoot.
func Open(dbPath, runtimesRoot string) (*Registry, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, &apierr.PersistenceError{Message: "failed to open registry database", Cause: err}
	}
	db.SetMaxOpenConns(1) // single-writer sqlite file; serialised by the installation lock anyway

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, &apierr.PersistenceError{Message: "failed to migrate registry database", Cause: err}
	}

	r := &Registry{
		db:           db,
		runtimesRoot: runtimesRoot,
		cache:        newCache(),
	}
	if err := r.startupLoad(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the underlying database connection.
func (r *Registry) Close() error {
	return r.db.Close()
}

// startupLoad reads every row from the database, probes each
// runtime's directory for a `compile` file to derive is_compiled, and
// populates the cache.
func (r *Registry) startupLoad() error {
	rows, err := r.db.Query("SELECT id, name, source_file_name FROM runtime")
	if err != nil {
		return &apierr.PersistenceError{Message: "failed to query runtimes at startup", Cause: err}
	}
	defer rows.Close()

	var descriptors []model.Runtime
	for rows.Next() {
		var d model.Runtime
		if err := rows.Scan(&d.ID, &d.Name, &d.SourceFileName); err != nil {
			return &apierr.PersistenceError{Message: "failed to scan runtime row", Cause: err}
		}
		d.IsCompiled = r.probeIsCompiled(d.ID)
		descriptors = append(descriptors, d)
	}
	if err := rows.Err(); err != nil {
		return &apierr.PersistenceError{Message: "failed reading runtime rows", Cause: err}
	}

	r.cache.loadAll(descriptors)
	return nil
}

func (r *Registry) probeIsCompiled(id uint32) bool {
	_, err := os.Stat(filepath.Join(r.runtimesRoot, fmt.Sprint(id), "compile"))
	return err == nil
}

// Get returns the cached descriptor for id, if any.
func (r *Registry) Get(id uint32) (model.Runtime, bool) {
	return r.cache.get(id)
}

// List returns every cached runtime's (id, name) pair.
func (r *Registry) List() []model.RuntimeSummary {
	return r.cache.list()
}

// NameExists reports whether name is already present in the cache,
// used by the installation coordinator to reject duplicates before
// spending time on the package manager.
func (r *Registry) NameExists(name string) bool {
	return r.cache.nameExists(name)
}

// InsertRow runs `INSERT INTO runtime(name, source_file_name) VALUES
// (?, ?)` and returns the newly assigned id, read from the statement
// result's LastInsertId (SQLite's last_insert_rowid()). Insertion is not
// mirrored into the cache; callers must do so after the rest of the
// installation protocol succeeds.
func (r *Registry) InsertRow(name, sourceFileName string) (uint32, error) {
	res, err := r.db.Exec("INSERT INTO runtime(name, source_file_name) VALUES (?, ?)", name, sourceFileName)
	if err != nil {
		return 0, &apierr.PersistenceError{Message: "failed to insert runtime row", Cause: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &apierr.PersistenceError{Message: "failed to read last insert id", Cause: err}
	}
	return uint32(id), nil
}

// DeleteRowByName removes the row with the given name. Used to roll
// back a failed installation after InsertRow succeeded.
func (r *Registry) DeleteRowByName(name string) error {
	_, err := r.db.Exec("DELETE FROM runtime WHERE name = ?", name)
	if err != nil {
		return &apierr.PersistenceError{Message: "failed to roll back runtime row", Cause: err}
	}
	return nil
}

// DeleteRowByID removes the row with the given id and reports the
// number of affected rows (0 means the id did not exist).
func (r *Registry) DeleteRowByID(id uint32) (int64, error) {
	res, err := r.db.Exec("DELETE FROM runtime WHERE id = ?", id)
	if err != nil {
		return 0, &apierr.PersistenceError{Message: "failed to delete runtime row", Cause: err}
	}
	return res.RowsAffected()
}

// CacheInsert mirrors a newly installed descriptor into the
// in-memory cache.
func (r *Registry) CacheInsert(d model.Runtime) {
	r.cache.insert(d)
}

// CacheRemove removes id from the in-memory cache.
func (r *Registry) CacheRemove(id uint32) {
	r.cache.remove(id)
}

// RuntimesRoot returns the filesystem root under which per-runtime
// directories live.
func (r *Registry) RuntimesRoot() string {
	return r.runtimesRoot
}

// RuntimeDir returns the per-runtime directory path for id.
func (r *Registry) RuntimeDir(id uint32) string {
	return filepath.Join(r.runtimesRoot, fmt.Sprint(id))
}
