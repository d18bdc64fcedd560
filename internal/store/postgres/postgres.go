// Package postgres provides the PostgreSQL-backed record store with metrics.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"

	"github.com/driftpad/driftpad/internal/logging"
	"github.com/driftpad/driftpad/internal/metrics"
	"github.com/driftpad/driftpad/pkg/models"
	"github.com/driftpad/driftpad/pkg/protocol"
	"github.com/driftpad/driftpad/pkg/tree"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is a PostgreSQL record store.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL store.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for use by other packages.
func (s *Store) DB() *sql.DB {
	return s.db
}

// UpdateConnectionMetrics updates the database connection metrics.
func (s *Store) UpdateConnectionMetrics() {
	stats := s.db.Stats()
	metrics.SetDBConnectionsOpen(stats.OpenConnections)
}

// Migrate runs SQL migration files.
func (s *Store) Migrate(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}

	for _, f := range files {
		logging.Info("running migration", zap.String("file", filepath.Base(f)))
		content, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
	}

	return nil
}

// ─── Projects ────────────────────────────────────────────────────────────────

// CreateProject creates a project owned by ownerID.
func (s *Store) CreateProject(ctx context.Context, ownerID int, name string) (*models.Project, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("create_project", time.Since(start)) }()

	p := &models.Project{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Name:    name,
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO projects (id, owner_id, name) VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		p.ID, ownerID, name).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, &protocol.PersistenceError{Op: "create project", ID: name, Err: err}
	}

	logging.Info("project created",
		zap.String("project_id", p.ID),
		zap.Int("owner_id", ownerID),
		zap.String("name", name))
	return p, nil
}

// GetProject returns a project by ID.
func (s *Store) GetProject(ctx context.Context, projectID string) (*models.Project, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("get_project", time.Since(start)) }()

	var p models.Project
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, created_at, updated_at FROM projects WHERE id = $1`,
		projectID).Scan(&p.ID, &p.OwnerID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &protocol.NotFoundError{Resource: "project", ID: projectID}
	}
	if err != nil {
		return nil, fmt.Errorf("query project: %w", err)
	}
	return &p, nil
}

// ListProjects returns all projects owned by the user, newest first.
func (s *Store) ListProjects(ctx context.Context, ownerID int) ([]models.Project, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("list_projects", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, name, created_at, updated_at
		 FROM projects WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project and all of its records.
func (s *Store) DeleteProject(ctx context.Context, projectID string) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("delete_project", time.Since(start)) }()

	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, projectID)
	if err != nil {
		return &protocol.PersistenceError{Op: "delete project", ID: projectID, Err: err}
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return &protocol.NotFoundError{Resource: "project", ID: projectID}
	}
	logging.Info("project deleted", zap.String("project_id", projectID))
	return nil
}

// ─── Records ─────────────────────────────────────────────────────────────────

const recordColumns = `id, project_id, name, path, type, extension, size, COALESCE(parent_id, ''), created_at, updated_at`

func scanRecord(scan func(...any) error) (*models.Record, error) {
	var r models.Record
	err := scan(&r.ID, &r.ProjectID, &r.Name, &r.Path, &r.Type, &r.Extension,
		&r.Size, &r.ParentID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRecords returns all flat records of a project ordered by path.
func (s *Store) ListRecords(ctx context.Context, projectID string) ([]models.Record, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("list_records", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM files WHERE project_id = $1 ORDER BY path`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// BuildTree loads a project's flat records and assembles the display tree.
func (s *Store) BuildTree(ctx context.Context, projectID string) ([]*models.Node, error) {
	records, err := s.ListRecords(ctx, projectID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	roots := tree.Build(records)
	metrics.RecordTreeBuild(len(records), time.Since(start))

	logging.Debug("built project tree",
		zap.String("project_id", projectID),
		zap.Int("records", len(records)))
	return roots, nil
}

// GetRecord returns a single record without content.
func (s *Store) GetRecord(ctx context.Context, fileID string) (*models.Record, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("get_record", time.Since(start)) }()

	r, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM files WHERE id = $1`, fileID).Scan)
	if err == sql.ErrNoRows {
		return nil, &protocol.NotFoundError{Resource: "file", ID: fileID}
	}
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}
	return r, nil
}

// GetRecordContent returns a file record with its content.
func (s *Store) GetRecordContent(ctx context.Context, fileID string) (*models.RecordContent, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("get_record_content", time.Since(start)) }()

	var rc models.RecordContent
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, name, path, type, extension, size, COALESCE(parent_id, ''),
		        content, created_at, updated_at
		 FROM files WHERE id = $1`, fileID).
		Scan(&rc.ID, &rc.ProjectID, &rc.Name, &rc.Path, &rc.Type, &rc.Extension,
			&rc.Size, &rc.ParentID, &rc.Content, &rc.CreatedAt, &rc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &protocol.NotFoundError{Resource: "file", ID: fileID}
	}
	if err != nil {
		return nil, fmt.Errorf("query record content: %w", err)
	}
	return &rc, nil
}

// CreateRecord inserts a new file or folder record. The path is derived from
// the parent's path and the record name; an orphaned parent ID resolves to
// the project root.
func (s *Store) CreateRecord(ctx context.Context, projectID, name string, typ models.RecordType, parentID, extension, content string) (*models.Record, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("create_record", time.Since(start)) }()

	path := "/" + name
	if parentID != "" {
		var parentPath string
		var parentType models.RecordType
		err := s.db.QueryRowContext(ctx,
			`SELECT path, type FROM files WHERE id = $1 AND project_id = $2`,
			parentID, projectID).Scan(&parentPath, &parentType)
		if err == sql.ErrNoRows {
			// Orphaned parent: place at root.
			parentID = ""
		} else if err != nil {
			return nil, fmt.Errorf("query parent: %w", err)
		} else if parentType != models.TypeFolder {
			return nil, &protocol.ValidationError{Field: "parent_id", Reason: "parent is not a folder"}
		} else {
			path = parentPath + "/" + name
		}
	}

	r := &models.Record{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Name:      name,
		Path:      path,
		Type:      typ,
		Extension: extension,
		Size:      int64(len(content)),
		ParentID:  parentID,
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO files (id, project_id, name, path, type, extension, size, parent_id, content)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
		 RETURNING created_at, updated_at`,
		r.ID, projectID, name, path, typ, extension, r.Size, parentID, content).
		Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, &protocol.PersistenceError{Op: "create record", ID: name, Err: err}
	}

	logging.Debug("record created",
		zap.String("file_id", r.ID),
		zap.String("path", path),
		zap.String("type", string(typ)))
	return r, nil
}

// UpdateContent replaces the content of a file record.
func (s *Store) UpdateContent(ctx context.Context, fileID, content string) (*models.Record, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("update_content", time.Since(start)) }()

	r, err := scanRecord(s.db.QueryRowContext(ctx,
		`UPDATE files SET content = $2, size = $3, updated_at = NOW()
		 WHERE id = $1 AND type = 'file'
		 RETURNING `+recordColumns, fileID, content, int64(len(content))).Scan)
	if err == sql.ErrNoRows {
		return nil, &protocol.NotFoundError{Resource: "file", ID: fileID}
	}
	if err != nil {
		return nil, &protocol.PersistenceError{Op: "update content", ID: fileID, Err: err}
	}
	return r, nil
}

// RenameRecord renames a record and rewrites the paths of all descendants.
func (s *Store) RenameRecord(ctx context.Context, fileID, newName string) (*models.Record, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("rename_record", time.Since(start)) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var oldPath string
	err = tx.QueryRowContext(ctx,
		`SELECT path FROM files WHERE id = $1`, fileID).Scan(&oldPath)
	if err == sql.ErrNoRows {
		return nil, &protocol.NotFoundError{Resource: "file", ID: fileID}
	}
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}

	newPath := filepath.Dir(oldPath)
	if newPath == "/" || newPath == "." {
		newPath = ""
	}
	newPath += "/" + newName

	r, err := scanRecord(tx.QueryRowContext(ctx,
		`UPDATE files SET name = $2, path = $3, updated_at = NOW()
		 WHERE id = $1 RETURNING `+recordColumns, fileID, newName, newPath).Scan)
	if err != nil {
		return nil, &protocol.PersistenceError{Op: "rename record", ID: fileID, Err: err}
	}

	// Rewrite descendant paths under the old prefix.
	_, err = tx.ExecContext(ctx,
		`UPDATE files SET path = $1 || substring(path from length($2) + 1), updated_at = NOW()
		 WHERE project_id = $3 AND path LIKE $2 || '/%'`,
		newPath, oldPath, r.ProjectID)
	if err != nil {
		return nil, &protocol.PersistenceError{Op: "rename descendants", ID: fileID, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &protocol.PersistenceError{Op: "rename record", ID: fileID, Err: err}
	}

	logging.Debug("record renamed",
		zap.String("file_id", fileID),
		zap.String("old_path", oldPath),
		zap.String("new_path", newPath))
	return r, nil
}

// DeleteRecord removes a record. Folders are deleted with all descendants,
// resolved by following parent IDs rather than path prefixes. Returns the
// IDs of every deleted record.
func (s *Store) DeleteRecord(ctx context.Context, fileID string) ([]string, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("delete_record", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`WITH RECURSIVE doomed AS (
		    SELECT id FROM files WHERE id = $1
		    UNION ALL
		    SELECT f.id FROM files f JOIN doomed d ON f.parent_id = d.id
		 )
		 DELETE FROM files WHERE id IN (SELECT id FROM doomed) RETURNING id`, fileID)
	if err != nil {
		return nil, &protocol.PersistenceError{Op: "delete record", ID: fileID, Err: err}
	}
	defer rows.Close()

	var deleted []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan deleted id: %w", err)
		}
		deleted = append(deleted, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	if len(deleted) == 0 {
		return nil, &protocol.NotFoundError{Resource: "file", ID: fileID}
	}

	logging.Debug("record deleted", zap.String("file_id", fileID), zap.Int("count", len(deleted)))
	return deleted, nil
}

// RecordCount returns the number of records in a project.
func (s *Store) RecordCount(ctx context.Context, projectID string) (int64, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("record_count", time.Since(start)) }()

	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files WHERE project_id = $1`, projectID).Scan(&count)
	return count, err
}

// ─── Assets ──────────────────────────────────────────────────────────────────

// SetAssetKey records the storage key of a binary asset attached to a record.
func (s *Store) SetAssetKey(ctx context.Context, fileID, assetKey string, size int64) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("set_asset_key", time.Since(start)) }()

	result, err := s.db.ExecContext(ctx,
		`UPDATE files SET asset_key = $2, size = $3, updated_at = NOW() WHERE id = $1`,
		fileID, assetKey, size)
	if err != nil {
		return &protocol.PersistenceError{Op: "set asset key", ID: fileID, Err: err}
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return &protocol.NotFoundError{Resource: "file", ID: fileID}
	}
	return nil
}

// GetAssetKey returns the storage key of a record's binary asset.
func (s *Store) GetAssetKey(ctx context.Context, fileID string) (string, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("get_asset_key", time.Since(start)) }()

	var key string
	err := s.db.QueryRowContext(ctx,
		`SELECT asset_key FROM files WHERE id = $1`, fileID).Scan(&key)
	if err == sql.ErrNoRows {
		return "", &protocol.NotFoundError{Resource: "file", ID: fileID}
	}
	if err != nil {
		return "", fmt.Errorf("query asset key: %w", err)
	}
	return key, nil
}
