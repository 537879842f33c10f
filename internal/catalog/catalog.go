// Package catalog persists partition boundaries and index declarations in a
// SQLite database so a restart can rebuild the partition map exactly as it
// was. The catalog is the durable source of truth for which ranges exist;
// record data recovers separately from the write-ahead log.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	serrors "github.com/stayridge/stayridge/internal/errors"
	"github.com/stayridge/stayridge/internal/index"
	"github.com/stayridge/stayridge/pkg/types"
	_ "github.com/mattn/go-sqlite3"
)

// PartitionRow is one partition's catalog entry.
type PartitionRow struct {
	PartitionID string
	Bounds      types.Bounds
	RecordCount int64
	CreatedAt   time.Time
	RetiredAt   *time.Time
	ArchivePath *string
}

// Retired reports whether the partition has been retired.
func (r *PartitionRow) Retired() bool {
	return r.RetiredAt != nil
}

// IndexRow is one index declaration's catalog entry.
type IndexRow struct {
	PartitionID string
	Definition  index.Definition
	State       index.State
	CreatedAt   time.Time
}

// Catalog stores partition metadata in catalog.db.
type Catalog struct {
	db     *sql.DB // write connection, single writer
	readDB *sql.DB // read connection pool
	dbPath string
	mu     sync.Mutex // serializes writes

	insertPartitionStmt *sql.Stmt
}

// Open opens (creating if needed) the catalog database at dbPath.
func Open(dbPath string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, serrors.NewCatalogError(serrors.CodeCatalogWrite, "failed to open catalog database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		db.Close()
		return nil, serrors.NewCatalogError(serrors.CodeCatalogWrite, "failed to open catalog read pool", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	c := &Catalog{
		db:     db,
		readDB: readDB,
		dbPath: dbPath,
	}

	if err := c.initSchema(); err != nil {
		readDB.Close()
		db.Close()
		return nil, err
	}

	stmt, err := db.Prepare(`
		INSERT INTO partitions (partition_id, low, high, record_count, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		readDB.Close()
		db.Close()
		return nil, serrors.NewCatalogError(serrors.CodeCatalogWrite, "failed to prepare insert statement", err)
	}
	c.insertPartitionStmt = stmt

	return c, nil
}

func (c *Catalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return serrors.NewCatalogError(serrors.CodeCatalogWrite, "failed to initialize schema", err)
		}
	}
	return nil
}

// RegisterPartition records a newly provisioned partition.
func (c *Catalog) RegisterPartition(ctx context.Context, row *PartitionRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	createdAt := row.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := c.insertPartitionStmt.ExecContext(ctx,
		row.PartitionID, row.Bounds.Low, row.Bounds.High, row.RecordCount, createdAt.Unix())
	if err != nil {
		return serrors.NewCatalogError(serrors.CodeCatalogWrite,
			fmt.Sprintf("failed to register partition %s", row.PartitionID), err)
	}
	return nil
}

// DeletePartition removes a never-retired partition and its index rows.
// Used to unwind a provisioning that failed after the catalog write; retired
// rows are kept so their ranges stay known.
func (c *Catalog) DeletePartition(ctx context.Context, partitionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.ExecContext(ctx,
		"DELETE FROM partition_indexes WHERE partition_id = ?", partitionID); err != nil {
		return serrors.NewCatalogError(serrors.CodeCatalogWrite,
			fmt.Sprintf("failed to delete index rows for %s", partitionID), err)
	}
	if _, err := c.db.ExecContext(ctx,
		"DELETE FROM partitions WHERE partition_id = ? AND retired_at IS NULL", partitionID); err != nil {
		return serrors.NewCatalogError(serrors.CodeCatalogWrite,
			fmt.Sprintf("failed to delete partition %s", partitionID), err)
	}
	return nil
}

// ListActive returns non-retired partitions ordered by lower bound.
func (c *Catalog) ListActive(ctx context.Context) ([]*PartitionRow, error) {
	return c.listWhere(ctx, "retired_at IS NULL")
}

// ListRetired returns retired partitions ordered by lower bound.
func (c *Catalog) ListRetired(ctx context.Context) ([]*PartitionRow, error) {
	return c.listWhere(ctx, "retired_at IS NOT NULL")
}

func (c *Catalog) listWhere(ctx context.Context, where string) ([]*PartitionRow, error) {
	query := `
		SELECT partition_id, low, high, record_count, created_at, retired_at, archive_path
		FROM partitions
		WHERE ` + where + `
		ORDER BY low ASC`

	rows, err := c.readDB.QueryContext(ctx, query)
	if err != nil {
		return nil, serrors.NewCatalogError(serrors.CodeCatalogCorruption, "failed to query partitions", err)
	}
	defer rows.Close()

	var out []*PartitionRow
	for rows.Next() {
		row, err := scanPartitionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, serrors.NewCatalogError(serrors.CodeCatalogCorruption, "error iterating partitions", err)
	}
	return out, nil
}

// GetPartition retrieves a single partition by ID.
func (c *Catalog) GetPartition(ctx context.Context, partitionID string) (*PartitionRow, error) {
	row := c.readDB.QueryRowContext(ctx, `
		SELECT partition_id, low, high, record_count, created_at, retired_at, archive_path
		FROM partitions
		WHERE partition_id = ?`, partitionID)

	var (
		out           PartitionRow
		createdAtUnix int64
		retiredAtUnix sql.NullInt64
		archivePath   sql.NullString
	)
	err := row.Scan(&out.PartitionID, &out.Bounds.Low, &out.Bounds.High,
		&out.RecordCount, &createdAtUnix, &retiredAtUnix, &archivePath)
	if err == sql.ErrNoRows {
		return nil, serrors.New(serrors.ErrCategoryPartition, serrors.CodePartitionNotFound,
			fmt.Sprintf("partition %s not in catalog", partitionID))
	}
	if err != nil {
		return nil, serrors.NewCatalogError(serrors.CodeCatalogCorruption, "failed to scan partition", err)
	}
	out.CreatedAt = time.Unix(createdAtUnix, 0)
	if retiredAtUnix.Valid {
		t := time.Unix(retiredAtUnix.Int64, 0)
		out.RetiredAt = &t
	}
	if archivePath.Valid {
		out.ArchivePath = &archivePath.String
	}
	return &out, nil
}

func scanPartitionRow(rows *sql.Rows) (*PartitionRow, error) {
	var (
		out           PartitionRow
		createdAtUnix int64
		retiredAtUnix sql.NullInt64
		archivePath   sql.NullString
	)
	err := rows.Scan(&out.PartitionID, &out.Bounds.Low, &out.Bounds.High,
		&out.RecordCount, &createdAtUnix, &retiredAtUnix, &archivePath)
	if err != nil {
		return nil, serrors.NewCatalogError(serrors.CodeCatalogCorruption, "failed to scan partition", err)
	}
	out.CreatedAt = time.Unix(createdAtUnix, 0)
	if retiredAtUnix.Valid {
		t := time.Unix(retiredAtUnix.Int64, 0)
		out.RetiredAt = &t
	}
	if archivePath.Valid {
		out.ArchivePath = &archivePath.String
	}
	return &out, nil
}

// UpdateRecordCount persists the partition's current record count.
func (c *Catalog) UpdateRecordCount(ctx context.Context, partitionID string, count int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx,
		"UPDATE partitions SET record_count = ? WHERE partition_id = ?", count, partitionID)
	if err != nil {
		return serrors.NewCatalogError(serrors.CodeCatalogWrite,
			fmt.Sprintf("failed to update record count for %s", partitionID), err)
	}
	return nil
}

// MarkRetired marks a partition retired and records where its archive went.
// The row stays in the catalog so retired ranges remain known and writes to
// them can be rejected.
func (c *Catalog) MarkRetired(ctx context.Context, partitionID, archivePath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	result, err := c.db.ExecContext(ctx,
		"UPDATE partitions SET retired_at = ?, archive_path = ? WHERE partition_id = ? AND retired_at IS NULL",
		time.Now().Unix(), archivePath, partitionID)
	if err != nil {
		return serrors.NewCatalogError(serrors.CodeCatalogWrite,
			fmt.Sprintf("failed to retire partition %s", partitionID), err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return serrors.New(serrors.ErrCategoryPartition, serrors.CodePartitionNotFound,
			fmt.Sprintf("partition %s not found or already retired", partitionID))
	}
	return nil
}

// DeclareIndex records an index declaration for one partition.
func (c *Catalog) DeclareIndex(ctx context.Context, partitionID string, def index.Definition, state index.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fields, err := json.Marshal(def.Fields)
	if err != nil {
		return serrors.NewCatalogError(serrors.CodeCatalogWrite, "failed to marshal index fields", err)
	}

	auto := 0
	if def.AutoCreated {
		auto = 1
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO partition_indexes (partition_id, name, fields, state, auto_created, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		partitionID, def.Name, string(fields), string(state), auto, time.Now().Unix())
	if err != nil {
		return serrors.NewCatalogError(serrors.CodeCatalogWrite,
			fmt.Sprintf("failed to declare index %s on partition %s", def.Name, partitionID), err)
	}
	return nil
}

// SetIndexState transitions a declared index, typically pending to backfilled.
func (c *Catalog) SetIndexState(ctx context.Context, partitionID, name string, state index.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	result, err := c.db.ExecContext(ctx,
		"UPDATE partition_indexes SET state = ? WHERE partition_id = ? AND name = ?",
		string(state), partitionID, name)
	if err != nil {
		return serrors.NewCatalogError(serrors.CodeCatalogWrite,
			fmt.Sprintf("failed to update index %s state on partition %s", name, partitionID), err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return serrors.New(serrors.ErrCategoryIndex, serrors.CodeIndexNotFound,
			fmt.Sprintf("index %s not declared on partition %s", name, partitionID))
	}
	return nil
}

// DropIndex removes an index declaration from one partition.
func (c *Catalog) DropIndex(ctx context.Context, partitionID, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx,
		"DELETE FROM partition_indexes WHERE partition_id = ? AND name = ?", partitionID, name)
	if err != nil {
		return serrors.NewCatalogError(serrors.CodeCatalogWrite,
			fmt.Sprintf("failed to drop index %s on partition %s", name, partitionID), err)
	}
	return nil
}

// ListIndexes returns all index declarations for one partition, ordered by name.
func (c *Catalog) ListIndexes(ctx context.Context, partitionID string) ([]*IndexRow, error) {
	rows, err := c.readDB.QueryContext(ctx, `
		SELECT partition_id, name, fields, state, auto_created, created_at
		FROM partition_indexes
		WHERE partition_id = ?
		ORDER BY name ASC`, partitionID)
	if err != nil {
		return nil, serrors.NewCatalogError(serrors.CodeCatalogCorruption, "failed to query indexes", err)
	}
	defer rows.Close()

	return scanIndexRows(rows)
}

// ListAllIndexes returns every index declaration across partitions, ordered
// by partition then name. Used on startup to rebuild per-partition registries.
func (c *Catalog) ListAllIndexes(ctx context.Context) ([]*IndexRow, error) {
	rows, err := c.readDB.QueryContext(ctx, `
		SELECT partition_id, name, fields, state, auto_created, created_at
		FROM partition_indexes
		ORDER BY partition_id ASC, name ASC`)
	if err != nil {
		return nil, serrors.NewCatalogError(serrors.CodeCatalogCorruption, "failed to query indexes", err)
	}
	defer rows.Close()

	return scanIndexRows(rows)
}

func scanIndexRows(rows *sql.Rows) ([]*IndexRow, error) {
	var out []*IndexRow
	for rows.Next() {
		var (
			row           IndexRow
			fieldsJSON    string
			state         string
			auto          int
			createdAtUnix int64
		)
		if err := rows.Scan(&row.PartitionID, &row.Definition.Name, &fieldsJSON,
			&state, &auto, &createdAtUnix); err != nil {
			return nil, serrors.NewCatalogError(serrors.CodeCatalogCorruption, "failed to scan index row", err)
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &row.Definition.Fields); err != nil {
			return nil, serrors.NewCatalogError(serrors.CodeCatalogCorruption, "corrupt index field list", err)
		}
		row.Definition.AutoCreated = auto != 0
		row.State = index.State(state)
		row.CreatedAt = time.Unix(createdAtUnix, 0)
		out = append(out, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, serrors.NewCatalogError(serrors.CodeCatalogCorruption, "error iterating index rows", err)
	}
	return out, nil
}

// CountActive returns the number of non-retired partitions.
func (c *Catalog) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := c.readDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM partitions WHERE retired_at IS NULL").Scan(&count)
	if err != nil {
		return 0, serrors.NewCatalogError(serrors.CodeCatalogCorruption, "failed to count partitions", err)
	}
	return count, nil
}

// RunAnalyze refreshes SQLite planner statistics after bulk changes.
func (c *Catalog) RunAnalyze(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, AnalyzeSQL); err != nil {
		return serrors.NewCatalogError(serrors.CodeCatalogWrite, "failed to run ANALYZE", err)
	}
	return nil
}

// Close closes both database connections.
func (c *Catalog) Close() error {
	if c.insertPartitionStmt != nil {
		c.insertPartitionStmt.Close()
	}
	if err := c.readDB.Close(); err != nil {
		c.db.Close()
		return err
	}
	return c.db.Close()
}
