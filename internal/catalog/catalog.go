package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	"media-compressor/internal/logging"
	"media-compressor/internal/mediatypes"
	"media-compressor/internal/metrics"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// goose keeps its base FS and dialect in package state.
var migrateMu sync.Mutex

const (
	// FileName is the catalog database file inside the app data dir.
	FileName = "media.db"

	pingTimeout = 5 * time.Second

	// SQLite's default host parameter limit is 999 on older builds.
	maxQueryParams = 500
)

// Catalog is a handle to the record store. It is safe for concurrent use.
type Catalog struct {
	db     *sql.DB
	dbPath string

	// writeMu serializes every mutation.
	writeMu sync.Mutex
}

// Open opens or creates the catalog at dbPath and applies pending migrations.
func Open(ctx context.Context, dbPath string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}
	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission check: %v", err)
	}

	db, err := sql.Open(driverName, dataSourceName(dbPath))
	if err != nil {
		return nil, storeErr("open", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, storeErr("ping", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)

	c := &Catalog{db: db, dbPath: dbPath}
	if err := c.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logging.Info("Catalog opened at %s", dbPath)
	return c, nil
}

func (c *Catalog) migrate(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { recordQuery("migrate", start, err) }()

	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return storeErr("migrate", fmt.Errorf("goose set dialect: %w", err))
	}
	if err := goose.UpContext(ctx, c.db, "migrations"); err != nil {
		return storeErr("migrate", fmt.Errorf("goose up: %w", err))
	}
	return nil
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Path returns the database file path.
func (c *Catalog) Path() string {
	return c.dbPath
}

// Get returns the record for an original path, or ErrNotFound.
func (c *Catalog) Get(ctx context.Context, path string) (rec *Record, err error) {
	start := time.Now()
	defer func() { recordQuery("get_record", start, err) }()

	row := c.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM media_files WHERE path = ?", path)
	rec, err = scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get", err)
	}
	return rec, nil
}

// GetByOutputRelPath returns the record that owns an output-relative path.
// The dated and unknown-date trees are distinguished by hasCaptureDate.
func (c *Catalog) GetByOutputRelPath(ctx context.Context, relPath string, hasCaptureDate bool) (rec *Record, err error) {
	start := time.Now()
	defer func() { recordQuery("get_by_output_path", start, err) }()

	cond := "capture_date IS NULL"
	if hasCaptureDate {
		cond = "capture_date IS NOT NULL"
	}
	row := c.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM media_files WHERE output_rel_path = ? AND "+cond+" LIMIT 1", relPath)
	rec, err = scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get_by_output_path", err)
	}
	return rec, nil
}

// List returns records ordered by capture date, unknown dates first, then
// by path. A nil paths slice lists every record; otherwise only records for
// the given paths are returned.
func (c *Catalog) List(ctx context.Context, paths []string) (records []*Record, err error) {
	start := time.Now()
	defer func() { recordQuery("list_records", start, err) }()

	if paths == nil {
		records, err = c.query(ctx,
			"SELECT "+recordColumns+" FROM media_files ORDER BY capture_date IS NOT NULL, capture_date, path")
		if err != nil {
			return nil, storeErr("list", err)
		}
		return records, nil
	}

	for chunk := range chunks(paths, maxQueryParams) {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, p := range chunk {
			args[i] = p
		}
		part, err := c.query(ctx,
			"SELECT "+recordColumns+" FROM media_files WHERE path IN ("+placeholders+")", args...)
		if err != nil {
			return nil, storeErr("list", err)
		}
		records = append(records, part...)
	}
	SortByCaptureDate(records)
	return records, nil
}

// ByPath returns every record keyed by original path.
func (c *Catalog) ByPath(ctx context.Context) (map[string]*Record, error) {
	records, err := c.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]*Record, len(records))
	for _, r := range records {
		byPath[r.Path] = r
	}
	return byPath, nil
}

func (c *Catalog) query(ctx context.Context, query string, args ...any) ([]*Record, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Upsert inserts or replaces the record for rec.Path. A record without a
// UUID is given one; an existing record keeps the UUID it was created with.
func (c *Catalog) Upsert(ctx context.Context, rec *Record) (err error) {
	start := time.Now()
	defer func() { recordQuery("upsert_record", start, err) }()

	if rec.UUID == "" {
		rec.UUID = uuid.NewString()
	}

	query := `
	INSERT INTO media_files (` + recordColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		parent_dir = excluded.parent_dir,
		extension = excluded.extension,
		kind = excluded.kind,
		is_raw = excluded.is_raw,
		mime_type = excluded.mime_type,
		original_size = excluded.original_size,
		creation_time = excluded.creation_time,
		modification_time = excluded.modification_time,
		original_hash = excluded.original_hash,
		converted_hash = excluded.converted_hash,
		settings_hash = excluded.settings_hash,
		index_time = excluded.index_time,
		width = excluded.width,
		height = excluded.height,
		capture_date = excluded.capture_date,
		camera_make = excluded.camera_make,
		camera_model = excluded.camera_model,
		lens_model = excluded.lens_model,
		gps_latitude = excluded.gps_latitude,
		gps_longitude = excluded.gps_longitude,
		gps_altitude = excluded.gps_altitude,
		view_rotation = excluded.view_rotation,
		image_orientation = excluded.image_orientation,
		video_duration_ms = excluded.video_duration_ms,
		video_rotation = excluded.video_rotation,
		output_rel_path = excluded.output_rel_path
	`

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err = c.db.ExecContext(ctx, query, rec.args()...); err != nil {
		return storeErr("upsert", err)
	}
	return nil
}

// Delete removes the record for path. Deleting a missing record is a no-op.
func (c *Catalog) Delete(ctx context.Context, path string) (err error) {
	start := time.Now()
	defer func() { recordQuery("delete_record", start, err) }()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err = c.db.ExecContext(ctx, "DELETE FROM media_files WHERE path = ?", path); err != nil {
		return storeErr("delete", err)
	}
	return nil
}

// SetOutputRelPath stores the allocated output path for a record. An empty
// relPath clears it.
func (c *Catalog) SetOutputRelPath(ctx context.Context, path, relPath string) (err error) {
	start := time.Now()
	defer func() { recordQuery("set_output_path", start, err) }()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	err = c.execOne(ctx, "UPDATE media_files SET output_rel_path = ? WHERE path = ?", nullString(relPath), path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return storeErr("set_output_path", err)
	}
	return err
}

// SetConversion stores the converted-content hash and the settings hash it
// was produced with.
func (c *Catalog) SetConversion(ctx context.Context, path, convertedHash, settingsHash string) (err error) {
	start := time.Now()
	defer func() { recordQuery("set_converted", start, err) }()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	err = c.execOne(ctx, "UPDATE media_files SET converted_hash = ?, settings_hash = ? WHERE path = ?",
		nullString(convertedHash), nullString(settingsHash), path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return storeErr("set_converted", err)
	}
	return err
}

func (c *Catalog) execOne(ctx context.Context, query string, args ...any) error {
	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear deletes every record and returns how many were removed.
func (c *Catalog) Clear(ctx context.Context) (n int64, err error) {
	start := time.Now()
	defer func() { recordQuery("clear_records", start, err) }()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	result, err := c.db.ExecContext(ctx, "DELETE FROM media_files")
	if err != nil {
		return 0, storeErr("clear", err)
	}
	n, err = result.RowsAffected()
	if err != nil {
		return 0, storeErr("clear", err)
	}
	return n, nil
}

// GetStats summarizes the catalog for the metrics collector.
func (c *Catalog) GetStats() (stats metrics.Stats, err error) {
	start := time.Now()
	defer func() { recordQuery("stats", start, err) }()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	err = c.db.QueryRowContext(ctx, `
	SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN capture_date IS NULL THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN converted_hash IS NOT NULL THEN 1 ELSE 0 END), 0)
	FROM media_files
	`, string(mediatypes.KindImage), string(mediatypes.KindVideo)).Scan(
		&stats.TotalRecords, &stats.TotalImages, &stats.TotalVideos, &stats.UnknownDate, &stats.Converted,
	)
	if err != nil {
		return stats, storeErr("stats", err)
	}
	return stats, nil
}

// SortByCaptureDate orders records the way List does: unknown dates first,
// then ascending capture date, then path.
func SortByCaptureDate(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].CaptureDate, records[j].CaptureDate
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		default:
			return records[i].Path < records[j].Path
		}
	})
}

func chunks(items []string, size int) func(yield func([]string) bool) {
	return func(yield func([]string) bool) {
		for len(items) > 0 {
			n := min(size, len(items))
			if !yield(items[:n]) {
				return
			}
			items = items[n:]
		}
	}
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	switch {
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// diagnoseDatabasePermissions checks that the catalog directory is writable
// and repairs read-only WAL/SHM files left behind by another user.
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	if info, err := os.Stat(dbPath); err == nil && info.Mode().Perm()&0o200 == 0 {
		logging.Warn("Database file is read-only! Mode: %v", info.Mode())
	}

	for _, suffix := range []string{"-wal", "-shm"} {
		path := dbPath + suffix
		info, err := os.Stat(path)
		if err != nil || info.Mode().Perm()&0o200 != 0 {
			continue
		}
		logging.Warn("%s is read-only (mode %v), this will cause write failures", path, info.Mode())
		if err := os.Chmod(path, 0o600); err != nil {
			logging.Error("Failed to fix %s permissions: %v", path, err)
		} else {
			logging.Info("Fixed %s permissions", path)
		}
	}
	return nil
}
