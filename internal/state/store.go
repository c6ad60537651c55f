package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielpatrickdp/adaptive-dbn/internal/dbn"
	"github.com/danielpatrickdp/adaptive-dbn/internal/netdef"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS network_versions (
	version_id    TEXT PRIMARY KEY,
	parent_id     TEXT,
	name          TEXT NOT NULL,
	snapshot_json TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	metrics_json  TEXT,
	FOREIGN KEY (parent_id) REFERENCES network_versions(version_id)
);

CREATE TABLE IF NOT EXISTS update_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	version_id    TEXT NOT NULL,
	variable      TEXT NOT NULL,
	parents_json  TEXT NOT NULL,
	observed      TEXT NOT NULL,
	learning_rate REAL NOT NULL,
	decision      TEXT NOT NULL,
	reason        TEXT,
	shift         REAL NOT NULL DEFAULT 0,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES network_versions(version_id)
);
CREATE INDEX IF NOT EXISTS idx_update_log_version ON update_log(version_id);

CREATE TABLE IF NOT EXISTS active_network (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES network_versions(version_id)
);
`

// #endregion schema

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region store-struct
// Store manages versioned network snapshots in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// PRAGMAs are per connection; one connection keeps foreign keys on everywhere.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an already-migrated database. Used by tests.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema on db.
func Migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// #endregion constructor

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #region create-initial
// CreateInitial stores def as a parentless version and makes it active.
func (s *Store) CreateInitial(def *netdef.Definition) (NetworkRecord, error) {
	rec := NetworkRecord{
		VersionID:  uuid.New().String(),
		Name:       def.Name,
		Definition: def,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.CommitVersion(rec); err != nil {
		return NetworkRecord{}, err
	}
	return rec, nil
}

// #endregion create-initial

// #region snapshot
// Snapshot builds an uncommitted record from the live network.
func Snapshot(n *dbn.Network, parentID string) NetworkRecord {
	return NetworkRecord{
		VersionID:  uuid.New().String(),
		ParentID:   parentID,
		Name:       n.Name,
		Definition: netdef.FromNetwork(n),
		CreatedAt:  time.Now().UTC(),
	}
}

// #endregion snapshot

// #region get-current
// GetCurrent reads the active version.
func (s *Store) GetCurrent() (NetworkRecord, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_network WHERE id = 1`).Scan(&versionID)
	if err != nil {
		return NetworkRecord{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(versionID)
}

// #endregion get-current

// #region get-version
// GetVersion retrieves a specific version by ID.
func (s *Store) GetVersion(id string) (NetworkRecord, error) {
	row := s.db.QueryRow(
		`SELECT version_id, parent_id, name, snapshot_json, created_at, metrics_json
		 FROM network_versions WHERE version_id = ?`, id,
	)
	rec, err := scanRecord(row)
	if err != nil {
		return NetworkRecord{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return rec, nil
}

// #endregion get-version

// #region commit-version
// CommitVersion inserts a new version and moves the active pointer to it
// in one transaction.
func (s *Store) CommitVersion(rec NetworkRecord) error {
	if rec.Definition == nil {
		return fmt.Errorf("commit %s: nil definition", rec.VersionID)
	}
	snapJSON, err := json.Marshal(rec.Definition)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO network_versions (version_id, parent_id, name, snapshot_json, created_at, metrics_json)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.VersionID, nullIfEmpty(rec.ParentID), rec.Name, string(snapJSON),
		rec.CreatedAt.UTC().Format(timeLayout), nullIfEmpty(rec.MetricsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_network (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		rec.VersionID,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// #endregion commit-version

// #region rollback
// Rollback sets the active pointer to a previous version.
func (s *Store) Rollback(targetVersionID string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM network_versions WHERE version_id = ?`, targetVersionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("version %s not found", targetVersionID)
	}

	_, err = s.db.Exec(`UPDATE active_network SET version_id = ? WHERE id = 1`, targetVersionID)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// #endregion rollback

// #region list-versions
// ListVersions returns the most recent versions, newest first, with the
// number of updates logged against each.
func (s *Store) ListVersions(limit int) ([]VersionSummary, error) {
	rows, err := s.db.Query(
		`SELECT v.version_id, v.parent_id, v.name, v.snapshot_json, v.created_at, v.metrics_json,
		        (SELECT COUNT(*) FROM update_log u WHERE u.version_id = v.version_id)
		 FROM network_versions v ORDER BY v.created_at DESC, v.rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []VersionSummary
	for rows.Next() {
		var vs VersionSummary
		rec, err := scanRecord(rows, &vs.Updates)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		vs.NetworkRecord = rec
		out = append(out, vs)
	}
	return out, rows.Err()
}

// #endregion list-versions

// #region helpers
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner, extra ...any) (NetworkRecord, error) {
	var rec NetworkRecord
	var parentID, metricsJSON sql.NullString
	var snapJSON, createdStr string

	dest := append([]any{&rec.VersionID, &parentID, &rec.Name, &snapJSON, &createdStr, &metricsJSON}, extra...)
	if err := sc.Scan(dest...); err != nil {
		return NetworkRecord{}, err
	}

	rec.ParentID = parentID.String
	rec.MetricsJSON = metricsJSON.String
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)

	var def netdef.Definition
	if err := json.Unmarshal([]byte(snapJSON), &def); err != nil {
		return NetworkRecord{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	rec.Definition = &def
	return rec, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
