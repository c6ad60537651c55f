package state

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/adaptive-dbn/internal/dbn"
	"github.com/danielpatrickdp/adaptive-dbn/internal/netdef"
	_ "modernc.org/sqlite"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateInitialAndGetCurrent(t *testing.T) {
	s := tempDB(t)

	rec, err := s.CreateInitial(netdef.StockExample())
	if err != nil {
		t.Fatalf("CreateInitial: %v", err)
	}
	if rec.VersionID == "" {
		t.Fatal("expected non-empty version ID")
	}
	if rec.ParentID != "" {
		t.Fatalf("expected empty parent, got %s", rec.ParentID)
	}

	cur, err := s.GetCurrent()
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if cur.VersionID != rec.VersionID {
		t.Fatalf("expected %s, got %s", rec.VersionID, cur.VersionID)
	}
	if cur.Name != "Stock-DBN" {
		t.Fatalf("expected name Stock-DBN, got %q", cur.Name)
	}

	n, err := cur.Network()
	if err != nil {
		t.Fatalf("Network: %v", err)
	}
	d, err := n.Infer("MarketSentiment", 0, nil)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if d.Prob("Bullish") != 0.6 {
		t.Fatalf("expected restored prior, got %+v", d)
	}
}

func TestSnapshotCommitAndRollback(t *testing.T) {
	s := tempDB(t)

	v1, err := s.CreateInitial(netdef.StockExample())
	if err != nil {
		t.Fatalf("CreateInitial: %v", err)
	}

	n, _ := v1.Network()
	if err := n.Update("MarketSentiment", dbn.Tuple{}, "Bearish", 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	v2 := Snapshot(n, v1.VersionID)
	v2.MetricsJSON = `{"updates":1}`
	if err := s.CommitVersion(v2); err != nil {
		t.Fatalf("CommitVersion: %v", err)
	}

	cur, _ := s.GetCurrent()
	if cur.VersionID != v2.VersionID || cur.ParentID != v1.VersionID {
		t.Fatalf("unexpected current: %s (parent %s)", cur.VersionID, cur.ParentID)
	}
	if cur.MetricsJSON != `{"updates":1}` {
		t.Errorf("expected metrics JSON, got %q", cur.MetricsJSON)
	}
	restored, _ := cur.Network()
	d, _ := restored.Infer("MarketSentiment", 0, nil)
	if d.Prob("Bearish") != 1 {
		t.Fatalf("expected learned prior in snapshot, got %+v", d)
	}

	if err := s.Rollback(v1.VersionID); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	cur, _ = s.GetCurrent()
	if cur.VersionID != v1.VersionID {
		t.Fatalf("expected %s after rollback, got %s", v1.VersionID, cur.VersionID)
	}
}

func TestRollbackNonExistent(t *testing.T) {
	s := tempDB(t)
	s.CreateInitial(netdef.StockExample())

	if err := s.Rollback("nonexistent-id"); err == nil {
		t.Fatal("expected error for non-existent version")
	}
}

func TestCommitVersionRequiresDefinition(t *testing.T) {
	s := tempDB(t)
	if err := s.CommitVersion(NetworkRecord{VersionID: "x"}); err == nil {
		t.Fatal("expected error for nil definition")
	}
}

func TestCommitVersionUnknownParent(t *testing.T) {
	s := tempDB(t)
	rec := NetworkRecord{
		VersionID:  "orphan",
		ParentID:   "missing",
		Name:       "n",
		Definition: netdef.StockExample(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.CommitVersion(rec); err == nil {
		t.Fatal("expected foreign key failure for unknown parent")
	}
}

func TestListVersionsNewestFirst(t *testing.T) {
	s := tempDB(t)
	v1, _ := s.CreateInitial(netdef.StockExample())

	base := v1.CreatedAt
	parent := v1.VersionID
	for i := 1; i <= 3; i++ {
		n, _ := v1.Network()
		rec := Snapshot(n, parent)
		rec.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := s.CommitVersion(rec); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
		parent = rec.VersionID
	}

	versions, err := s.ListVersions(2)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
	if versions[0].VersionID != parent {
		t.Fatalf("expected newest %s first, got %s", parent, versions[0].VersionID)
	}
	if !versions[0].CreatedAt.After(versions[1].CreatedAt) {
		t.Fatalf("expected descending order: %v then %v", versions[0].CreatedAt, versions[1].CreatedAt)
	}
	if versions[0].Updates != 0 {
		t.Errorf("expected no logged updates, got %d", versions[0].Updates)
	}
}

func TestGetVersionNotFound(t *testing.T) {
	s := tempDB(t)
	if _, err := s.GetVersion("nope"); err == nil {
		t.Fatal("expected error for missing version")
	}
}

func TestGetCurrentNoActive(t *testing.T) {
	s := tempDB(t)
	if _, err := s.GetCurrent(); err == nil {
		t.Fatal("expected error with no active version")
	}
}

func TestDBAccessor(t *testing.T) {
	s := tempDB(t)
	if s.DB() == nil {
		t.Fatal("expected non-nil DB")
	}
}

// corruptDB opens an in-memory SQLite with full schema via NewStoreWithDB.
// Returns the Store and raw *sql.DB so tests can drop tables / insert bad data.
func corruptDB(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := Migrate(db); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStoreWithDB(db), db
}

func TestCreateInitial_InsertFails(t *testing.T) {
	s, db := corruptDB(t)
	db.Exec("DROP TABLE update_log")
	db.Exec("DROP TABLE active_network")
	db.Exec("DROP TABLE network_versions")

	if _, err := s.CreateInitial(netdef.StockExample()); err == nil {
		t.Fatal("expected error when network_versions table is missing")
	}
}

func TestCreateInitial_SetActiveFails(t *testing.T) {
	s, db := corruptDB(t)
	db.Exec("DROP TABLE active_network")

	if _, err := s.CreateInitial(netdef.StockExample()); err == nil {
		t.Fatal("expected error when active_network table is missing")
	}
}

func TestGetVersion_BadSnapshotJSON(t *testing.T) {
	s, db := corruptDB(t)
	_, err := db.Exec(
		`INSERT INTO network_versions (version_id, parent_id, name, snapshot_json, created_at)
		 VALUES (?, NULL, ?, ?, ?)`, "bad", "n", "%%%bad-json", time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := s.GetVersion("bad"); err == nil {
		t.Fatal("expected unmarshal error for bad snapshot JSON")
	}
	if _, err := s.ListVersions(10); err == nil {
		t.Fatal("expected unmarshal error for bad snapshot JSON in ListVersions")
	}
}

func TestOperationsOnClosedDB(t *testing.T) {
	s := tempDB(t)
	s.Close()

	if _, err := s.CreateInitial(netdef.StockExample()); err == nil {
		t.Error("CreateInitial: expected error on closed DB")
	}
	if _, err := s.GetCurrent(); err == nil {
		t.Error("GetCurrent: expected error on closed DB")
	}
	if err := s.Rollback("x"); err == nil {
		t.Error("Rollback: expected error on closed DB")
	}
	if _, err := s.ListVersions(5); err == nil {
		t.Error("ListVersions: expected error on closed DB")
	}
}

func TestNewStore_CorruptDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "corrupt.db")
	os.WriteFile(dbPath, []byte("not a sqlite database"), 0644)

	if _, err := NewStore(dbPath); err == nil {
		t.Fatal("expected error for corrupted DB file")
	}
}
