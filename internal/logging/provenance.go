package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #region log-update
// LogUpdate writes an entry to the update_log table.
func LogUpdate(db *sql.DB, entry UpdateEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	parents := entry.Parents
	if parents == nil {
		parents = []string{}
	}
	parentsJSON, err := json.Marshal(parents)
	if err != nil {
		return fmt.Errorf("marshal parents: %w", err)
	}

	_, err = db.Exec(
		`INSERT INTO update_log (version_id, variable, parents_json, observed, learning_rate, decision, reason, shift, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.VersionID,
		entry.Variable,
		string(parentsJSON),
		entry.Observed,
		entry.LearningRate,
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.Shift,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log update: %w", err)
	}
	return nil
}

// #endregion log-update

// #region list-updates
// ListUpdates returns up to limit entries for versionID, oldest first. An
// empty versionID lists entries for every version.
func ListUpdates(db *sql.DB, versionID string, limit int) ([]UpdateEntry, error) {
	rows, err := db.Query(
		`SELECT version_id, variable, parents_json, observed, learning_rate, decision, reason, shift, created_at
		 FROM update_log
		 WHERE ? = '' OR version_id = ?
		 ORDER BY id ASC LIMIT ?`,
		versionID, versionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list updates: %w", err)
	}
	defer rows.Close()

	var out []UpdateEntry
	for rows.Next() {
		var e UpdateEntry
		var parentsJSON, createdStr string
		var reason sql.NullString
		if err := rows.Scan(&e.VersionID, &e.Variable, &parentsJSON, &e.Observed, &e.LearningRate,
			&e.Decision, &reason, &e.Shift, &createdStr); err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		if err := json.Unmarshal([]byte(parentsJSON), &e.Parents); err != nil {
			return nil, fmt.Errorf("unmarshal parents: %w", err)
		}
		e.Reason = reason.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion list-updates

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
