package bundle

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"
)

// TraceInfo summarizes the trace database shipped in a pack.
type TraceInfo struct {
	Size      int64            `json:"size" yaml:"size"`
	Integrity string           `json:"integrity" yaml:"integrity"`
	Tables    map[string]int64 `json:"tables" yaml:"tables"`
}

// TableNames returns the table names in lexical order.
func (t *TraceInfo) TableNames() []string {
	names := make([]string, 0, len(t.Tables))
	for name := range t.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InspectTrace opens a copy of the pack's trace database and reports
// its integrity and row counts. It returns nil, nil when the pack carries
// no trace.
func InspectTrace(ctx context.Context, packPath string) (*TraceInfo, error) {
	manifest, err := ReadManifest(packPath)
	if err != nil {
		return nil, err
	}
	if !manifest.HasTrace {
		return nil, nil
	}
	data, err := ReadMember(packPath, TraceMember)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "reprobox-trace-*.sqlite3")
	if err != nil {
		return nil, fmt.Errorf("create temporary trace file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("write temporary trace file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temporary trace file: %w", err)
	}

	return inspectDatabase(ctx, tmpName, int64(len(data)))
}

func inspectDatabase(ctx context.Context, path string, size int64) (*TraceInfo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open trace database: %w", err)
	}
	defer db.Close()

	info := &TraceInfo{Size: size, Tables: make(map[string]int64)}
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&info.Integrity); err != nil {
		return nil, fmt.Errorf("check trace database: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list trace tables: %w", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("list trace tables: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("list trace tables: %w", err)
	}
	rows.Close()

	for _, table := range tables {
		var count int64
		query := fmt.Sprintf("SELECT COUNT(*) FROM %q", table)
		if err := db.QueryRowContext(ctx, query).Scan(&count); err != nil {
			return nil, fmt.Errorf("count rows of %s: %w", table, err)
		}
		info.Tables[table] = count
	}
	return info, nil
}
