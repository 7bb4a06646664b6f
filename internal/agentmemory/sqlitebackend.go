package agentmemory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteBackend is a Backend that persists across restarts, grounded on the
// same WAL-mode-plus-schema-bootstrap idiom as the longer-lived agent
// memory store it supersedes. It trades InMemoryBackend's zero-I/O reads for
// durability; every method round-trips through database/sql.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (or creates) a SQLite database at dbPath and
// bootstraps the schema for all four memory categories.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS am_modifications (
		id             TEXT PRIMARY KEY,
		description    TEXT NOT NULL DEFAULT '',
		affected_files TEXT NOT NULL DEFAULT '[]',
		outcome        INTEGER NOT NULL DEFAULT 0,
		metric_deltas  TEXT NOT NULL DEFAULT '{}',
		notes          TEXT NOT NULL DEFAULT '',
		timestamp_ms   INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS am_patterns (
		id            TEXT PRIMARY KEY,
		title         TEXT NOT NULL DEFAULT '',
		content       TEXT NOT NULL DEFAULT '',
		tags          TEXT NOT NULL DEFAULT '[]',
		use_count     INTEGER NOT NULL DEFAULT 0,
		created_at_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS am_baselines (
		metric        TEXT PRIMARY KEY,
		p50           REAL NOT NULL DEFAULT 0,
		p95           REAL NOT NULL DEFAULT 0,
		p99           REAL NOT NULL DEFAULT 0,
		mean          REAL NOT NULL DEFAULT 0,
		std_dev       REAL NOT NULL DEFAULT 0,
		m2            REAL NOT NULL DEFAULT 0,
		sample_count  INTEGER NOT NULL DEFAULT 0,
		updated_at_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS am_dead_ends (
		key             TEXT PRIMARY KEY,
		description     TEXT NOT NULL DEFAULT '',
		reason          TEXT NOT NULL DEFAULT '',
		related_signals TEXT NOT NULL DEFAULT '[]',
		recorded_at_ms  INTEGER NOT NULL DEFAULT 0
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteBackend{db: db}, nil
}

// Close closes the underlying database connection.
func (b *SQLiteBackend) Close() error { return b.db.Close() }

// --- Modifications ---------------------------------------------------------

func (b *SQLiteBackend) PutModification(r ModificationRecord) {
	files, _ := json.Marshal(r.AffectedFiles)
	deltas, _ := json.Marshal(r.MetricDeltas)
	_, err := b.db.Exec(
		`INSERT OR REPLACE INTO am_modifications
		 (id, description, affected_files, outcome, metric_deltas, notes, timestamp_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Description, string(files), int(r.Outcome), string(deltas), r.Notes, r.TimestampMS,
	)
	_ = err // Backend methods never panic; a write failure simply does not persist.
}

func (b *SQLiteBackend) GetModification(id string) (ModificationRecord, bool) {
	row := b.db.QueryRow(
		`SELECT id, description, affected_files, outcome, metric_deltas, notes, timestamp_ms
		 FROM am_modifications WHERE id = ?`, id)
	r, err := scanModification(row.Scan)
	if err != nil {
		return ModificationRecord{}, false
	}
	return r, true
}

func (b *SQLiteBackend) AllModifications() []ModificationRecord {
	rows, err := b.db.Query(
		`SELECT id, description, affected_files, outcome, metric_deltas, notes, timestamp_ms
		 FROM am_modifications`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []ModificationRecord
	for rows.Next() {
		r, err := scanModification(rows.Scan)
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	return out
}

func scanModification(scan func(dest ...any) error) (ModificationRecord, error) {
	var r ModificationRecord
	var files, deltas string
	var outcome int
	if err := scan(&r.ID, &r.Description, &files, &outcome, &deltas, &r.Notes, &r.TimestampMS); err != nil {
		return ModificationRecord{}, err
	}
	r.Outcome = Outcome(outcome)
	_ = json.Unmarshal([]byte(files), &r.AffectedFiles)
	_ = json.Unmarshal([]byte(deltas), &r.MetricDeltas)
	return r, nil
}

func (b *SQLiteBackend) DeleteModification(id string) {
	b.db.Exec(`DELETE FROM am_modifications WHERE id = ?`, id)
}

func (b *SQLiteBackend) CountModifications() int {
	return b.count("am_modifications")
}

func (b *SQLiteBackend) OldestModificationID() (string, bool) {
	return b.oldestKey("id", "am_modifications", "timestamp_ms")
}

// --- Patterns ----------------------------------------------------------------

func (b *SQLiteBackend) PutPattern(p CodePattern) {
	tags := make([]string, 0, len(p.Tags))
	for t := range p.Tags {
		tags = append(tags, t)
	}
	encoded, _ := json.Marshal(tags)
	b.db.Exec(
		`INSERT OR REPLACE INTO am_patterns (id, title, content, tags, use_count, created_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Content, string(encoded), p.UseCount, p.CreatedAtMS,
	)
}

func (b *SQLiteBackend) GetPattern(id string) (CodePattern, bool) {
	row := b.db.QueryRow(
		`SELECT id, title, content, tags, use_count, created_at_ms FROM am_patterns WHERE id = ?`, id)
	p, err := scanPattern(row.Scan)
	if err != nil {
		return CodePattern{}, false
	}
	return p, true
}

func (b *SQLiteBackend) AllPatterns() []CodePattern {
	rows, err := b.db.Query(`SELECT id, title, content, tags, use_count, created_at_ms FROM am_patterns`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []CodePattern
	for rows.Next() {
		p, err := scanPattern(rows.Scan)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

func scanPattern(scan func(dest ...any) error) (CodePattern, error) {
	var p CodePattern
	var tags string
	if err := scan(&p.ID, &p.Title, &p.Content, &tags, &p.UseCount, &p.CreatedAtMS); err != nil {
		return CodePattern{}, err
	}
	var tagList []string
	_ = json.Unmarshal([]byte(tags), &tagList)
	p.Tags = make(map[string]struct{}, len(tagList))
	for _, t := range tagList {
		p.Tags[t] = struct{}{}
	}
	return p, nil
}

func (b *SQLiteBackend) DeletePattern(id string) {
	b.db.Exec(`DELETE FROM am_patterns WHERE id = ?`, id)
}

func (b *SQLiteBackend) CountPatterns() int { return b.count("am_patterns") }

func (b *SQLiteBackend) LeastUsedPatternID() (string, bool) {
	return b.oldestKey("id", "am_patterns", "use_count")
}

// --- Baselines -----------------------------------------------------------------

func (b *SQLiteBackend) PutBaseline(bl PerformanceBaseline) {
	b.db.Exec(
		`INSERT OR REPLACE INTO am_baselines
		 (metric, p50, p95, p99, mean, std_dev, m2, sample_count, updated_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bl.Metric, bl.P50, bl.P95, bl.P99, bl.Mean, bl.StdDev, bl.m2, bl.SampleCount, bl.UpdatedAtMS,
	)
}

func (b *SQLiteBackend) GetBaseline(metric string) (PerformanceBaseline, bool) {
	row := b.db.QueryRow(
		`SELECT metric, p50, p95, p99, mean, std_dev, m2, sample_count, updated_at_ms
		 FROM am_baselines WHERE metric = ?`, metric)
	bl, err := scanBaseline(row.Scan)
	if err != nil {
		return PerformanceBaseline{}, false
	}
	return bl, true
}

func (b *SQLiteBackend) AllBaselines() []PerformanceBaseline {
	rows, err := b.db.Query(
		`SELECT metric, p50, p95, p99, mean, std_dev, m2, sample_count, updated_at_ms FROM am_baselines`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []PerformanceBaseline
	for rows.Next() {
		bl, err := scanBaseline(rows.Scan)
		if err != nil {
			continue
		}
		out = append(out, bl)
	}
	return out
}

func scanBaseline(scan func(dest ...any) error) (PerformanceBaseline, error) {
	var bl PerformanceBaseline
	if err := scan(&bl.Metric, &bl.P50, &bl.P95, &bl.P99, &bl.Mean, &bl.StdDev, &bl.m2, &bl.SampleCount, &bl.UpdatedAtMS); err != nil {
		return PerformanceBaseline{}, err
	}
	return bl, nil
}

func (b *SQLiteBackend) DeleteBaseline(metric string) {
	b.db.Exec(`DELETE FROM am_baselines WHERE metric = ?`, metric)
}

func (b *SQLiteBackend) CountBaselines() int { return b.count("am_baselines") }

func (b *SQLiteBackend) OldestBaselineMetric() (string, bool) {
	return b.oldestKey("metric", "am_baselines", "updated_at_ms")
}

// --- Dead ends -------------------------------------------------------------------

func (b *SQLiteBackend) PutDeadEnd(d DeadEnd) {
	related, _ := json.Marshal(d.RelatedSignals)
	b.db.Exec(
		`INSERT OR REPLACE INTO am_dead_ends (key, description, reason, related_signals, recorded_at_ms)
		 VALUES (?, ?, ?, ?, ?)`,
		d.Key, d.Description, d.Reason, string(related), d.RecordedAtMS,
	)
}

func (b *SQLiteBackend) GetDeadEnd(key string) (DeadEnd, bool) {
	row := b.db.QueryRow(
		`SELECT key, description, reason, related_signals, recorded_at_ms FROM am_dead_ends WHERE key = ?`, key)
	d, err := scanDeadEnd(row.Scan)
	if err != nil {
		return DeadEnd{}, false
	}
	return d, true
}

func (b *SQLiteBackend) AllDeadEnds() []DeadEnd {
	rows, err := b.db.Query(`SELECT key, description, reason, related_signals, recorded_at_ms FROM am_dead_ends`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []DeadEnd
	for rows.Next() {
		d, err := scanDeadEnd(rows.Scan)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out
}

func scanDeadEnd(scan func(dest ...any) error) (DeadEnd, error) {
	var d DeadEnd
	var related string
	if err := scan(&d.Key, &d.Description, &d.Reason, &related, &d.RecordedAtMS); err != nil {
		return DeadEnd{}, err
	}
	_ = json.Unmarshal([]byte(related), &d.RelatedSignals)
	return d, nil
}

func (b *SQLiteBackend) DeleteDeadEnd(key string) {
	b.db.Exec(`DELETE FROM am_dead_ends WHERE key = ?`, key)
}

func (b *SQLiteBackend) CountDeadEnds() int { return b.count("am_dead_ends") }

func (b *SQLiteBackend) OldestDeadEndKey() (string, bool) {
	return b.oldestKey("key", "am_dead_ends", "recorded_at_ms")
}

// --- shared helpers ----------------------------------------------------------------

func (b *SQLiteBackend) count(table string) int {
	var n int
	if err := b.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n); err != nil {
		return 0
	}
	return n
}

// oldestKey returns the keyCol value of the row with the smallest orderCol,
// used uniformly for every category's eviction-candidate lookup (oldest
// timestamp, least use count, or oldest update time).
func (b *SQLiteBackend) oldestKey(keyCol, table, orderCol string) (string, bool) {
	if !isSafeIdent(keyCol) || !isSafeIdent(table) || !isSafeIdent(orderCol) {
		return "", false
	}
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY %s ASC LIMIT 1`, keyCol, table, orderCol)
	var key string
	if err := b.db.QueryRow(query).Scan(&key); err != nil {
		return "", false
	}
	return key, true
}

// isSafeIdent guards the fmt.Sprintf-built identifiers above, all of which
// come from this file's own call sites, never from user input.
func isSafeIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return !strings.ContainsAny(s, " \t\n;")
}

var _ Backend = (*SQLiteBackend)(nil)
