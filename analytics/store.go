package analytics

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/labstack/gommon/log"
	_ "modernc.org/sqlite"
)

const (
	dayLayout  = "2006-01-02"
	timeLayout = "2006-01-02T15:04:05Z"
)

// Store provides database operations for analytics.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new analytics store.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open analytics db: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS reads (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			slug TEXT NOT NULL,
			ip_hash TEXT NOT NULL,
			day TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			UNIQUE(slug, ip_hash, day)
		);

		CREATE INDEX IF NOT EXISTS idx_reads_day ON reads(day);
		CREATE INDEX IF NOT EXISTS idx_reads_slug ON reads(slug);

		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	return err
}

// currentSchemaVersion is the latest schema version. Increment when adding migrations.
const currentSchemaVersion = 1

func (s *Store) migrate() error {
	verStr, err := s.GetSetting("schema_version")
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	version := 0
	if verStr != "" {
		version, err = strconv.Atoi(verStr)
		if err != nil {
			return fmt.Errorf("parse schema version %q: %w", verStr, err)
		}
	}
	if version >= currentSchemaVersion {
		return nil
	}
	return s.SetSetting("schema_version", strconv.Itoa(currentSchemaVersion))
}

// GetSetting retrieves a setting value by key. Returns empty string if not found.
func (s *Store) GetSetting(key string) (string, error) {
	var val string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return val, err
}

// SetSetting stores a setting value by key (upsert).
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// RecordRead counts a read of slug by the visitor ipHash. It reports false
// when the visitor already read the post today.
func (s *Store) RecordRead(slug, ipHash string) (bool, error) {
	now := s.now().UTC()
	res, err := s.db.Exec(`INSERT OR IGNORE INTO reads (slug, ip_hash, day, timestamp) VALUES (?, ?, ?, ?)`,
		slug, ipHash, now.Format(dayLayout), now.Format(timeLayout))
	if err != nil {
		return false, fmt.Errorf("record read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// TopPosts returns the most read posts between two days (inclusive).
func (s *Store) TopPosts(from, to string, limit int) ([]PostStat, error) {
	rows, err := s.db.Query(`SELECT slug, COUNT(*) AS n FROM reads
		WHERE day >= ? AND day <= ?
		GROUP BY slug ORDER BY n DESC, slug ASC LIMIT ?`, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("top posts: %w", err)
	}
	defer rows.Close()
	out := []PostStat{}
	for rows.Next() {
		var ps PostStat
		if err := rows.Scan(&ps.Slug, &ps.Reads); err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

// DailyReads returns read counts per day between two days (inclusive).
// Days without reads are omitted.
func (s *Store) DailyReads(from, to string) ([]DailyReads, error) {
	rows, err := s.db.Query(`SELECT day, COUNT(*) FROM reads
		WHERE day >= ? AND day <= ? GROUP BY day ORDER BY day`, from, to)
	if err != nil {
		return nil, fmt.Errorf("daily reads: %w", err)
	}
	defer rows.Close()
	var out []DailyReads
	for rows.Next() {
		var d DailyReads
		if err := rows.Scan(&d.Date, &d.Reads); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ReadsForPost returns the all-time read count of slug.
func (s *Store) ReadsForPost(slug string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM reads WHERE slug = ?`, slug).Scan(&n)
	return n, err
}

// GetStats aggregates reads for a named period ending today.
func (s *Store) GetStats(period string, topN int) (*Stats, error) {
	period, days := parsePeriod(period)
	from, to := dayRange(s.now(), days)
	top, err := s.TopPosts(from, to, topN)
	if err != nil {
		return nil, err
	}
	daily, err := s.DailyReads(from, to)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, d := range daily {
		total += d.Reads
	}
	return &Stats{
		Period:     period,
		From:       from,
		To:         to,
		TotalReads: total,
		TopPosts:   top,
		Daily:      fillDays(daily, from, to),
	}, nil
}

// CleanupOldReads removes reads older than the retention period.
func (s *Store) CleanupOldReads(retentionDays int) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays).Format(dayLayout)
	res, err := s.db.Exec(`DELETE FROM reads WHERE day < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup reads: %w", err)
	}
	return res.RowsAffected()
}

// StartCleanupScheduler runs periodic cleanup of old data. Returns a stop function.
func (s *Store) StartCleanupScheduler(retentionDays int, interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				n, err := s.CleanupOldReads(retentionDays)
				if err != nil {
					log.Errorf("analytics cleanup: %v", err)
					continue
				}
				if n > 0 {
					log.Infof("analytics cleanup: removed %d reads", n)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}
