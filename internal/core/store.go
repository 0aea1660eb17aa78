package core

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO

	"github.com/michaelrsweet/pappl-sub004/internal/corelog"
)

// Store persists system and printer state to a single SQLite database file
// under the spool directory (SPEC_FULL.md "Persisted state format: SQLite
// ... one ippcore_state.db file under spooldir"), grounded on the teacher's
// server/storage/sqlite.go pure-Go-driver, WAL-mode store.
type Store struct {
	db  *sql.DB
	log *corelog.Logger
}

// OpenStore opens (creating if needed) the state database at path.
func OpenStore(path string, log *corelog.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("core: create state dir: %w", err)
		}
	}
	connStr := path + "?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON"
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("core: open state db: %w", err)
	}
	s := &Store{db: db, log: log}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS system (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		uuid TEXT NOT NULL,
		next_printer_id INTEGER NOT NULL DEFAULT 1,
		next_job_id INTEGER NOT NULL DEFAULT 1,
		next_subscription_id INTEGER NOT NULL DEFAULT 1,
		default_printer_id INTEGER NOT NULL DEFAULT 0,
		password_hash TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS printers (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		resource_path TEXT NOT NULL,
		device_uri TEXT NOT NULL,
		driver_id TEXT NOT NULL,
		is_default INTEGER NOT NULL DEFAULT 0,
		ready_media TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("core: init schema: %w", err)
	}
	return nil
}

// PrinterRecord is the persisted row for one printer (SPEC_FULL.md
// "created ... at startup from persisted state", spec.md §3 "Printer").
type PrinterRecord struct {
	ID           int
	Name         string
	ResourcePath string
	DeviceURI    string
	DriverID     string
	IsDefault    bool
	ReadyMedia   []string
}

// LoadSystem reads the singleton system row, creating it with a fresh UUID
// on first run.
func (s *Store) LoadSystem(newUUID func() string) (uuid string, nextPrinterID, nextJobID, nextSubscriptionID, defaultPrinterID int, passwordHash string, err error) {
	row := s.db.QueryRow(`SELECT uuid, next_printer_id, next_job_id, next_subscription_id, default_printer_id, password_hash FROM system WHERE id = 1`)
	err = row.Scan(&uuid, &nextPrinterID, &nextJobID, &nextSubscriptionID, &defaultPrinterID, &passwordHash)
	if err == sql.ErrNoRows {
		uuid = newUUID()
		_, err = s.db.Exec(`INSERT INTO system (id, uuid, next_printer_id, next_job_id, next_subscription_id, default_printer_id, password_hash) VALUES (1, ?, 1, 1, 1, 0, '')`, uuid)
		nextPrinterID, nextJobID, nextSubscriptionID = 1, 1, 1
		return
	}
	if err != nil {
		err = fmt.Errorf("core: load system row: %w", err)
	}
	return
}

// SaveSystemCounters persists the next-id counters and default printer,
// called after every state-changing operation (spec.md §3 "save-state
// callback invoked on any state-changing event").
func (s *Store) SaveSystemCounters(nextPrinterID, nextJobID, nextSubscriptionID, defaultPrinterID int) error {
	_, err := s.db.Exec(`UPDATE system SET next_printer_id = ?, next_job_id = ?, next_subscription_id = ?, default_printer_id = ? WHERE id = 1`,
		nextPrinterID, nextJobID, nextSubscriptionID, defaultPrinterID)
	return err
}

// SavePasswordHash persists the admin password hash.
func (s *Store) SavePasswordHash(hash string) error {
	_, err := s.db.Exec(`UPDATE system SET password_hash = ? WHERE id = 1`, hash)
	return err
}

// SavePrinter upserts one printer row.
func (s *Store) SavePrinter(p PrinterRecord) error {
	media, err := json.Marshal(p.ReadyMedia)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO printers (id, name, resource_path, device_uri, driver_id, is_default, ready_media)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, resource_path=excluded.resource_path, device_uri=excluded.device_uri,
			driver_id=excluded.driver_id, is_default=excluded.is_default, ready_media=excluded.ready_media
	`, p.ID, p.Name, p.ResourcePath, p.DeviceURI, p.DriverID, boolToInt(p.IsDefault), string(media))
	return err
}

// DeletePrinter removes a printer row (spec.md §4.D Delete-Printer).
func (s *Store) DeletePrinter(id int) error {
	_, err := s.db.Exec(`DELETE FROM printers WHERE id = ?`, id)
	return err
}

// LoadPrinters returns every persisted printer, ordered by id (spec.md §3
// "printer set (ordered by id)").
func (s *Store) LoadPrinters() ([]PrinterRecord, error) {
	rows, err := s.db.Query(`SELECT id, name, resource_path, device_uri, driver_id, is_default, ready_media FROM printers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PrinterRecord
	for rows.Next() {
		var rec PrinterRecord
		var isDefault int
		var media string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.ResourcePath, &rec.DeviceURI, &rec.DriverID, &isDefault, &media); err != nil {
			return nil, err
		}
		rec.IsDefault = isDefault != 0
		json.Unmarshal([]byte(media), &rec.ReadyMedia)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Store) Close() error { return s.db.Close() }
