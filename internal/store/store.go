package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Sentinel errors
var (
	ErrNotFound = errors.New("not found")
)

// isBusyLock reports whether err indicates SQLite database lock (SQLITE_BUSY).
// Handles wrapped errors from database/sql.
func isBusyLock(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") || strings.Contains(s, "SQLITE_BUSY")
}

// retryOnBusy runs fn and retries on SQLITE_BUSY with exponential backoff.
func retryOnBusy(fn func() error) error {
	const maxAttempts = 4
	backoff := 25 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isBusyLock(lastErr) {
			return lastErr
		}
		if attempt < maxAttempts-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return lastErr
}

// Task statuses.
const (
	TaskPending = "pending"
	TaskSuccess = "success"
	TaskFailed  = "failed"
)

// Account is a target-site account created by provisioning.
type Account struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	WindowID  string    `json:"window_id,omitempty"`
	Slot      int       `json:"slot"`
	CreatedAt time.Time `json:"created_at"`
}

// Task is one orchestrated generation request.
type Task struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	Slot       int        `json:"slot"`
	Attempts   int        `json:"attempts"`
	Message    string     `json:"message,omitempty"`
	Request    string     `json:"request,omitempty"`
	Result     string     `json:"result,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type Store struct {
	db *sql.DB
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS accounts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	email      TEXT NOT NULL,
	password   TEXT NOT NULL DEFAULT '',
	window_id  TEXT NOT NULL DEFAULT '',
	slot       INTEGER NOT NULL DEFAULT -1,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_accounts_email ON accounts(email);

CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	slot        INTEGER NOT NULL DEFAULT -1,
	attempts    INTEGER NOT NULL DEFAULT 0,
	message     TEXT NOT NULL DEFAULT '',
	request     TEXT NOT NULL DEFAULT '',
	result      TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL,
	finished_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);
`

// DefaultMaxOpenConns is the default connection pool size for concurrent reads.
// WAL mode allows multiple readers + 1 writer; more conns improve read throughput.
const DefaultMaxOpenConns = 4

// dsnWithPragmas returns a connection string with WAL, busy_timeout, and perf
// pragmas applied to every new connection.
func dsnWithPragmas(dbPath string) string {
	// busy_timeout: 15s wait on lock (task writes + reaper prune overlap)
	// journal_mode=WAL: concurrent reads during writes
	// synchronous=NORMAL: safe in WAL
	return dbPath + "?_pragma=busy_timeout(15000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=temp_store(MEMORY)"
}

// New opens the store. maxOpenConns controls the connection pool size (0 = default 4).
// An in-memory database is limited to one connection since each connection
// would otherwise see its own empty database.
func New(dbPath string, maxOpenConns int) (*Store, error) {
	dsn := dsnWithPragmas(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = DefaultMaxOpenConns
	}
	if dbPath == ":memory:" {
		maxOpenConns = 1
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping() error {
	return s.db.Ping()
}

func (s *Store) CreateAccount(acc *Account) error {
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now().UTC()
	}
	var result sql.Result
	err := retryOnBusy(func() error {
		var e error
		result, e = s.db.Exec(
			`INSERT INTO accounts (email, password, window_id, slot, created_at) VALUES (?, ?, ?, ?, ?)`,
			acc.Email, acc.Password, acc.WindowID, acc.Slot, acc.CreatedAt.UTC(),
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("inserting account: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		acc.ID = id
	}
	return nil
}

// ListAccounts returns the most recent accounts first. limit <= 0 means all.
func (s *Store) ListAccounts(limit int) ([]*Account, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT id, email, password, window_id, slot, created_at
		 FROM accounts ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		var acc Account
		if err := rows.Scan(&acc.ID, &acc.Email, &acc.Password, &acc.WindowID, &acc.Slot, &acc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		accounts = append(accounts, &acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating accounts: %w", err)
	}
	return accounts, nil
}

func (s *Store) CreateTask(t *Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	err := retryOnBusy(func() error {
		_, e := s.db.Exec(
			`INSERT INTO tasks (id, kind, status, slot, attempts, message, request, result, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Kind, t.Status, t.Slot, t.Attempts, t.Message, t.Request, t.Result, t.CreatedAt.UTC(),
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

// FinishTask records the terminal state of a task.
func (s *Store) FinishTask(t *Task) error {
	now := time.Now().UTC()
	var result sql.Result
	err := retryOnBusy(func() error {
		var e error
		result, e = s.db.Exec(
			`UPDATE tasks SET status = ?, slot = ?, attempts = ?, message = ?, result = ?, finished_at = ? WHERE id = ?`,
			t.Status, t.Slot, t.Attempts, t.Message, t.Result, now, t.ID,
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("finishing task: %w", err)
	}
	if err := checkRowAffected(result, t.ID); err != nil {
		return err
	}
	t.FinishedAt = &now
	return nil
}

// GetTask returns the task with id, or nil if there is none.
func (s *Store) GetTask(id string) (*Task, error) {
	row := s.db.QueryRow(
		`SELECT id, kind, status, slot, attempts, message, request, result, created_at, finished_at
		 FROM tasks WHERE id = ?`, id,
	)
	return scanTask(row)
}

// ListTasks returns the most recent tasks first.
func (s *Store) ListTasks(limit int) ([]*Task, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT id, kind, status, slot, attempts, message, request, result, created_at, finished_at
		 FROM tasks ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tasks: %w", err)
	}
	return tasks, nil
}

// PruneTasks deletes tasks created before cutoff and returns how many went.
func (s *Store) PruneTasks(cutoff time.Time) (int64, error) {
	var result sql.Result
	err := retryOnBusy(func() error {
		var e error
		result, e = s.db.Exec(`DELETE FROM tasks WHERE created_at < ?`, cutoff.UTC())
		return e
	})
	if err != nil {
		return 0, fmt.Errorf("pruning tasks: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTask(row scannable) (*Task, error) {
	var t Task
	var finished sql.NullTime
	err := row.Scan(
		&t.ID, &t.Kind, &t.Status, &t.Slot, &t.Attempts, &t.Message, &t.Request, &t.Result,
		&t.CreatedAt, &finished,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning task: %w", err)
	}
	if finished.Valid {
		ft := finished.Time
		t.FinishedAt = &ft
	}
	return &t, nil
}

func checkRowAffected(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}
