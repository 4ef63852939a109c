package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/go-conductor/conductor/pkg/utils"
)

// Dialect is the set of SQL dialects SQLStore understands.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// driverName maps a Dialect to the database/sql driver registered for it.
// modernc.org/sqlite registers itself as "sqlite", not "sqlite3" — it is a
// pure-Go driver, chosen so the embedded default needs no cgo.
func (d Dialect) driverName() (string, error) {
	switch d {
	case DialectPostgres:
		return "postgres", nil
	case DialectMySQL:
		return "mysql", nil
	case DialectSQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", d)
	}
}

const createEntriesTableSQL = `
CREATE TABLE IF NOT EXISTS memory_entries (
    workflow_id VARCHAR(255) NOT NULL,
    agent_name  VARCHAR(255) NOT NULL,
    seq         BIGINT NOT NULL,
    kind        VARCHAR(32) NOT NULL,
    content     TEXT NOT NULL,
    created_at  TIMESTAMP NOT NULL,
    PRIMARY KEY (workflow_id, agent_name, seq)
);
CREATE INDEX IF NOT EXISTS idx_memory_entries_created_at ON memory_entries(created_at);
`

const createArtifactsTableSQL = `
CREATE TABLE IF NOT EXISTS memory_artifacts (
    workflow_id VARCHAR(255) NOT NULL,
    key         VARCHAR(255) NOT NULL,
    value       TEXT NOT NULL,
    updated_at  TIMESTAMP NOT NULL,
    PRIMARY KEY (workflow_id, key)
);
`

// SQLStore implements Store over PostgreSQL, MySQL, or SQLite via
// database/sql (through sqlx, which rebinds `?` placeholders per dialect). seq
// assignment for a (workflowId, agentName) pair is serialized through an
// in-process mutex keyed by that pair, since none of the three dialects
// offer a portable atomic "next sequence for this partition" primitive
// short of a row lock — this mirrors the teacher's own per-session
// serialization, widened from a per-session to a per-(workflow,agent) key.
type SQLStore struct {
	db      *sqlx.DB
	dialect Dialect

	seqMu    sync.Mutex
	seqLocks map[string]*sync.Mutex

	artifactMu    sync.Mutex
	artifactLocks map[string]*sync.Mutex

	tokenCounters sync.Map // model string -> *utils.TokenCounter
}

// SQLConfig configures a SQLStore connection.
type SQLConfig struct {
	Dialect         Dialect
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLStore opens a connection per cfg, verifies it with a ping, and
// ensures the schema exists.
func NewSQLStore(ctx context.Context, cfg SQLConfig) (*SQLStore, error) {
	driver, err := cfg.Dialect.driverName()
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("memory: DSN is required")
	}

	db, err := sqlx.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("memory: open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(time.Hour)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: ping database: %w", err)
	}

	s := &SQLStore{
		db:            db,
		dialect:       cfg.Dialect,
		seqLocks:      make(map[string]*sync.Mutex),
		artifactLocks: make(map[string]*sync.Mutex),
	}

	initCtx, cancel2 := context.WithTimeout(ctx, 30*time.Second)
	defer cancel2()
	if err := s.initSchema(initCtx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createEntriesTableSQL); err != nil {
		return fmt.Errorf("memory: create memory_entries table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createArtifactsTableSQL); err != nil {
		return fmt.Errorf("memory: create memory_artifacts table: %w", err)
	}
	return nil
}

func (s *SQLStore) lockFor(locks map[string]*sync.Mutex, guard *sync.Mutex, key string) *sync.Mutex {
	guard.Lock()
	defer guard.Unlock()
	m, ok := locks[key]
	if !ok {
		m = &sync.Mutex{}
		locks[key] = m
	}
	return m
}

// rebind rewrites a `?`-placeholder query for dialects that use positional
// `$1, $2, ...` placeholders. sqlx.Rebind handles this given s.db.Rebind's
// bind type, keeping one query string per statement regardless of dialect.
func (s *SQLStore) rebind(query string) string {
	return s.db.Rebind(query)
}

// Append assigns the next seq for (workflowID, agentName) and inserts the
// entry within a transaction, so a crash between seq assignment and insert
// cannot leave a gap or duplicate.
func (s *SQLStore) Append(ctx context.Context, workflowID, agentName string, kind EntryKind, content string) (uint64, error) {
	if workflowID == "" || agentName == "" {
		return 0, fmt.Errorf("memory: workflowID and agentName are required")
	}

	lock := s.lockFor(s.seqLocks, &s.seqMu, workflowID+"\x00"+agentName)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("memory: begin append tx: %w", err)
	}
	defer tx.Rollback()

	var maxSeq sql.NullInt64
	err = tx.GetContext(ctx, &maxSeq, s.rebind(
		`SELECT MAX(seq) FROM memory_entries WHERE workflow_id = ? AND agent_name = ?`),
		workflowID, agentName)
	if err != nil {
		return 0, fmt.Errorf("memory: query max seq: %w", err)
	}

	nextSeq := uint64(1)
	if maxSeq.Valid {
		nextSeq = uint64(maxSeq.Int64) + 1
	}

	_, err = tx.ExecContext(ctx, s.rebind(
		`INSERT INTO memory_entries (workflow_id, agent_name, seq, kind, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		workflowID, agentName, nextSeq, string(kind), content, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("memory: insert entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("memory: commit append: %w", err)
	}
	return nextSeq, nil
}

func (s *SQLStore) Read(ctx context.Context, workflowID, agentName string, lastN int) ([]Entry, error) {
	query := `SELECT workflow_id, agent_name, seq, kind, content, created_at
	          FROM memory_entries WHERE workflow_id = ? AND agent_name = ?
	          ORDER BY seq ASC`
	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(query), workflowID, agentName); err != nil {
		return nil, fmt.Errorf("memory: read entries: %w", err)
	}
	entries := toEntries(rows)
	if lastN > 0 && len(entries) > lastN {
		entries = entries[len(entries)-lastN:]
	}
	return entries, nil
}

func (s *SQLStore) ReadBudgeted(ctx context.Context, workflowID, agentName string, lastN, maxTokens int) ([]Entry, error) {
	entries, err := s.Read(ctx, workflowID, agentName, lastN)
	if err != nil {
		return nil, err
	}
	if maxTokens <= 0 || len(entries) == 0 {
		return entries, nil
	}
	return trimToTokenBudget(entries, maxTokens)
}

func (s *SQLStore) PutArtifact(ctx context.Context, workflowID, key, value string) error {
	if workflowID == "" || key == "" {
		return fmt.Errorf("memory: workflowID and key are required")
	}
	lock := s.lockFor(s.artifactLocks, &s.artifactMu, workflowID+"\x00"+key)
	lock.Lock()
	defer lock.Unlock()

	var upsert string
	switch s.dialect {
	case DialectPostgres:
		upsert = `INSERT INTO memory_artifacts (workflow_id, key, value, updated_at) VALUES ($1, $2, $3, $4)
		          ON CONFLICT (workflow_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	case DialectMySQL:
		upsert = `INSERT INTO memory_artifacts (workflow_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		          ON DUPLICATE KEY UPDATE value = VALUES(value), updated_at = VALUES(updated_at)`
	default: // sqlite
		upsert = `INSERT INTO memory_artifacts (workflow_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		          ON CONFLICT (workflow_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	}
	_, err := s.db.ExecContext(ctx, upsert, workflowID, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("memory: put artifact: %w", err)
	}
	return nil
}

func (s *SQLStore) GetArtifact(ctx context.Context, workflowID, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, s.rebind(
		`SELECT value FROM memory_artifacts WHERE workflow_id = ? AND key = ?`),
		workflowID, key)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("memory: get artifact: %w", err)
	}
	return value, true, nil
}

func (s *SQLStore) Snapshot(ctx context.Context, workflowID string) ([]Entry, error) {
	var rows []entryRow
	err := s.db.SelectContext(ctx, &rows, s.rebind(
		`SELECT workflow_id, agent_name, seq, kind, content, created_at
		 FROM memory_entries WHERE workflow_id = ?`),
		workflowID)
	if err != nil {
		return nil, fmt.Errorf("memory: snapshot: %w", err)
	}
	entries := toEntries(rows)
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].AgentName != entries[j].AgentName {
			return entries[i].AgentName < entries[j].AgentName
		}
		return entries[i].Seq < entries[j].Seq
	})
	return entries, nil
}

func (s *SQLStore) Expire(ctx context.Context, olderThan time.Time) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM memory_entries WHERE created_at < ?`), olderThan); err != nil {
		return fmt.Errorf("memory: expire entries: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM memory_artifacts WHERE updated_at < ?`), olderThan); err != nil {
		return fmt.Errorf("memory: expire artifacts: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type entryRow struct {
	WorkflowID string    `db:"workflow_id"`
	AgentName  string    `db:"agent_name"`
	Seq        int64     `db:"seq"`
	Kind       string    `db:"kind"`
	Content    string    `db:"content"`
	CreatedAt  time.Time `db:"created_at"`
}

func toEntries(rows []entryRow) []Entry {
	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, Entry{
			WorkflowID: r.WorkflowID,
			AgentName:  r.AgentName,
			Seq:        uint64(r.Seq),
			Kind:       EntryKind(r.Kind),
			Content:    r.Content,
			CreatedAt:  r.CreatedAt,
		})
	}
	return entries
}

// trimToTokenBudget drops entries from the oldest end until the remaining
// set's content fits within maxTokens, always keeping at least the most
// recent entry even if it alone exceeds the budget.
func trimToTokenBudget(entries []Entry, maxTokens int) ([]Entry, error) {
	counter, err := utils.NewTokenCounter("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("memory: token counter: %w", err)
	}

	kept := make([]Entry, len(entries))
	copy(kept, entries)

	total := 0
	for _, e := range kept {
		total += counter.Count(e.Content)
	}
	for total > maxTokens && len(kept) > 1 {
		total -= counter.Count(kept[0].Content)
		kept = kept[1:]
	}
	return kept, nil
}
