package db

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Common errors
var (
	ErrConnectionFailed = errors.New("database connection failed")
	ErrQueryTimeout     = errors.New("query timeout")
	ErrPoolExhausted    = errors.New("connection pool exhausted")
	ErrNotFound         = errors.New("not found")
)

// Status is the lifecycle state of a stored system
type Status string

const (
	StatusPending Status = "pending"
	StatusSolved  Status = "solved"
	StatusFailed  Status = "failed"
)

// SystemRecord is a submitted constraint system and its outcome
type SystemRecord struct {
	ID          int64    `json:"id"`
	Fingerprint string   `json:"fingerprint"`
	Name        string   `json:"name"`
	Definition  string   `json:"definition"`
	Status      Status   `json:"status"`
	Error       string   `json:"error,omitempty"`
	Values      []string `json:"values,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	CreatedAt   string   `json:"created_at"`
	SolvedAt    string   `json:"solved_at,omitempty"`
}

// Solution is what gets stored once a system is solved
type Solution struct {
	Values   []string
	Labels   []string
	Warnings []string
}

// RecoveredKey represents a recovered private key
type RecoveredKey struct {
	ID         int64    `json:"id"`
	Address    string   `json:"address"`
	PrivateKey string   `json:"private_key"`
	Method     string   `json:"method"`
	NonceBits  int      `json:"nonce_bits,omitempty"`
	RValues    []string `json:"r_values"`
	CreatedAt  string   `json:"created_at"`
}

// Stats holds statistics
type Stats struct {
	TotalSystems   int  `json:"total_systems"`
	PendingSystems int  `json:"pending_systems"`
	SolvedSystems  int  `json:"solved_systems"`
	FailedSystems  int  `json:"failed_systems"`
	RecoveredKeys  int  `json:"recovered_keys"`
	Healthy        bool `json:"healthy"`
}

// HealthStatus represents database health
type HealthStatus struct {
	Connected       bool   `json:"connected"`
	LatencyMs       int64  `json:"latency_ms"`
	OpenConnections int    `json:"open_connections"`
	Error           string `json:"error,omitempty"`
}

// DB wraps database operations
type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)
	conn.SetConnMaxIdleTime(1 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return db, nil
}

func (db *DB) migrate(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, `
		-- Submitted systems, deduplicated by Keccak256 of their definition
		CREATE TABLE IF NOT EXISTS systems (
			id BIGSERIAL PRIMARY KEY,
			fingerprint BYTEA UNIQUE NOT NULL,
			name TEXT NOT NULL,
			definition JSONB NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			error TEXT,
			solution TEXT[],
			labels TEXT[],
			warnings TEXT[],
			created_at TIMESTAMPTZ DEFAULT NOW(),
			solved_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_systems_status ON systems(status);

		-- Recovered private keys
		CREATE TABLE IF NOT EXISTS recovered_keys (
			id BIGSERIAL PRIMARY KEY,
			address BYTEA UNIQUE NOT NULL,
			private_key BYTEA NOT NULL,
			method TEXT NOT NULL,
			nonce_bits INT NOT NULL DEFAULT 0,
			r_values BYTEA[] NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Health checks database connectivity
func (db *DB) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{}
	start := time.Now()
	err := db.conn.PingContext(ctx)
	status.LatencyMs = time.Since(start).Milliseconds()

	if err != nil {
		status.Error = err.Error()
		return status
	}

	status.Connected = true
	status.OpenConnections = db.conn.Stats().OpenConnections
	return status
}

func (db *DB) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "53300":
			return fmt.Errorf("%w: %v", ErrPoolExhausted, err)
		case "57014":
			return fmt.Errorf("%w: %v", ErrQueryTimeout, err)
		}
		if pqErr.Code.Class() == "08" {
			return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrQueryTimeout, err)
	}
	return err
}

// hexToBytes converts hex string (with or without 0x) to bytes
func hexToBytes(s string) []byte {
	s = strings.TrimPrefix(s, "0x")
	b, _ := hex.DecodeString(s)
	return b
}

// bytesToHex converts bytes to 0x-prefixed hex string
func bytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// SaveSystem stores a pending system. A system with the same fingerprint is
// not stored twice: its id is returned with created=false.
func (db *DB) SaveSystem(ctx context.Context, rec *SystemRecord) (int64, bool, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO systems (fingerprint, name, definition, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (fingerprint) DO NOTHING
		 RETURNING id`,
		hexToBytes(rec.Fingerprint), rec.Name, rec.Definition, StatusPending).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, db.wrapError(err)
	}

	err = db.conn.QueryRowContext(ctx,
		"SELECT id FROM systems WHERE fingerprint = $1",
		hexToBytes(rec.Fingerprint)).Scan(&id)
	return id, false, db.wrapError(err)
}

const systemColumns = `id, fingerprint, name, definition, status, COALESCE(error, ''),
	solution, labels, warnings, created_at, solved_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSystem(row rowScanner) (*SystemRecord, error) {
	var rec SystemRecord
	var fingerprint []byte
	var createdAt time.Time
	var solvedAt sql.NullTime
	err := row.Scan(&rec.ID, &fingerprint, &rec.Name, &rec.Definition, &rec.Status, &rec.Error,
		pq.Array(&rec.Values), pq.Array(&rec.Labels), pq.Array(&rec.Warnings), &createdAt, &solvedAt)
	if err != nil {
		return nil, err
	}
	rec.Fingerprint = bytesToHex(fingerprint)
	rec.CreatedAt = createdAt.Format(time.RFC3339)
	if solvedAt.Valid {
		rec.SolvedAt = solvedAt.Time.Format(time.RFC3339)
	}
	return &rec, nil
}

// GetSystem returns one system by id
func (db *DB) GetSystem(ctx context.Context, id int64) (*SystemRecord, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+systemColumns+" FROM systems WHERE id = $1", id)
	rec, err := scanSystem(row)
	if err != nil {
		return nil, db.wrapError(err)
	}
	return rec, nil
}

// ListSystems returns the most recent systems first
func (db *DB) ListSystems(ctx context.Context, limit int) ([]SystemRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+systemColumns+" FROM systems ORDER BY id DESC LIMIT $1", limit)
	if err != nil {
		return nil, db.wrapError(err)
	}
	defer rows.Close()

	systems := []SystemRecord{}
	for rows.Next() {
		rec, err := scanSystem(rows)
		if err != nil {
			continue
		}
		systems = append(systems, *rec)
	}
	return systems, db.wrapError(rows.Err())
}

// SaveSolution marks a system solved and stores its values
func (db *DB) SaveSolution(ctx context.Context, id int64, sol *Solution) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE systems SET status = $2, error = NULL, solution = $3, labels = $4, warnings = $5, solved_at = NOW()
		 WHERE id = $1`,
		id, StatusSolved, pq.Array(sol.Values), pq.Array(sol.Labels), pq.Array(sol.Warnings))
	if err != nil {
		return db.wrapError(err)
	}
	return checkAffected(res)
}

// MarkFailed records why a system could not be solved
func (db *DB) MarkFailed(ctx context.Context, id int64, reason string) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE systems SET status = $2, error = $3, solved_at = NOW() WHERE id = $1",
		id, StatusFailed, reason)
	if err != nil {
		return db.wrapError(err)
	}
	return checkAffected(res)
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveRecoveredKey saves a recovered private key
func (db *DB) SaveRecoveredKey(ctx context.Context, key *RecoveredKey) (int64, error) {
	var rValuesBytes [][]byte
	for _, r := range key.RValues {
		rValuesBytes = append(rValuesBytes, hexToBytes(r))
	}

	var id int64
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO recovered_keys (address, private_key, method, nonce_bits, r_values)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (address) DO UPDATE SET
		   private_key = $2, method = $3, nonce_bits = $4, r_values = $5
		 RETURNING id`,
		hexToBytes(key.Address), hexToBytes(key.PrivateKey), key.Method, key.NonceBits,
		pq.Array(rValuesBytes)).Scan(&id)
	return id, db.wrapError(err)
}

// GetRecoveredKeys returns all recovered private keys
func (db *DB) GetRecoveredKeys(ctx context.Context) ([]RecoveredKey, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, address, private_key, method, nonce_bits, r_values, created_at
		 FROM recovered_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, db.wrapError(err)
	}
	defer rows.Close()

	keys := []RecoveredKey{}
	for rows.Next() {
		var key RecoveredKey
		var addr, privKey []byte
		var rValues [][]byte
		var createdAt time.Time

		if err := rows.Scan(&key.ID, &addr, &privKey, &key.Method, &key.NonceBits,
			pq.Array(&rValues), &createdAt); err != nil {
			continue
		}

		key.Address = bytesToHex(addr)
		key.PrivateKey = bytesToHex(privKey)
		for _, r := range rValues {
			key.RValues = append(key.RValues, bytesToHex(r))
		}
		key.CreatedAt = createdAt.Format(time.RFC3339)
		keys = append(keys, key)
	}

	return keys, nil
}

// GetStats returns database statistics
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Healthy: true}

	health := db.Health(ctx)
	if !health.Connected {
		stats.Healthy = false
		return stats, nil
	}

	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'solved'),
		       COUNT(*) FILTER (WHERE status = 'failed')
		FROM systems`).Scan(&stats.TotalSystems, &stats.PendingSystems, &stats.SolvedSystems, &stats.FailedSystems)
	if err != nil {
		return nil, db.wrapError(err)
	}
	db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM recovered_keys").Scan(&stats.RecoveredKeys)

	return stats, nil
}
