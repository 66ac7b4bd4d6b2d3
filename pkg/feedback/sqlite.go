package feedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/menta2k/plate-analyzer/pkg/types"
)

// SQLiteStore keeps feedback records in a SQLite database
type SQLiteStore struct {
	conn *sql.DB
}

// NewSQLiteStore opens the database at path and creates the table if needed
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{conn: conn}
	if err := s.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		image_ref TEXT,
		detected_text TEXT NOT NULL,
		corrected_text TEXT,
		confidence REAL NOT NULL,
		processing_time_ns INTEGER NOT NULL,
		metadata TEXT,
		is_correct INTEGER NOT NULL
	);
	`
	_, err := s.conn.Exec(query)
	return err
}

// Load implements Store
func (s *SQLiteStore) Load(ctx context.Context) ([]types.FeedbackRecord, error) {
	query := `
		SELECT id, created_at, image_ref, detected_text, corrected_text,
			   confidence, processing_time_ns, metadata, is_correct
		FROM feedback
		ORDER BY created_at, rowid`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var records []types.FeedbackRecord
	for rows.Next() {
		var (
			rec       types.FeedbackRecord
			imageRef  sql.NullString
			corrected sql.NullString
			metadata  sql.NullString
			procNanos int64
		)
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &imageRef, &rec.DetectedText, &corrected,
			&rec.Confidence, &procNanos, &metadata, &rec.IsCorrect); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		rec.ImageRef = imageRef.String
		rec.ProcessingTime = time.Duration(procNanos)
		if corrected.Valid {
			text := corrected.String
			rec.CorrectedText = &text
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("failed to parse metadata for %s: %w", rec.ID, err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Insert implements Store
func (s *SQLiteStore) Insert(ctx context.Context, rec types.FeedbackRecord) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO feedback (
			id, created_at, image_ref, detected_text, corrected_text,
			confidence, processing_time_ns, metadata, is_correct
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.conn.ExecContext(ctx, query,
		rec.ID,
		rec.Timestamp,
		rec.ImageRef,
		rec.DetectedText,
		nullable(rec.CorrectedText),
		rec.Confidence,
		int64(rec.ProcessingTime),
		string(metadata),
		rec.IsCorrect,
	)
	return err
}

// Update implements Store. Only the correction fields are ever rewritten.
func (s *SQLiteStore) Update(ctx context.Context, rec types.FeedbackRecord) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE feedback SET corrected_text = ?, is_correct = ? WHERE id = ?`,
		nullable(rec.CorrectedText), rec.IsCorrect, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to update feedback: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close implements Store
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
