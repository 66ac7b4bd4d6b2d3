// Package feedback records recognition outcomes and human corrections and
// reports accuracy over them. Records are never deleted; only the
// correction of an existing record can change.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/plate-analyzer/pkg/processing"
	"github.com/menta2k/plate-analyzer/pkg/types"
)

// ErrNotFound is returned when updating an unknown record
var ErrNotFound = errors.New("feedback record not found")

// Entry is the input of Add
type Entry struct {
	ImageRef       string
	DetectedText   string
	Confidence     float64
	ProcessingTime time.Duration
	Metadata       map[string]any
	// Image, when set and archiving is enabled, is saved next to the ledger
	// and ImageRef points at the saved file.
	Image image.Image
}

// Config holds ledger options
type Config struct {
	// ArchiveDir enables saving scanned images as <ArchiveDir>/<id>.jpg
	ArchiveDir string
	Logger     *log.Logger
}

// Ledger is the in-memory index over a Store; it is the single writer
type Ledger struct {
	store     Store
	config    Config
	logger    *log.Logger
	processor *processing.Processor

	mu      sync.RWMutex
	records map[string]*types.FeedbackRecord
	order   []string
}

// NewLedger loads existing records from store
func NewLedger(store Store) (*Ledger, error) {
	return NewLedgerWithConfig(store, Config{})
}

// NewLedgerWithConfig loads existing records from store with custom options
func NewLedgerWithConfig(store Store, cfg Config) (*Ledger, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	if cfg.ArchiveDir != "" {
		if err := os.MkdirAll(cfg.ArchiveDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	existing, err := store.Load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback: %w", err)
	}

	l := &Ledger{
		store:     store,
		config:    cfg,
		logger:    logger,
		processor: processing.NewProcessor(),
		records:   make(map[string]*types.FeedbackRecord, len(existing)),
	}
	for i := range existing {
		rec := existing[i]
		l.records[rec.ID] = &rec
		l.order = append(l.order, rec.ID)
	}
	return l, nil
}

// Add creates a new record and returns its id
func (l *Ledger) Add(ctx context.Context, e Entry) (string, error) {
	rec := types.FeedbackRecord{
		ID:             uuid.New().String(),
		Timestamp:      time.Now().UTC(),
		ImageRef:       e.ImageRef,
		DetectedText:   e.DetectedText,
		Confidence:     e.Confidence,
		ProcessingTime: e.ProcessingTime,
		Metadata:       copyMetadata(e.Metadata),
		IsCorrect:      true,
	}

	if e.Image != nil && l.config.ArchiveDir != "" {
		path := filepath.Join(l.config.ArchiveDir, rec.ID+".jpg")
		if err := l.processor.SaveImage(e.Image, path, "jpg", 90, false); err != nil {
			// keep the record without its image
			l.logger.Printf("[FEEDBACK] failed to archive image for %s: %v", rec.ID, err)
		} else {
			rec.ImageRef = path
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.Insert(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to store feedback: %w", err)
	}
	l.records[rec.ID] = &rec
	l.order = append(l.order, rec.ID)
	return rec.ID, nil
}

// Update sets the corrected text of record id and recomputes IsCorrect
func (l *Ledger) Update(ctx context.Context, id, corrected string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.records[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	next := *current
	next.CorrectedText = &corrected
	next.IsCorrect = corrected == next.DetectedText

	if err := l.store.Update(ctx, next); err != nil {
		return fmt.Errorf("failed to store correction: %w", err)
	}
	*current = next
	l.logger.Printf("[FEEDBACK] %s corrected %q -> %q", id, next.DetectedText, corrected)
	return nil
}

// Get returns a copy of record id
func (l *Ledger) Get(ctx context.Context, id string) (types.FeedbackRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[id]
	if !ok {
		return types.FeedbackRecord{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return copyRecord(rec), nil
}

// Records returns copies of all records in insertion order
func (l *Ledger) Records(ctx context.Context) []types.FeedbackRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.FeedbackRecord, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, copyRecord(l.records[id]))
	}
	return out
}

// Stats computes accuracy over all records
func (l *Ledger) Stats(ctx context.Context) (types.AccuracyStats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var s types.AccuracyStats
	var confidence float64
	for _, rec := range l.records {
		s.Total++
		if rec.IsCorrect {
			s.Correct++
		}
		confidence += rec.Confidence
	}
	if s.Total > 0 {
		s.Accuracy = float64(s.Correct) / float64(s.Total)
		s.AvgConfidence = confidence / float64(s.Total)
	}
	return s, nil
}

// Close closes the underlying store
func (l *Ledger) Close() error {
	return l.store.Close()
}

// copyRecord detaches rec from the ledger's own maps and pointers
func copyRecord(rec *types.FeedbackRecord) types.FeedbackRecord {
	out := *rec
	out.Metadata = copyMetadata(rec.Metadata)
	if rec.CorrectedText != nil {
		text := *rec.CorrectedText
		out.CorrectedText = &text
	}
	return out
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
