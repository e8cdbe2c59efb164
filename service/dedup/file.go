package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
)

// DefaultFilePath is where the file store keeps its document by default.
const DefaultFilePath = "processed_transactions.json"

// legacyTimeLayout matches last_update values written without a zone offset.
const legacyTimeLayout = "2006-01-02T15:04:05.999999999"

// fileDocument is the on-disk JSON layout. Documents written before the start
// of interest was tracked have no start_of_interest_ms key.
type fileDocument struct {
	Txns              []string `json:"txns"`
	LastUpdate        string   `json:"last_update,omitempty"`
	StartOfInterestMs *int64   `json:"start_of_interest_ms"`
}

// FileStore keeps the state in a single JSON file that is replaced atomically.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a store backed by the file at path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if path == "" {
		path = DefaultFilePath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		path:   path,
		logger: logger.With("component", "dedup", "backend", "file"),
	}
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Backend implements Store.
func (s *FileStore) Backend() string {
	return "file"
}

// Load reads the document. A missing or unreadable document yields an empty
// state and is logged, never returned as an error.
func (s *FileStore) Load(ctx context.Context) (*State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.InfoContext(ctx, "no dedup file yet, starting empty", "path", s.path)
		return &State{}, nil
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to read dedup file, starting empty", "path", s.path, "error", err)
		return &State{}, nil
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.WarnContext(ctx, "dedup file is corrupt, starting empty", "path", s.path, "error", err)
		return &State{}, nil
	}

	state := &State{IDs: make([]string, 0, len(doc.Txns))}
	for _, id := range doc.Txns {
		if id != "" {
			state.IDs = append(state.IDs, id)
		}
	}
	if doc.StartOfInterestMs != nil {
		state.StartOfInterestMs = *doc.StartOfInterestMs
	}
	if doc.LastUpdate != "" {
		state.LastUpdate = parseLastUpdate(doc.LastUpdate)
	}
	return state, nil
}

// Persist replaces the whole document atomically. Readers see either the old
// or the new document, never a partial write.
func (s *FileStore) Persist(ctx context.Context, state *State) error {
	doc := fileDocument{
		Txns:       state.IDs,
		LastUpdate: state.LastUpdate.Format(time.RFC3339Nano),
	}
	if doc.Txns == nil {
		doc.Txns = []string{}
	}
	if state.StartOfInterestMs > 0 {
		start := state.StartOfInterestMs
		doc.StartOfInterestMs = &start
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode dedup state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create dedup directory: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to replace dedup file: %w", err)
	}

	s.logger.DebugContext(ctx, "persisted dedup state", "path", s.path, "ids", len(state.IDs))
	return nil
}

// Close implements Store. The file store holds no resources.
func (s *FileStore) Close() error {
	return nil
}

func parseLastUpdate(v string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t
	}
	if t, err := time.ParseInLocation(legacyTimeLayout, v, time.Local); err == nil {
		return t
	}
	return time.Time{}
}
