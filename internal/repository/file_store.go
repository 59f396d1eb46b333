package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/abelzeko/river-alert/internal/entities"
	"github.com/rs/zerolog/log"
)

// FileStateStore keeps the state in a single JSON file
type FileStateStore struct {
	Path string
}

// NewFileStateStore creates a file-backed store. The parent directory is
// created if needed.
func NewFileStateStore(path string) (*FileStateStore, error) {
	if path == "" {
		path = "inburi_bridge_data.json"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	return &FileStateStore{Path: path}, nil
}

// Load reads the state file. A corrupt file is moved aside to <path>.corrupt
// so the next Save starts clean.
func (s *FileStateStore) Load(ctx context.Context) (*entities.StoredState, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var st entities.StoredState
	if err := decodeState(data, &st); err != nil {
		corruptErr := &StateCorruptError{Path: s.Path, Err: err}
		if renameErr := os.Rename(s.Path, s.Path+".corrupt"); renameErr != nil {
			log.Warn().Err(renameErr).Str("path", s.Path).Msg("Failed to move corrupt state file aside")
		}
		return nil, corruptErr
	}
	return &st, nil
}

// Save writes the state to a temp file in the same directory, syncs it and
// renames it over the old file.
func (s *FileStateStore) Save(ctx context.Context, st entities.StoredState) error {
	data, err := encodeState(st)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.Path), filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	log.Debug().Str("path", s.Path).Msg("State saved")
	return nil
}

// Close is a no-op for the file store
func (s *FileStateStore) Close() error { return nil }

func encodeState(st entities.StoredState) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeState(data []byte, st *entities.StoredState) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(st); err != nil {
		return err
	}
	var head struct {
		WaterLevelM *float64 `json:"water_level_m"`
	}
	if err := json.Unmarshal(data, &head); err != nil || head.WaterLevelM == nil {
		return errors.New("missing water_level_m")
	}
	if st.StationID == "" {
		return errors.New("missing station_id")
	}
	if st.ObservedAt.IsZero() {
		return errors.New("missing observed_at")
	}
	return nil
}
