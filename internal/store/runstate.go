package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

type runState struct {
	LastRun string `json:"last_run"`
}

// RunStateStore persists the timestamp of the last clean run.
type RunStateStore struct {
	path     string
	lookback time.Duration
	now      func() time.Time
}

func NewRunStateStore(path string, lookback time.Duration) *RunStateStore {
	return &RunStateStore{
		path:     path,
		lookback: lookback,
		now:      time.Now,
	}
}

// WithClock overrides the clock used for the fallback window.
func (s *RunStateStore) WithClock(now func() time.Time) *RunStateStore {
	s.now = now
	return s
}

func (s *RunStateStore) Path() string {
	return s.path
}

// Read returns the last successful run in UTC. It never fails: a missing or
// unreadable state file yields now minus the lookback.
func (s *RunStateStore) Read(ctx context.Context) time.Time {
	t, err := s.load()
	if err != nil {
		fallback := s.now().Add(-s.lookback).UTC()
		if !errors.Is(err, os.ErrNotExist) {
			slog.WarnContext(ctx, "run state unreadable, using lookback window",
				"path", s.path,
				"error", err,
				"since", fallback)
		}
		return fallback
	}
	return t.UTC()
}

// LastRun returns the persisted timestamp without falling back.
func (s *RunStateStore) LastRun() (time.Time, bool) {
	t, err := s.load()
	return t, err == nil
}

func (s *RunStateStore) load() (time.Time, error) {
	var st runState
	if err := ReadJSON(s.path, &st); err != nil {
		return time.Time{}, err
	}
	if st.LastRun == "" {
		return time.Time{}, fmt.Errorf("last_run missing")
	}
	t, err := time.Parse(time.RFC3339Nano, st.LastRun)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing last_run: %w", err)
	}
	return t, nil
}

// Write records t as the last successful run, replacing the file.
func (s *RunStateStore) Write(t time.Time) error {
	if err := WriteJSON(s.path, runState{LastRun: t.UTC().Format(time.RFC3339Nano)}, filePerms); err != nil {
		return fmt.Errorf("saving run state: %w", err)
	}
	return nil
}

// Reset removes the state file so the next run uses the lookback window.
func (s *RunStateStore) Reset() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing run state: %w", err)
	}
	return nil
}
