package config

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Store owns the live configuration. Readers get snapshots, writers go
// through Update, and Persist requests an asynchronous write to disk.
type Store struct {
	mu       sync.RWMutex
	cfg      *Config
	filename string

	persist chan struct{}
	writeMu sync.Mutex
}

// NewStore creates a store around cfg. An empty filename keeps the
// configuration in memory only.
func NewStore(cfg *Config, filename string) *Store {
	return &Store{
		cfg:      cfg,
		filename: filename,
		persist:  make(chan struct{}, 1),
	}
}

// Config returns a snapshot of the current configuration.
func (s *Store) Config() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Update applies fn to a copy of the configuration and installs it if the
// result validates.
func (s *Store) Update(fn func(*Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.Clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	s.cfg = next
	return nil
}

// Persist signals that the configuration should be written. Pending signals
// coalesce.
func (s *Store) Persist() {
	select {
	case s.persist <- struct{}{}:
	default:
	}
}

// Flush writes the configuration synchronously.
func (s *Store) Flush() error {
	if s.filename == "" {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cfg := s.Config()
	if err := cfg.Save(s.filename); err != nil {
		return fmt.Errorf("failed to persist config: %w", err)
	}
	return nil
}

// Run services persist requests until ctx is cancelled, then flushes once more.
func (s *Store) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if err := s.Flush(); err != nil {
				log.Printf("Config flush on shutdown failed: %v", err)
			}
			return
		case <-s.persist:
			if err := s.Flush(); err != nil {
				log.Printf("Config persist failed: %v", err)
			}
		}
	}
}
