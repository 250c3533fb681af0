package app

import (
	"io"
	"sync"
	"testing"

	"github.com/flemzord/toolgate/internal/config"
)

// syncWriter serialises writes from the session and the test goroutine.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	return cfg
}
