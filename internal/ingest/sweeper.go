package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/canvasd/internal/imagecache"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Referencer reports whether the live document uses an image path.
type Referencer interface {
	References(docPath string) bool
}

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	// Schedule is a cron expression or descriptor such as "@hourly".
	Schedule string
	// MaxAge is how old an unreferenced upload must be before removal.
	MaxAge time.Duration
}

// Sweeper periodically removes old uploads the document no longer uses.
type Sweeper struct {
	dir    string
	refs   Referencer
	cache  Invalidator
	mirror ObjectMirror
	cfg    SweeperConfig
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// NewSweeper validates the schedule and creates a stopped sweeper.
func NewSweeper(dir string, refs Referencer, cache Invalidator, cfg SweeperConfig, logger *slog.Logger) (*Sweeper, error) {
	if strings.TrimSpace(cfg.Schedule) == "" {
		return nil, fmt.Errorf("sweep schedule is required")
	}
	if _, err := cronParser.Parse(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule: %w", err)
	}
	if cfg.MaxAge <= 0 {
		return nil, fmt.Errorf("sweep max age must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		dir:    dir,
		refs:   refs,
		cache:  cache,
		cfg:    cfg,
		logger: logger.With("component", "ingest.sweep"),
		now:    time.Now,
	}, nil
}

func (s *Sweeper) SetMirror(m ObjectMirror) { s.mirror = m }

// Start schedules sweeps until ctx is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	c := cron.New(cron.WithParser(cronParser))
	if _, err := c.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Warn("upload sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("upload sweeper started", "schedule", s.cfg.Schedule, "max_age", s.cfg.MaxAge)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

func (s *Sweeper) removeAbandoned(entry os.DirEntry) {
	info, err := entry.Info()
	if err != nil || !info.Mode().IsRegular() || info.ModTime().After(s.now().Add(-s.cfg.MaxAge)) {
		return
	}
	if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove abandoned upload", "file", entry.Name(), "error", err)
	}
}

// Sweep removes every regular upload older than MaxAge that the document
// does not reference and returns the removed document paths. Staged uploads
// older than MaxAge are removed too but not reported.
func (s *Sweeper) Sweep(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read uploads dir: %w", err)
	}

	cutoff := s.now().Add(-s.cfg.MaxAge)
	var removed []string
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if entry.IsDir() {
			continue
		}
		// Dot files include in-flight atomic writes and staged uploads.
		// Staged uploads that outlive MaxAge were never accepted.
		if strings.HasPrefix(entry.Name(), ".") {
			if strings.HasSuffix(entry.Name(), stagedSuffix) {
				s.removeAbandoned(entry)
			}
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() || info.ModTime().After(cutoff) {
			continue
		}
		docPath := imagecache.DocPath(entry.Name())
		if s.refs != nil && s.refs.References(docPath) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			s.logger.Warn("failed to remove stale upload", "path", docPath, "error", err)
			continue
		}
		if s.cache != nil {
			s.cache.Invalidate(docPath)
		}
		if s.mirror != nil {
			if err := s.mirror.Delete(ctx, "uploads/"+entry.Name()); err != nil {
				s.logger.Warn("failed to remove mirrored upload", "path", docPath, "error", err)
			}
		}
		removed = append(removed, docPath)
	}
	if len(removed) > 0 {
		s.logger.Info("stale uploads removed", "count", len(removed))
	}
	return removed, nil
}
