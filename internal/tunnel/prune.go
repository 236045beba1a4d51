package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"safenet/pkg/logging"
)

// PruneReport lists the configs examined by Prune.
type PruneReport struct {
	Removed []string `json:"removed" yaml:"removed"`
	// Kept holds expired configs whose tunnel still has a service or whose
	// status could not be confirmed.
	Kept []string `json:"kept" yaml:"kept"`
}

// Prune deletes configs left behind by failed installs. A config is removed
// once it is older than FailedConfigRetention and the service manager confirms
// the tunnel service does not exist. A failed query keeps the file.
// Each tunnel is checked under its name lock, so Prune never races a Start.
func (s *Supervisor) Prune(ctx context.Context) (report PruneReport, err error) {
	started := time.Now()
	defer func() { s.metrics.observe(opPrune, started, err) }()

	retention := s.cfg.FailedConfigRetention
	if retention <= 0 {
		return report, nil
	}

	entries, err := os.ReadDir(s.cfg.ConfigDir)
	if errors.Is(err, fs.ErrNotExist) {
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("read config dir: %w", err)
	}

	cutoff := s.now().Add(-retention)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), configExt) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), configExt)
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		removed, kept, err := s.pruneOne(ctx, name, cutoff)
		if err != nil {
			return report, err
		}
		if removed {
			report.Removed = append(report.Removed, name)
		}
		if kept {
			report.Kept = append(report.Kept, name)
		}
	}

	if len(report.Removed) > 0 {
		s.logger.WithFields(logging.Fields{
			"removed":   report.Removed,
			"retention": retention,
		}).Info("Pruned stale tunnel configs")
	}
	return report, nil
}

func (s *Supervisor) pruneOne(ctx context.Context, name string, cutoff time.Time) (removed, kept bool, err error) {
	release, err := s.locks.acquire(ctx, name)
	if err != nil {
		return false, false, err
	}
	defer release()

	path := filepath.Join(s.cfg.ConfigDir, name+configExt)
	// A Start may have rewritten the file while we waited for the lock.
	info, err := os.Stat(path)
	if err != nil || info.ModTime().After(cutoff) {
		return false, false, nil
	}

	st, missing, err := s.queryLocked(ctx, name)
	if err != nil {
		return false, false, err
	}
	if st.State != StateAbsent || !missing {
		if st.State == StateAbsent {
			s.logger.WithField("tunnel", name).Warn("Service query inconclusive, keeping expired config")
		}
		return false, true, nil
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.WithError(err).WithField("config_path", path).Warn("Failed to prune tunnel config")
		return false, false, nil
	}
	s.metrics.incPruned()
	return true, false, nil
}

// RunPruner calls Prune every interval until ctx is done.
func (s *Supervisor) RunPruner(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.cfg.FailedConfigRetention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Prune(ctx); err != nil && ctx.Err() == nil {
				s.logger.WithError(err).Warn("Config prune failed")
			}
		}
	}
}
