package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MaintenanceConfig controls the periodic backup and cleanup loop.
type MaintenanceConfig struct {
	Interval        time.Duration
	Retention       time.Duration
	BackupDir       string
	BackupRetention time.Duration
}

// Backup writes a consistent copy of the journal into dir and returns its
// path.
func (j *Journal) Backup(ctx context.Context, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("journal_%s.db", time.Now().Format("20060102_150405.000000000"))
	path := filepath.Join(dir, name)

	j.logger.Info().Str("path", path).Msg("Performing journal backup")

	escaped := strings.ReplaceAll(path, "'", "''")
	if _, err := j.db.ExecContext(ctx, "VACUUM INTO '"+escaped+"'"); err != nil {
		return "", fmt.Errorf("backup journal: %w", err)
	}

	j.logger.Info().Msg("Backup completed successfully")
	return path, nil
}

// CleanupOldBackups removes backup files in dir modified before the cutoff
// and returns how many were deleted.
func (j *Journal) CleanupOldBackups(dir string, olderThan time.Duration) int {
	if olderThan <= 0 {
		return 0
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		j.logger.Error().Err(err).Msg("Failed to read backup directory for cleanup")
		return 0
	}

	cutoff := time.Now().Add(-olderThan)
	deleted := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), "journal_") {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			j.logger.Info().Str("file", file.Name()).Msg("Deleting old backup")
			if err := os.Remove(filepath.Join(dir, file.Name())); err == nil {
				deleted++
			}
		}
	}
	return deleted
}

// Maintain runs cleanup and backup every cfg.Interval until ctx is done.
func (j *Journal) Maintain(ctx context.Context, cfg MaintenanceConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.maintainOnce(ctx, cfg)
		}
	}
}

func (j *Journal) maintainOnce(ctx context.Context, cfg MaintenanceConfig) {
	if cfg.Retention > 0 {
		if _, err := j.Cleanup(ctx, cfg.Retention); err != nil {
			j.logger.Error().Err(err).Msg("Scheduled cleanup failed")
		}
	}
	if cfg.BackupDir == "" {
		return
	}
	if _, err := j.Backup(ctx, cfg.BackupDir); err != nil {
		j.logger.Error().Err(err).Msg("Scheduled backup failed")
		return
	}
	j.CleanupOldBackups(cfg.BackupDir, cfg.BackupRetention)
}
