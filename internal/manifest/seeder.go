package manifest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/latticehq/lattice/internal/infrastructure/logging"
	"github.com/latticehq/lattice/internal/store"
	"go.uber.org/zap"
)

const manifestSuffix = ".app.yaml"

// Seeder loads app manifests from disk into the record store.
type Seeder struct {
	apps   store.Apps
	dir    string
	logger *logging.Logger
}

// NewSeeder creates a manifest seeder.
func NewSeeder(apps store.Apps, dir string, logger *logging.Logger) *Seeder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Seeder{apps: apps, dir: dir, logger: logger}
}

// Seed walks the manifest directory and upserts every app descriptor.
// Individual bad manifests are skipped and logged; a missing directory
// is not an error.
func (s *Seeder) Seed(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Warn("manifest directory not found", zap.String("dir", s.dir))
			return nil
		}
		return err
	}

	var loaded, failed int
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), manifestSuffix) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("read manifest failed", zap.String("path", path), zap.Error(err))
			failed++
			continue
		}
		mf, err := Parse(data)
		if err != nil {
			s.logger.Warn("invalid manifest", zap.String("path", path), zap.Error(err))
			failed++
			continue
		}
		if err := s.apps.SaveApp(ctx, mf.App()); err != nil {
			s.logger.Warn("save app failed", zap.String("app_id", mf.ID), zap.Error(err))
			failed++
			continue
		}
		loaded++
	}

	s.logger.Info("manifest seeding complete",
		zap.Int("loaded", loaded), zap.Int("failed", failed))
	return nil
}
