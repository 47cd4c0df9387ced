package background

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/user/quill-go/assets"
	"github.com/user/quill-go/store"
)

// AssetLister enumerates the files in the asset directory.
type AssetLister interface {
	List(ctx context.Context) ([]assets.Info, error)
}

// Sweeper removes asset files that no user avatar and no post thumbnail references.
// These appear when the process dies between storing an upload and persisting the
// record that points at it.
type Sweeper struct {
	Lister  AssetLister
	Index   store.AssetIndex
	Remover Remover
	// MinAge protects uploads whose record is still being written.
	MinAge time.Duration
	Logger logrus.FieldLogger
	Now    func() time.Time
}

// SweepOrphans removes every unreferenced asset older than MinAge and returns how many
// were removed. Individual removal failures are logged and skipped.
func (s *Sweeper) SweepOrphans(ctx context.Context) (int, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	// List files before reading references: a file stored after the listing is not
	// considered, and a reference written after it only keeps more files alive.
	files, err := s.Lister.List(ctx)
	if err != nil {
		return 0, err
	}
	refs, err := s.Index.ReferencedAssets(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := now().Add(-s.MinAge)
	removed := 0
	for _, f := range files {
		if _, used := refs[f.Name]; used {
			continue
		}
		if f.ModTime.After(cutoff) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := s.Remover.Remove(ctx, f.Name); err != nil {
			s.Logger.WithError(err).WithField("asset", f.Name).Warn("Failed to remove orphaned asset")
			continue
		}
		s.Logger.WithField("asset", f.Name).Info("Removed orphaned asset")
		removed++
	}
	return removed, nil
}
