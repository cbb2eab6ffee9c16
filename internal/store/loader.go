package store

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/buildingmap/internal/model"
	"github.com/sells-group/buildingmap/internal/normalize"
	"github.com/sells-group/buildingmap/internal/osm"
	"github.com/sells-group/buildingmap/internal/roi"
)

// Fetcher acquires raw building footprints inside a WGS84 polygon.
type Fetcher interface {
	Fetch(ctx context.Context, roi orb.Polygon, filter osm.TagFilter) ([]model.Building, error)
}

// ROIFunc returns the region of interest in WGS84.
type ROIFunc func(ctx context.Context) (orb.Polygon, error)

// Loader returns the cached dataset when one exists and otherwise runs
// acquisition, normalization and persistence.
type Loader struct {
	Path     string
	Filter   osm.TagFilter
	Endpoint string
	ROI      ROIFunc
	Fetcher  Fetcher

	group singleflight.Group
	now   func() time.Time
}

// NewLoader creates a Loader writing to path.
func NewLoader(path string, filter osm.TagFilter, endpoint string, roiFn ROIFunc, f Fetcher) *Loader {
	return &Loader{
		Path:     path,
		Filter:   filter,
		Endpoint: endpoint,
		ROI:      roiFn,
		Fetcher:  f,
		now:      time.Now,
	}
}

type loadResult struct {
	ds   *model.Dataset
	prov model.Provenance
}

// Load returns the dataset at l.Path. When the file exists the fetcher is
// never called. Concurrent first loads share one acquisition.
func (l *Loader) Load(ctx context.Context) (*model.Dataset, model.Provenance, error) {
	v, err, shared := l.group.Do(l.Path, func() (any, error) {
		if _, err := os.Stat(l.Path); err == nil {
			ds, prov, err := Read(ctx, l.Path)
			if err != nil {
				return nil, err
			}
			l.checkROI(ctx, prov)
			zap.L().Info("store: cache hit",
				zap.String("path", l.Path),
				zap.Int("rows", len(ds.Buildings)),
				zap.String("run_id", prov.RunID),
			)
			return loadResult{ds: ds, prov: prov}, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, eris.Wrapf(err, "store: stat %s", l.Path)
		}

		zap.L().Info("store: cache miss, acquiring", zap.String("path", l.Path))
		ds, prov, err := l.refresh(ctx)
		if err != nil {
			return nil, err
		}
		return loadResult{ds: ds, prov: prov}, nil
	})
	if err != nil {
		return nil, model.Provenance{}, err
	}
	if shared {
		zap.L().Debug("store: load shared with concurrent caller", zap.String("path", l.Path))
	}
	res := v.(loadResult)
	return res.ds, res.prov, nil
}

// Refresh acquires a fresh dataset and replaces the cached file regardless
// of whether one exists. It never joins an in-flight Load, which may be
// returning the stale file.
func (l *Loader) Refresh(ctx context.Context) (*model.Dataset, model.Provenance, error) {
	v, err, _ := l.group.Do("refresh:"+l.Path, func() (any, error) {
		ds, prov, err := l.refresh(ctx)
		if err != nil {
			return nil, err
		}
		return loadResult{ds: ds, prov: prov}, nil
	})
	if err != nil {
		return nil, model.Provenance{}, err
	}
	res := v.(loadResult)
	return res.ds, res.prov, nil
}

func (l *Loader) refresh(ctx context.Context) (*model.Dataset, model.Provenance, error) {
	if l.ROI == nil || l.Fetcher == nil {
		return nil, model.Provenance{}, eris.New("store: loader has no acquisition source")
	}

	region, err := l.ROI(ctx)
	if err != nil {
		return nil, model.Provenance{}, eris.Wrap(err, "store: load region of interest")
	}
	hash, err := roi.Hash(region)
	if err != nil {
		return nil, model.Provenance{}, err
	}

	buildings, err := l.Fetcher.Fetch(ctx, region, l.Filter)
	if err != nil {
		return nil, model.Provenance{}, err
	}

	ds := &model.Dataset{Buildings: buildings}
	ds.Categories = normalize.Normalize(ds.Buildings)

	now := time.Now
	if l.now != nil {
		now = l.now
	}
	prov := model.Provenance{
		SchemaVersion: SchemaVersion,
		RunID:         uuid.NewString(),
		ROIHash:       hash,
		FetchedAt:     now().UTC(),
		Endpoint:      l.Endpoint,
		TagFilter:     l.Filter.String(),
	}

	if err := Write(l.Path, ds, prov); err != nil {
		return nil, model.Provenance{}, err
	}
	zap.L().Info("store: dataset written",
		zap.String("path", l.Path),
		zap.Int("rows", len(ds.Buildings)),
		zap.Strings("categories", ds.Categories),
		zap.String("run_id", prov.RunID),
	)
	return ds, prov, nil
}

// checkROI warns when the cached file was built for a different region.
// Staleness is left to the caller.
func (l *Loader) checkROI(ctx context.Context, prov model.Provenance) {
	if l.ROI == nil || prov.ROIHash == "" {
		return
	}
	region, err := l.ROI(ctx)
	if err != nil {
		zap.L().Debug("store: region unavailable for staleness check", zap.Error(err))
		return
	}
	hash, err := roi.Hash(region)
	if err != nil {
		return
	}
	if hash != prov.ROIHash {
		zap.L().Warn("store: cached dataset was built for a different region; run fetch --force to refresh",
			zap.String("path", l.Path),
			zap.String("cached_roi_hash", prov.ROIHash),
			zap.String("current_roi_hash", hash),
		)
	}
}
