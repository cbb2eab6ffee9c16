package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Pre-render shaded tiles to disk",
	Long:  "Renders every shaded tile covering the cached buildings for a zoom range into {out}/{z}/{x}/{y}.png.",
	RunE:  runRender,
}

func init() {
	renderCmd.Flags().Int("min-zoom", 0, "lowest zoom level (default from config)")
	renderCmd.Flags().Int("max-zoom", 0, "highest zoom level (default from config)")
	renderCmd.Flags().String("out", "tiles", "output directory")
	renderCmd.Flags().Int("concurrency", 8, "number of tiles rendered in parallel")
	rootCmd.AddCommand(renderCmd)
}

// tileAddr is an XYZ tile address.
type tileAddr struct{ z, x, y int }

func runRender(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	minZoom, _ := cmd.Flags().GetInt("min-zoom")
	maxZoom, _ := cmd.Flags().GetInt("max-zoom")
	outDir, _ := cmd.Flags().GetString("out")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if !cmd.Flags().Changed("min-zoom") {
		minZoom = cfg.Shade.MinZoom
	}
	if !cmd.Flags().Changed("max-zoom") {
		maxZoom = cfg.Shade.MaxZoom
	}
	cfg.Shade.MinZoom, cfg.Shade.MaxZoom = minZoom, maxZoom
	if err := cfg.Validate("render"); err != nil {
		return err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	ds, _, err := newLoader(cfg).Load(ctx)
	if err != nil {
		return err
	}
	layers := buildLayers(cfg, ds)
	addrs := coveringTiles(ds.Bound(), minZoom, maxZoom)

	start := time.Now()
	zap.L().Info("rendering tiles",
		zap.Int("tiles", len(addrs)),
		zap.Int("min_zoom", minZoom), zap.Int("max_zoom", maxZoom),
		zap.String("out", outDir),
	)

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, a := range addrs {
		g.Go(func() error {
			if err := renderTile(gctx, layers, outDir, a); err != nil {
				return err
			}
			if n := done.Add(1); n%500 == 0 {
				zap.L().Info("render progress", zap.Int64("done", n), zap.Int("total", len(addrs)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("rendered %d tiles to %s in %s\n", done.Load(), outDir, since(start))
	return nil
}

func renderTile(ctx context.Context, layers mapLayers, outDir string, a tileAddr) error {
	data, err := layers.renderer.Tile(ctx, a.z, a.x, a.y)
	if err != nil {
		return err
	}
	dir := filepath.Join(outDir, fmt.Sprint(a.z), fmt.Sprint(a.x))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "render: create %s", dir)
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.png", a.y))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "render: write %s", path)
	}
	return nil
}

// coveringTiles lists every tile intersecting bound (EPSG:3857) for zooms
// minZoom..maxZoom.
func coveringTiles(bound orb.Bound, minZoom, maxZoom int) []tileAddr {
	if bound.IsZero() {
		return nil
	}
	sw := project.Mercator.ToWGS84(bound.Min)
	ne := project.Mercator.ToWGS84(bound.Max)

	var out []tileAddr
	for z := minZoom; z <= maxZoom; z++ {
		lo := maptile.At(orb.Point{sw.Lon(), ne.Lat()}, maptile.Zoom(z))
		hi := maptile.At(orb.Point{ne.Lon(), sw.Lat()}, maptile.Zoom(z))
		for x := lo.X; x <= hi.X; x++ {
			for y := lo.Y; y <= hi.Y; y++ {
				out = append(out, tileAddr{z: z, x: int(x), y: int(y)})
			}
		}
	}
	return out
}
