package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/buildingmap/internal/document"
	"github.com/sells-group/buildingmap/internal/server"
	"github.com/sells-group/buildingmap/internal/tiles"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the interactive buildings map",
	Long:  "Loads the cached buildings table (fetching it on first run), composes the map document and serves it with shaded and basemap tiles.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ds, prov, err := newLoader(cfg).Load(ctx)
		if err != nil {
			return err
		}

		layers := buildLayers(cfg, ds)
		shadedCache := tiles.NewTileCache(cfg.Shade.CacheSize, cfg.Shade.CacheTTL)
		basemapCache := tiles.NewTileCache(cfg.Basemap.CacheSize, cfg.Basemap.CacheTTL)

		doc := document.Compose(ds, layers.key, documentOptions(cfg))
		srv := server.New(server.Deps{
			Document:    doc,
			Index:       layers.index,
			Shaded:      tiles.NewShadeHandler(layers.renderer, shadedCache, cfg.Shade.MinZoom, cfg.Shade.MaxZoom),
			ShadedCache: shadedCache,
			Basemap: tiles.NewBasemapProxy(tiles.BasemapOptions{
				URLTemplate: cfg.Basemap.URL,
				Subdomains:  cfg.Basemap.Subdomains,
				UserAgent:   cfg.Overpass.UserAgent,
				RateLimit:   cfg.Basemap.RateLimit,
			}, basemapCache),
			BasemapCache:   basemapCache,
			Provenance:     prov,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		})

		zap.L().Info("document ready",
			zap.Int("buildings", len(ds.Buildings)),
			zap.Strings("categories", ds.Categories),
			zap.Int("port", cfg.Server.Port),
		)
		return srv.Run(ctx, cfg.Server.Port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
