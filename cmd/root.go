package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/buildingmap/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "buildingmap",
	Short: "Interactive map of OpenStreetMap buildings by amenity",
	Long:  "Fetches building footprints inside a region of interest from the Overpass API, groups them by amenity, caches the table as Parquet and serves a datashaded interactive map.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
