// Package app wires storage, extraction and import components from a
// Config. Both the server and the CLI build on it.
package app

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/dgallion1/quizpack/internal/assets"
	"github.com/dgallion1/quizpack/internal/config"
	"github.com/dgallion1/quizpack/internal/importer"
	"github.com/dgallion1/quizpack/internal/parser"
	"github.com/dgallion1/quizpack/internal/pipeline"
	"github.com/dgallion1/quizpack/internal/renumber"
	"github.com/dgallion1/quizpack/internal/store"
)

// App holds the long-lived components.
type App struct {
	DB       *gorm.DB
	Work     *assets.Store
	Media    *assets.Store
	Parser   *pipeline.Parser
	Importer *importer.Importer
	Packages *renumber.Service
}

// New opens the database and asset folders.
func New(cfg config.Config, log *slog.Logger) (*App, error) {
	db, err := store.Open(store.Options{
		Driver: cfg.DatabaseDriver,
		DSN:    cfg.DatabaseDSN,
		Logger: log,
	})
	if err != nil {
		return nil, err
	}

	download := assets.DownloadOptions{Timeout: cfg.DownloadTimeout, MaxBytes: cfg.MaxAssetBytes}
	work, err := assets.New(cfg.AssetsDir, assets.Options{Prefix: "asset-", MaxBytes: cfg.MaxAssetBytes, Download: download})
	if err != nil {
		store.Close(db)
		return nil, fmt.Errorf("open assets dir: %w", err)
	}
	media, err := assets.New(cfg.MediaDir, assets.Options{Prefix: "media-", MaxBytes: cfg.MaxAssetBytes, Download: download})
	if err != nil {
		store.Close(db)
		return nil, fmt.Errorf("open media dir: %w", err)
	}

	return &App{
		DB:    db,
		Work:  work,
		Media: media,
		Parser: &pipeline.Parser{
			Work:    work,
			Options: parser.Options{PDFFallback: cfg.PDFFallbackPdftotext},
			Logger:  log,
		},
		Importer: &importer.Importer{
			DB:           db,
			Work:         work,
			Media:        media,
			MediaBaseURL: cfg.MediaBaseURL,
			Logger:       log,
		},
		Packages: renumber.NewService(db, log),
	}, nil
}

// Close releases idle download connections and the database.
func (a *App) Close() error {
	a.Work.Close()
	a.Media.Close()
	return store.Close(a.DB)
}
