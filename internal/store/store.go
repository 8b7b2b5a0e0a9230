// Package store holds the gorm models of a persisted package and the
// helpers shared by the importer and the renumbering service.
package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a package, tour, block or question does not
// exist.
var ErrNotFound = errors.New("not found")

// Options configures Open.
type Options struct {
	Driver        string // sqlite or postgres
	DSN           string
	Logger        *slog.Logger
	SlowThreshold time.Duration
	BusyTimeout   time.Duration // sqlite only
}

// Open connects to the database, applies the sqlite pragmas when needed and
// migrates every model.
func Open(opts Options) (*gorm.DB, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.SlowThreshold <= 0 {
		opts.SlowThreshold = 200 * time.Millisecond
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 10 * time.Second
	}

	var dialector gorm.Dialector
	switch opts.Driver {
	case "sqlite", "":
		dialector = sqlite.Open(opts.DSN)
	case "postgres":
		dialector = postgres.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger: logger.NewSlogLogger(log, logger.Config{
			SlowThreshold:             opts.SlowThreshold,
			IgnoreRecordNotFoundError: true,
			LogLevel:                  logger.Warn,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialector.Name(), err)
	}

	if dialector.Name() == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite handle: %w", err)
		}
		// One connection keeps the pragmas in effect and serializes writers.
		sqlDB.SetMaxOpenConns(1)
		for _, p := range []string{
			"PRAGMA foreign_keys = ON",
			"PRAGMA journal_mode = WAL",
			fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeout.Milliseconds()),
		} {
			if err := db.Exec(p).Error; err != nil {
				return nil, fmt.Errorf("apply %q: %w", p, err)
			}
		}
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("database ready", "driver", dialector.Name())
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IsDuplicateKey reports whether err is a unique constraint violation.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

// IsTransient reports whether err is worth retrying: a busy or locked
// sqlite database, a postgres serialization failure or a dropped
// connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"sqlite_busy",
		"database is locked",
		"database table is locked",
		"deadlock detected",
		"could not serialize access",
		"connection refused",
		"connection reset",
		"too many connections",
		"broken pipe",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// GetOrCreateAuthor returns the author named name, inserting it if needed.
func GetOrCreateAuthor(tx *gorm.DB, name string) (*Author, error) {
	return getOrCreate(tx, "name", name, func() *Author { return &Author{ID: NewID(), Name: name} })
}

// GetOrCreateTag returns the tag whose key matches, inserting name if
// needed. An existing tag keeps its stored spelling.
func GetOrCreateTag(tx *gorm.DB, name, key string) (*Tag, error) {
	return getOrCreate(tx, "name_key", key, func() *Tag { return &Tag{ID: NewID(), Name: name, NameKey: key} })
}

// getOrCreate inserts inside a savepoint so a concurrent insert of the same
// value only rolls back the savepoint; the existing row is then re-read.
func getOrCreate[T any](tx *gorm.DB, column, value string, fresh func() *T) (*T, error) {
	var row T
	err := tx.Where(column+" = ?", value).Take(&row).Error
	if err == nil {
		return &row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("select %q: %w", value, err)
	}

	created := fresh()
	err = tx.Transaction(func(sp *gorm.DB) error {
		return sp.Create(created).Error
	})
	if err == nil {
		return created, nil
	}
	if !IsDuplicateKey(err) {
		return nil, fmt.Errorf("insert %q: %w", value, err)
	}

	var existing T
	if err := tx.Where(column+" = ?", value).Take(&existing).Error; err != nil {
		return nil, fmt.Errorf("reselect %q: %w", value, err)
	}
	return &existing, nil
}

func byOrder(db *gorm.DB) *gorm.DB { return db.Order("order_index") }

// LoadPackage reads the whole graph of one package with tours, blocks and
// questions sorted by OrderIndex.
func LoadPackage(ctx context.Context, db *gorm.DB, id string) (*Package, error) {
	var pkg Package
	err := db.WithContext(ctx).
		Preload("Editors").
		Preload("Tags").
		Preload("Tours", byOrder).
		Preload("Tours.Editors").
		Preload("Tours.Blocks", byOrder).
		Preload("Tours.Blocks.Editors").
		Preload("Tours.Questions", byOrder).
		Preload("Tours.Questions.Authors").
		Take(&pkg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("package %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load package %s: %w", id, err)
	}
	return &pkg, nil
}

// SaveOrdering writes the columns the renumbering engine owns: tour
// numbers, types and positions, block positions, question numbers,
// positions and membership, and the package totals.
func SaveOrdering(tx *gorm.DB, pkg *Package) error {
	err := tx.Model(&Package{}).Where("id = ?", pkg.ID).Updates(map[string]any{
		"numbering_mode":  pkg.NumberingMode,
		"total_questions": pkg.TotalQuestions,
	}).Error
	if err != nil {
		return fmt.Errorf("save package %s: %w", pkg.ID, err)
	}
	for _, t := range pkg.Tours {
		err := tx.Model(&Tour{}).Where("id = ?", t.ID).Updates(map[string]any{
			"number":      t.Number,
			"type":        t.Type,
			"order_index": t.OrderIndex,
		}).Error
		if err != nil {
			return fmt.Errorf("save tour %s: %w", t.ID, err)
		}
		for _, b := range t.Blocks {
			if err := tx.Model(&Block{}).Where("id = ?", b.ID).Update("order_index", b.OrderIndex).Error; err != nil {
				return fmt.Errorf("save block %s: %w", b.ID, err)
			}
		}
		for _, q := range t.Questions {
			err := tx.Model(&Question{}).Where("id = ?", q.ID).Updates(map[string]any{
				"tour_id":     t.ID,
				"block_id":    q.BlockID,
				"number":      q.Number,
				"order_index": q.OrderIndex,
			}).Error
			if err != nil {
				return fmt.Errorf("save question %s: %w", q.ID, err)
			}
		}
	}
	return nil
}
