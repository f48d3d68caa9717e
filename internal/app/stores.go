package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/zulandar/marquee/internal/config"
	"github.com/zulandar/marquee/internal/db"
	"github.com/zulandar/marquee/internal/ledger"
	"github.com/zulandar/marquee/internal/users"
	"gorm.io/gorm"
)

// Snapshot and lock file names inside data_dir.
const (
	UsersFile    = "users.json"
	RequestsFile = "requests.json"
	LockFile     = "mq.lock"
)

// Stores holds the persistent state: the user directory and the request
// ledger, over JSON snapshots or a SQL database.
type Stores struct {
	Users  *users.Directory
	Ledger *ledger.Ledger
	db     *gorm.DB
}

// OpenStores opens the configured storage driver and loads both stores.
// Seed users from the config are merged into the directory.
func OpenStores(cfg *config.Config) (*Stores, error) {
	var (
		ub  users.Backend
		lb  ledger.Backend
		gdb *gorm.DB
	)
	switch cfg.Storage.Driver {
	case "sqlite", "mysql":
		var err error
		gdb, err = OpenDB(cfg)
		if err != nil {
			return nil, err
		}
		if ub, err = users.NewGormBackend(gdb); err != nil {
			closeSQL(gdb)
			return nil, err
		}
		if lb, err = ledger.NewGormBackend(gdb); err != nil {
			closeSQL(gdb)
			return nil, err
		}
	default:
		var err error
		if ub, err = users.NewJSONBackend(filepath.Join(cfg.DataDir, UsersFile)); err != nil {
			return nil, err
		}
		if lb, err = ledger.NewJSONBackend(filepath.Join(cfg.DataDir, RequestsFile)); err != nil {
			return nil, err
		}
	}

	dir, err := users.New(users.Opts{Backend: ub, Seed: cfg.SeedUsers()})
	if err != nil {
		closeSQL(gdb)
		return nil, fmt.Errorf("app: open users: %w", err)
	}
	led, err := ledger.New(ledger.Opts{Backend: lb})
	if err != nil {
		closeSQL(gdb)
		return nil, fmt.Errorf("app: open ledger: %w", err)
	}
	return &Stores{Users: dir, Ledger: led, db: gdb}, nil
}

// OpenDB connects to the configured SQL database and migrates every table.
func OpenDB(cfg *config.Config) (*gorm.DB, error) {
	gdb, err := openSQL(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gdb); err != nil {
		closeSQL(gdb)
		return nil, fmt.Errorf("app: %w", err)
	}
	return gdb, nil
}

func openSQL(cfg *config.Config) (*gorm.DB, error) {
	if cfg.Storage.Driver == "sqlite" {
		gdb, err := db.OpenSQLite(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return gdb, nil
	}
	m := cfg.Storage.MySQL
	gdb, err := db.Connect(m.User, m.Host, m.Port, m.Database)
	if err != nil {
		return nil, fmt.Errorf("app: connect to %s:%d: %w", m.Host, m.Port, err)
	}
	return gdb, nil
}

func closeSQL(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Close releases the database connection, if any.
func (s *Stores) Close() error {
	if err := closeSQL(s.db); err != nil {
		return fmt.Errorf("app: close db: %w", err)
	}
	return nil
}

// Lock takes the single-instance lock in dataDir. Commands that write the
// snapshots hold it so they cannot race a running server.
func Lock(dataDir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("app: create %s: %w", dataDir, err)
	}
	path := filepath.Join(dataDir, LockFile)
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("app: lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("app: another mq instance holds %s", path)
	}
	return lock, nil
}
