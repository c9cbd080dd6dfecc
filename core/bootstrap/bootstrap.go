package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/stickerbot/core/config"
	coredatabase "github.com/m3rciful/stickerbot/core/database"
	"github.com/m3rciful/stickerbot/core/logger"
	"github.com/m3rciful/stickerbot/core/session"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
	OpenSQLite func(path string) (*session.SQLiteStore, error)
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	// DB is set only for the postgres session driver.
	DB    *sqlx.DB
	Store session.Store

	closers []func() error
}

// Close releases the database handles opened by Run.
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Run initializes the logger and opens the session store selected by
// session.driver. The postgres driver also connects and applies migrations.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	res := &Result{}
	driver := opts.Config.Session.Driver
	switch driver {
	case coreconfig.SessionPostgres:
		connect := opts.Connect
		if connect == nil {
			connect = coredatabase.Connect
		}
		db, err := connect(opts.Database)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}

		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.RunMigrations
		}
		if err := migrate(opts.Database); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
		res.DB = db
		res.Store = session.NewPostgresStore(db)
		res.closers = append(res.closers, db.Close)
	case coreconfig.SessionSQLite:
		open := opts.OpenSQLite
		if open == nil {
			open = session.OpenSQLite
		}
		st, err := open(opts.Config.Session.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: session store init failed: %w", err)
		}
		res.Store = st
		res.closers = append(res.closers, st.Close)
	case coreconfig.SessionMemory, "":
		driver = coreconfig.SessionMemory
		res.Store = session.NewMemoryStore()
	default:
		return nil, fmt.Errorf("bootstrap: unknown session driver %q", driver)
	}

	logger.Info(logger.Background(), "session", "store.ready",
		slog.String("driver", driver),
	)
	return res, nil
}
