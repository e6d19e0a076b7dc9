package serviceenv

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/vizierdb/vizier/src/internal/backend"
	"github.com/vizierdb/vizier/src/internal/engine"
	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/log"
	"github.com/vizierdb/vizier/src/internal/obj"
	"github.com/vizierdb/vizier/src/internal/packages"
	"github.com/vizierdb/vizier/src/internal/pctx"
	"github.com/vizierdb/vizier/src/internal/processor/builtin"
	"github.com/vizierdb/vizier/src/internal/project"
	"github.com/vizierdb/vizier/src/internal/vizierdb"
	"github.com/vizierdb/vizier/src/internal/vizierobj"
	"github.com/vizierdb/vizier/src/internal/viztrail"
	"go.uber.org/zap"
)

// viztrailPrefix is where the object store keeps viztrails in the storage bucket.
const viztrailPrefix = "meta/"

// ServiceEnv is the set of clients and components a vizier process runs with.
type ServiceEnv interface {
	Config() *Configuration
	Context() context.Context
	GetBucket() *obj.Bucket
	// GetDBClient returns the postgres client, or nil with the object store.
	GetDBClient() *sqlx.DB
	Engine() *engine.Engine
	Close() error
}

// NonblockingServiceEnv is the ServiceEnv of a running process.
type NonblockingServiceEnv struct {
	config *Configuration
	ctx    context.Context
	cancel context.CancelFunc
	bucket *obj.Bucket
	db     *sqlx.DB
	engine *engine.Engine
}

var _ ServiceEnv = (*NonblockingServiceEnv)(nil)

// InitServiceEnv opens storage, loads every project and starts the engine described by config.
func InitServiceEnv(ctx context.Context, config *Configuration) (_ *NonblockingServiceEnv, retErr error) {
	ctx, cancel := pctx.WithCancel(pctx.Child(ctx, "serviceenv"))
	env := &NonblockingServiceEnv{config: config, ctx: ctx, cancel: cancel}
	defer func() {
		if retErr != nil {
			env.Close() //nolint:errcheck
		}
	}()
	var err error
	if env.bucket, err = obj.NewBucket(ctx, config.StorageURL); err != nil {
		return nil, errors.Wrapf(err, "open storage %s", config.StorageURL)
	}
	var store viztrail.Store
	switch config.Store {
	case StorePostgres:
		if env.db, err = vizierdb.Open(ctx, config.PostgresDSN); err != nil {
			return nil, err
		}
		env.db.SetMaxOpenConns(config.PostgresMaxOpenConns)
		store = vizierdb.New(env.db)
	default:
		store = vizierobj.New(env.bucket, viztrailPrefix)
	}
	projects, err := project.Open(ctx, store, env.bucket, project.Options{DatasetCacheSize: config.DatasetCacheSize})
	if err != nil {
		store.Close() //nolint:errcheck
		return nil, err
	}
	index := packages.Builtin()
	if config.PackagesFile != "" {
		if err := index.LoadFile(config.PackagesFile); err != nil {
			projects.Close() //nolint:errcheck
			return nil, err
		}
	}
	processors := builtin.Registry()
	be := backend.NewComposite(
		backend.NewSynchronous(processors, backend.Whitelist(config.SyncWhitelist())),
		backend.NewPool(ctx, processors, config.Workers, nil),
	)
	env.engine = engine.New(ctx, projects, index, processors, be)
	log.Info(ctx, "service environment ready",
		zap.String("store", config.Store),
		zap.Int("workers", config.Workers),
		zap.Strings("syncCommands", config.SyncCommands))
	return env, nil
}

// Config implements ServiceEnv.
func (env *NonblockingServiceEnv) Config() *Configuration { return env.config }

// Context implements ServiceEnv.
func (env *NonblockingServiceEnv) Context() context.Context { return env.ctx }

// GetBucket implements ServiceEnv.
func (env *NonblockingServiceEnv) GetBucket() *obj.Bucket { return env.bucket }

// GetDBClient implements ServiceEnv.
func (env *NonblockingServiceEnv) GetDBClient() *sqlx.DB { return env.db }

// Engine implements ServiceEnv.
func (env *NonblockingServiceEnv) Engine() *engine.Engine { return env.engine }

// Close stops the engine and releases storage.  Modules still running stay RUNNING in the store.
func (env *NonblockingServiceEnv) Close() error {
	var errs error
	if env.engine != nil {
		errs = errors.Join(errs, env.engine.Close())
		errs = errors.Join(errs, env.engine.Projects().Close())
	}
	env.cancel()
	if env.bucket != nil {
		errs = errors.Join(errs, env.bucket.Close())
	}
	return errs
}
