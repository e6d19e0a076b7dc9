package serviceenv

import "github.com/vizierdb/vizier/src/internal/cmdutil"

// ConfigOption is a functional option that modifies a Configuration.
type ConfigOption = func(*Configuration)

// ApplyOptions applies the functional options opts to config.
func ApplyOptions(config *Configuration, opts ...ConfigOption) {
	for _, opt := range opts {
		opt(config)
	}
}

// ConfigFromOptions is for use in tests: it returns the default configuration with opts
// applied, ignoring the environment.
func ConfigFromOptions(opts ...ConfigOption) *Configuration {
	result := &Configuration{}
	if err := cmdutil.PopulateDefaults(result); err != nil {
		panic(err)
	}
	ApplyOptions(result, opts...)
	return result
}

// WithStorageURL sets the bucket URL.
func WithStorageURL(url string) ConfigOption {
	return func(config *Configuration) {
		config.StorageURL = url
	}
}

// WithWorkers sets the size of the asynchronous worker pool.
func WithWorkers(n int) ConfigOption {
	return func(config *Configuration) {
		config.Workers = n
	}
}

// WithSyncCommands replaces the synchronous whitelist.
func WithSyncCommands(cmds ...string) ConfigOption {
	return func(config *Configuration) {
		config.SyncCommands = cmds
	}
}

// WithPostgres selects the postgres viztrail store.
func WithPostgres(dsn string) ConfigOption {
	return func(config *Configuration) {
		config.Store = StorePostgres
		config.PostgresDSN = dsn
	}
}
