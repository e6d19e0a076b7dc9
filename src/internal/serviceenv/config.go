// Package serviceenv holds the configuration of a vizier process.
package serviceenv

import (
	"strings"

	"github.com/vizierdb/vizier/src/internal/cmdutil"
	"github.com/vizierdb/vizier/src/internal/errors"
)

const (
	// StoreObject persists viztrails as JSON objects in the storage bucket.
	StoreObject = "object"
	// StorePostgres persists viztrails in postgres.
	StorePostgres = "postgres"
)

// Configuration is the configuration of the vizier engine.
type Configuration struct {
	// StorageURL is a gocloud bucket URL (file://, mem://, s3://) holding datasets, files and,
	// with the object store, viztrails.
	StorageURL string `env:"VIZIER_STORAGE_URL,default=file:///var/lib/vizier"`
	Store      string `env:"VIZIER_STORE,default=object"`

	PostgresDSN          string `env:"VIZIER_POSTGRES_DSN"`
	PostgresMaxOpenConns int    `env:"VIZIER_POSTGRES_MAX_OPEN_CONNS,default=10"`

	// Workers bounds the number of asynchronously executing modules across all branches.
	Workers int `env:"VIZIER_WORKERS,default=4"`
	// SyncCommands lists package.command pairs (or package.*) that run on the calling
	// goroutine.
	SyncCommands     []string `env:"VIZIER_SYNC_COMMANDS,default=vizual.*,markdown.*"`
	DatasetCacheSize int      `env:"VIZIER_DATASET_CACHE_SIZE,default=64"`
	PackagesFile     string   `env:"VIZIER_PACKAGES_FILE"`

	LogLevel    string `env:"VIZIER_LOG_LEVEL,default=info"`
	MetricsAddr string `env:"VIZIER_METRICS_ADDR"`
}

// NewConfiguration populates a Configuration from the environment and the given decoders.
func NewConfiguration(decoders ...cmdutil.Decoder) (*Configuration, error) {
	c := &Configuration{}
	if err := cmdutil.Populate(c, decoders...); err != nil {
		return nil, errors.Wrap(err, "populate configuration")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks combinations of settings that Populate cannot.
func (c *Configuration) Validate() error {
	switch c.Store {
	case StoreObject:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return errors.New("VIZIER_POSTGRES_DSN must be set when VIZIER_STORE=postgres")
		}
	default:
		return errors.Errorf("unknown viztrail store %q", c.Store)
	}
	if c.Workers < 1 {
		return errors.Errorf("VIZIER_WORKERS must be positive, got %d", c.Workers)
	}
	for _, s := range c.SyncCommands {
		if pkg, cmd, ok := strings.Cut(s, "."); !ok || pkg == "" || cmd == "" {
			return errors.Errorf("invalid synchronous command %q, expected package.command", s)
		}
	}
	return nil
}

// SyncWhitelist returns SyncCommands as package -> commands.  A "*" command admits every
// command of the package.
func (c *Configuration) SyncWhitelist() map[string][]string {
	result := make(map[string][]string)
	for _, s := range c.SyncCommands {
		pkg, cmd, _ := strings.Cut(s, ".")
		result[pkg] = append(result[pkg], cmd)
	}
	return result
}
