package deployments

import (
	"errors"
	"fmt"
	"path/filepath"
)

const (
	BackendFile     = "file"
	BackendLevelDB  = "leveldb"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config selects and configures a ledger backend.
type Config struct {
	Backend string `yaml:"backend"`
	// Path is the directory of the file ledger, the LevelDB directory, or the SQLite file.
	Path string `yaml:"path"`
	// DSN is the PostgreSQL connection string, or a SQLite URI overriding Path.
	DSN string `yaml:"dsn"`
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendMemory:
		return nil
	case BackendFile, BackendLevelDB:
		if c.Path == "" {
			return fmt.Errorf("ledger: path is required for the %s backend", c.Backend)
		}
	case BackendSQLite:
		if c.Path == "" && c.DSN == "" {
			return errors.New("ledger: path or dsn is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.DSN == "" {
			return errors.New("ledger: dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	return nil
}

// Open returns the ledger backend described by cfg.
func Open(cfg Config) (Ledger, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendFile:
		return NewFileLedger(cfg.Path)
	case BackendLevelDB:
		return NewLevelDBLedger(cfg.Path)
	case BackendSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = filepath.Clean(cfg.Path)
		}
		return OpenSQLite(dsn)
	case BackendPostgres:
		return OpenPostgres(cfg.DSN)
	default:
		return NewMemoryLedger(), nil
	}
}
