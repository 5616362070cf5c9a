package deployments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

const levelDBKeyPrefix = "deployment/"

// LevelDBLedger stores records in a LevelDB database under deployment/<environment>.
type LevelDBLedger struct {
	db *leveldb.DB
}

// NewLevelDBLedger opens (or creates) a LevelDB database at path.
func NewLevelDBLedger(path string) (*LevelDBLedger, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("leveldb ledger path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve leveldb ledger path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb ledger: %w", err)
	}
	return &LevelDBLedger{db: db}, nil
}

func levelDBKey(environment string) []byte {
	return []byte(levelDBKeyPrefix + environment)
}

func (l *LevelDBLedger) Read(_ context.Context, environment string) (common.Address, bool, error) {
	if err := ValidateEnvironment(environment); err != nil {
		return common.Address{}, false, err
	}
	data, err := l.db.Get(levelDBKey(environment), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return common.Address{}, false, nil
	}
	if err != nil {
		return common.Address{}, false, fmt.Errorf("load deployment record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return common.Address{}, false, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return decode(environment, rec.ProxyAddress)
}

func (l *LevelDBLedger) Write(_ context.Context, environment string, addr common.Address) error {
	if err := validateWrite(environment, addr); err != nil {
		return err
	}
	data, err := json.Marshal(Record{ProxyAddress: addr.Hex()})
	if err != nil {
		return err
	}
	if err := l.db.Put(levelDBKey(environment), data, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("store deployment record: %w", err)
	}
	return nil
}

func (l *LevelDBLedger) Clear(_ context.Context, environment string) error {
	if err := ValidateEnvironment(environment); err != nil {
		return err
	}
	if err := l.db.Delete(levelDBKey(environment), &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("delete deployment record: %w", err)
	}
	return nil
}

// Close releases the underlying LevelDB resources.
func (l *LevelDBLedger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}
