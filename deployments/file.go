package deployments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// FileName is the record file stored under each environment directory.
const FileName = "deploymentAddress.json"

// FileLedger stores each record as <dir>/<environment>/deploymentAddress.json.
type FileLedger struct {
	dir string
}

func NewFileLedger(dir string) (*FileLedger, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("file ledger directory required")
	}
	return &FileLedger{dir: dir}, nil
}

func (l *FileLedger) path(environment string) string {
	return filepath.Join(l.dir, environment, FileName)
}

func (l *FileLedger) Read(_ context.Context, environment string) (common.Address, bool, error) {
	if err := ValidateEnvironment(environment); err != nil {
		return common.Address{}, false, err
	}
	data, err := os.ReadFile(l.path(environment))
	if errors.Is(err, fs.ErrNotExist) {
		return common.Address{}, false, nil
	}
	if err != nil {
		return common.Address{}, false, fmt.Errorf("read deployment record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return common.Address{}, false, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return decode(environment, rec.ProxyAddress)
}

// Write replaces the record atomically: readers see either the old or the new file.
func (l *FileLedger) Write(_ context.Context, environment string, addr common.Address) error {
	if err := validateWrite(environment, addr); err != nil {
		return err
	}
	path := l.path(environment)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create deployment directory: %w", err)
	}
	data, err := json.MarshalIndent(Record{ProxyAddress: addr.Hex()}, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace deployment record: %w", err)
	}
	return nil
}

func (l *FileLedger) Clear(_ context.Context, environment string) error {
	if err := ValidateEnvironment(environment); err != nil {
		return err
	}
	err := os.Remove(l.path(environment))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove deployment record: %w", err)
	}
	return nil
}

func (l *FileLedger) Close() error { return nil }
