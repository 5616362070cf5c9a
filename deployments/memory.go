package deployments

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryLedger keeps records in process memory.
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[string]common.Address
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]common.Address)}
}

func (l *MemoryLedger) Read(_ context.Context, environment string) (common.Address, bool, error) {
	if err := ValidateEnvironment(environment); err != nil {
		return common.Address{}, false, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	addr, ok := l.records[environment]
	return addr, ok, nil
}

func (l *MemoryLedger) Write(_ context.Context, environment string, addr common.Address) error {
	if err := validateWrite(environment, addr); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[environment] = addr
	return nil
}

func (l *MemoryLedger) Clear(_ context.Context, environment string) error {
	if err := ValidateEnvironment(environment); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, environment)
	return nil
}

func (l *MemoryLedger) Close() error { return nil }
