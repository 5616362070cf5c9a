package deployments

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	proxyA = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	proxyB = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
)

func ledgers() map[string]func(t *testing.T) Ledger {
	return map[string]func(t *testing.T) Ledger{
		BackendMemory: func(t *testing.T) Ledger {
			return NewMemoryLedger()
		},
		BackendFile: func(t *testing.T) Ledger {
			l, err := NewFileLedger(t.TempDir())
			require.NoError(t, err)
			return l
		},
		BackendLevelDB: func(t *testing.T) Ledger {
			l, err := NewLevelDBLedger(filepath.Join(t.TempDir(), "ledger"))
			require.NoError(t, err)
			return l
		},
		BackendSQLite: func(t *testing.T) Ledger {
			l, err := OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
			require.NoError(t, err)
			return l
		},
	}
}

func TestLedgers(t *testing.T) {
	ctx := context.Background()

	for name, open := range ledgers() {
		t.Run(name, func(t *testing.T) {
			t.Run("read of a missing record reports absence", func(t *testing.T) {
				l := open(t)
				defer l.Close()

				_, ok, err := l.Read(ctx, "sepolia")
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("write then read returns the address", func(t *testing.T) {
				l := open(t)
				defer l.Close()

				require.NoError(t, l.Write(ctx, "sepolia", proxyA))
				addr, ok, err := l.Read(ctx, "sepolia")
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, proxyA, addr)
			})

			t.Run("write overwrites and environments are independent", func(t *testing.T) {
				l := open(t)
				defer l.Close()

				require.NoError(t, l.Write(ctx, "sepolia", proxyA))
				require.NoError(t, l.Write(ctx, "sepolia", proxyB))
				require.NoError(t, l.Write(ctx, "mainnet", proxyA))

				addr, ok, err := l.Read(ctx, "sepolia")
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, proxyB, addr)

				addr, ok, err = l.Read(ctx, "mainnet")
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, proxyA, addr)
			})

			t.Run("clear removes the record and tolerates repeats", func(t *testing.T) {
				l := open(t)
				defer l.Close()

				require.NoError(t, l.Write(ctx, "hardhat", proxyA))
				require.NoError(t, l.Clear(ctx, "hardhat"))
				require.NoError(t, l.Clear(ctx, "hardhat"))

				_, ok, err := l.Read(ctx, "hardhat")
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("invalid input is rejected", func(t *testing.T) {
				l := open(t)
				defer l.Close()

				for _, env := range []string{"", "..", "a/b", "prod env"} {
					_, _, err := l.Read(ctx, env)
					assert.ErrorIs(t, err, ErrInvalidEnvironment, "read %q", env)
					assert.ErrorIs(t, l.Write(ctx, env, proxyA), ErrInvalidEnvironment, "write %q", env)
					assert.ErrorIs(t, l.Clear(ctx, env), ErrInvalidEnvironment, "clear %q", env)
				}
				assert.ErrorIs(t, l.Write(ctx, "sepolia", common.Address{}), ErrInvalidAddress)
			})
		})
	}
}

func TestFileLedger_Format(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l, err := NewFileLedger(dir)
	require.NoError(t, err)

	require.NoError(t, l.Write(ctx, "localhost", proxyA))

	data, err := os.ReadFile(filepath.Join(dir, "localhost", FileName))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"proxyAddress\": \""+proxyA.Hex()+"\"\n}", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "localhost"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileLedger_EmptyAddressMeansAbsent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "localhost"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "localhost", FileName), []byte(`{"proxyAddress": ""}`), 0o644))

	l, err := NewFileLedger(dir)
	require.NoError(t, err)
	_, ok, err := l.Read(ctx, "localhost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileLedger_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "localhost"), 0o755))

	l, err := NewFileLedger(dir)
	require.NoError(t, err)

	tests := []struct {
		name    string
		content string
	}{
		{"not json", "proxyAddress=0x1"},
		{"not an address", `{"proxyAddress": "hello"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(filepath.Join(dir, "localhost", FileName), []byte(tt.content), 0o644))
			_, _, err := l.Read(ctx, "localhost")
			assert.ErrorIs(t, err, ErrCorruptRecord)
		})
	}
}

func TestLevelDBLedger_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger")

	l, err := NewLevelDBLedger(path)
	require.NoError(t, err)
	require.NoError(t, l.Write(ctx, "sepolia", proxyA))
	require.NoError(t, l.Close())

	l, err = NewLevelDBLedger(path)
	require.NoError(t, err)
	defer l.Close()

	addr, ok, err := l.Read(ctx, "sepolia")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, proxyA, addr)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     Config
		want    any
		wantErr error
	}{
		{name: "memory", cfg: Config{Backend: BackendMemory}, want: &MemoryLedger{}},
		{name: "file", cfg: Config{Backend: BackendFile, Path: filepath.Join(dir, "deployments")}, want: &FileLedger{}},
		{name: "leveldb", cfg: Config{Backend: BackendLevelDB, Path: filepath.Join(dir, "leveldb")}, want: &LevelDBLedger{}},
		{name: "sqlite file", cfg: Config{Backend: BackendSQLite, Path: filepath.Join(dir, "ledger.db")}, want: &SQLLedger{}},
		{name: "unknown backend", cfg: Config{Backend: "etcd"}, wantErr: ErrUnknownBackend},
		{name: "file without path", cfg: Config{Backend: BackendFile}},
		{name: "postgres without dsn", cfg: Config{Backend: BackendPostgres}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := Open(tt.cfg)
			if tt.want == nil {
				require.Error(t, err)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				return
			}
			require.NoError(t, err)
			defer l.Close()
			assert.IsType(t, tt.want, l)
		})
	}
}
