package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/config"
	"gastos/internal/core"
	"gastos/internal/identity"
)

func TestFromAppConfig(t *testing.T) {
	cfg := &config.Config{
		DataBackend:    "sqlite",
		SQLiteDBPath:   "/tmp/x.db",
		AMQPURL:        "amqp://localhost",
		AMQPExchange:   "gastos.expenses",
		AMQPQueue:      "gastos",
		GoogleClientID: "client",
	}
	bc, err := FromAppConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, SQLiteBackend, bc.Type)
	assert.Equal(t, "/tmp/x.db", bc.SQLiteDBPath)
	assert.Equal(t, "client", bc.GoogleClientID)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	assert.Error(t, err)
	_, err = FromAppConfig(nil)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"unknown type", Config{Type: "postgres"}, true},
		{"amqp without exchange", Config{Type: MemoryBackend, AMQPURL: "amqp://localhost"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.Equal(t, []string{"memory", "sqlite"}, GetBackendTypeStrings())
}

func TestCreateMemoryBackend(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend})
	require.NoError(t, err)
	defer res.Cleanup()

	assert.Nil(t, res.Bus)
	_, err = res.Service.SignInWithGoogle(context.Background(), "token")
	assert.ErrorIs(t, err, identity.ErrGoogleDisabled)
}

func TestCreateSQLiteBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "gastos.db")
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: SQLiteBackend, SQLiteDBPath: path})
	require.NoError(t, err)

	ctx := context.Background()
	acc, err := res.Service.SignUpWithPassword(ctx, "ana@example.com", "secret1", "Ana")
	require.NoError(t, err)
	assert.Equal(t, core.ProviderPassword, acc.Provider)
	require.NoError(t, res.Service.Ping(ctx))
	require.NoError(t, res.Cleanup())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestCreateMemoryBackendWithMissingSeedFails(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))

	_, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend, MemorySeedFile: bad})
	assert.Error(t, err)
}
