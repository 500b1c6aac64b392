package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"udf_backend_project/services/datafetcher"
)

// newTestStore opens a private in-memory SQLite database with every table migrated.
func newTestStore(t *testing.T) *InstrumentStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := NewInstrumentStore(db, zap.NewNop())
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

// tableFromJSON builds a provider table the same way the gateway client does.
func tableFromJSON(t *testing.T, payload string) *datafetcher.Table {
	t.Helper()
	table, err := datafetcher.DecodeTable(strings.NewReader(payload))
	require.NoError(t, err)
	return table
}

// stubCaller serves fixed JSON payloads per entry point; unknown ones are empty.
type stubCaller struct {
	mu       sync.Mutex
	payloads map[string]string
	errs     map[string]error
	calls    map[string]int
}

func (s *stubCaller) Call(ctx context.Context, entryPoint string, _ url.Values) (*datafetcher.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[entryPoint]++
	if err := s.errs[entryPoint]; err != nil {
		return nil, err
	}
	return datafetcher.DecodeTable(strings.NewReader(s.payloads[entryPoint]))
}
