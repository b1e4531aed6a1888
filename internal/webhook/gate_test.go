package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-settlement/internal/status"
)

func TestGate_RejectsBadSignature(t *testing.T) {
	g := &Gate{secret: "whsec_test"}

	_, err := g.Process(context.Background(), []byte(`{"id":"evt_1"}`), "t=1,v1=deadbeef")
	require.Error(t, err)
	assert.ErrorIs(t, err, status.ErrUnauthenticated)
	assert.Equal(t, status.CodeUnauthorized, status.CodeOf(err))
}

func TestGate_RedisFastPathShortCircuitsDuplicate(t *testing.T) {
	db, mock := redismock.NewClientMock()
	// ledger is nil on purpose: a redis hit must answer without
	// touching the durable store.
	g := &Gate{redis: db}

	mock.ExpectExists("webhook:event:evt_55").SetVal(1)

	dup, err := g.alreadyProcessed(context.Background(), "evt_55")
	require.NoError(t, err)
	assert.True(t, dup)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGate_MarkProcessedSetsTTL(t *testing.T) {
	db, mock := redismock.NewClientMock()
	g := &Gate{redis: db, dedupeTTL: 24 * time.Hour}

	mock.ExpectSet("webhook:event:evt_56", 1, 24*time.Hour).SetVal("OK")

	g.markProcessed(context.Background(), "evt_56")
	assert.NoError(t, mock.ExpectationsWereMet())
}
