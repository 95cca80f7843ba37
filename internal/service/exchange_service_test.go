package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bnc-service/internal/model"
	internalPlugin "bnc-service/internal/plugin"
	"bnc-service/internal/protocol"
	"bnc-service/internal/protocol/protocoltest"
	"bnc-service/internal/repository"
	"bnc-service/pkg/plugin"
)

func TestExchangesAreJournaled(t *testing.T) {
	ctx := context.Background()
	console := protocoltest.NewFakeConsole(protocoltest.InstrumentValues())
	connect := func(ctx context.Context, _ *protocol.TelnetConfig, listener protocol.Listener) (protocol.LineProtocol, error) {
		console.SetListener(listener)
		return console, console.Open(ctx)
	}

	registry := internalPlugin.NewRegistry(zap.NewNop())
	internalPlugin.RegisterDefaultPlugins(registry, zap.NewNop())

	journal := NewExchangeService(repository.NewExchangeRepository(1000, zap.NewNop()), time.Hour, zap.NewNop())
	svc := NewPluginService(registry, testConfig(), connect, nil, journal, zap.NewNop())
	t.Cleanup(svc.Shutdown)

	_, err := svc.Initialize(ctx, plugin.KindMove)
	require.NoError(t, err)

	_, err = svc.MoveAbs(ctx, 42)
	require.NoError(t, err)

	exchanges, pagination, err := journal.ListExchanges(ctx, &repository.ExchangeFilter{Command: ":PULSE1:DELAY "})
	require.NoError(t, err)
	require.Equal(t, 1, pagination.Total)
	assert.Equal(t, 1, pagination.TotalPages)
	assert.Equal(t, ":PULSE1:DELAY 0.000000042", exchanges[0].Command)
	assert.Equal(t, plugin.KindMove, exchanges[0].Kind)
	assert.Equal(t, model.ExchangeStatusOK, exchanges[0].Status)

	got, err := journal.GetExchange(ctx, exchanges[0].ID)
	require.NoError(t, err)
	assert.Same(t, exchanges[0], got)

	deleted, err := journal.Prune(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	stats, err := journal.Stats(ctx)
	require.NoError(t, err)
	assert.NotZero(t, stats.ByKind[plugin.KindMove])
}

func TestRecordRejectedReply(t *testing.T) {
	journal := NewExchangeService(repository.NewExchangeRepository(10, zap.NewNop()), 0, zap.NewNop())
	journal.Record(plugin.KindViewer, ":PULSE1:CGATE?", "?1")

	status := model.ExchangeStatusRejected
	exchanges, _, err := journal.ListExchanges(context.Background(), &repository.ExchangeFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, exchanges, 1)
	assert.Equal(t, "?1", exchanges[0].Reply)

	deleted, err := journal.Prune(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted, "zero retention keeps everything")

	deleted, err = journal.Clear(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}
