package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tradeconsensus/internal/config"
	"github.com/ajitpratap0/tradeconsensus/internal/db"
)

func startTestNATSServer(t *testing.T) *server.Server {
	opts := &server.Options{
		Host: "127.0.0.1",
		Port: -1,
	}

	ns, err := server.NewServer(opts)
	require.NoError(t, err)

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	return ns
}

func TestDisabledPublisherIsNoop(t *testing.T) {
	p, err := NewPublisher(config.NATSConfig{Enabled: false})
	require.NoError(t, err)

	event := &db.ConsensusEvent{ID: uuid.New(), Ticker: "SBER"}
	assert.NoError(t, p.PublishConsensus(context.Background(), event))
	p.Close()
}

func TestPublishConsensusSubjectAndPayload(t *testing.T) {
	ns := startTestNATSServer(t)
	defer ns.Shutdown()

	p, err := NewPublisher(config.NATSConfig{
		Enabled: true,
		URL:     ns.ClientURL(),
		Prefix:  "consensus.",
	})
	require.NoError(t, err)
	defer p.Close()

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync("consensus.detected.SBER")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	event := &db.ConsensusEvent{
		ID:           uuid.New(),
		Ticker:       "SBER",
		Direction:    db.DirectionLong,
		TradersCount: 2,
	}
	require.NoError(t, p.PublishConsensus(context.Background(), event))

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)

	var decoded db.ConsensusEvent
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, db.DirectionLong, decoded.Direction)
	assert.Equal(t, 2, decoded.TradersCount)
}

func TestPublishCancelledContext(t *testing.T) {
	ns := startTestNATSServer(t)
	defer ns.Shutdown()

	p, err := NewPublisher(config.NATSConfig{Enabled: true, URL: ns.ClientURL()})
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = p.PublishConsensus(ctx, &db.ConsensusEvent{ID: uuid.New(), Ticker: "SBER"})
	assert.ErrorIs(t, err, context.Canceled)
}
