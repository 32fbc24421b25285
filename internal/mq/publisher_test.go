package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/runner-game/internal/models"
	"go.uber.org/zap"
)

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	err       error
	closed    bool
}

func (f *fakeChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func testReward() *models.GameReward {
	claimedAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return &models.GameReward{
		RewardID:    "rw-1",
		RunID:       "run-1",
		UserID:      "user-1",
		GameType:    models.DefaultGameType,
		RewardType:  models.RewardTypeTokens,
		Amount:      18,
		AuditDigest: "abc",
		ClaimedAt:   &claimedAt,
	}
}

func TestNotifyRewardIssued(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{channel: ch, queue: "game.rewards", log: zap.NewNop()}

	require.NoError(t, p.NotifyRewardIssued(context.Background(), testReward()))
	require.Len(t, ch.published, 1)
	assert.Equal(t, "game.rewards", ch.keys[0])

	msg := ch.published[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "rw-1", msg.MessageId)

	var evt RewardIssuedEvent
	require.NoError(t, json.Unmarshal(msg.Body, &evt))
	assert.Equal(t, EventRewardIssued, evt.Event)
	assert.Equal(t, int64(18), evt.Amount)
	assert.Equal(t, "run-1", evt.RunID)
	assert.Equal(t, "abc", evt.Digest)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestNotifyRewardIssuedErrors(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := &Publisher{channel: ch, queue: "game.rewards", log: zap.NewNop()}

	err := p.NotifyRewardIssued(context.Background(), testReward())
	assert.ErrorContains(t, err, "channel closed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.NotifyRewardIssued(ctx, testReward()), context.Canceled)
}
