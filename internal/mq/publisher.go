package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"github.com/wfunc/runner-game/internal/config"
	"github.com/wfunc/runner-game/internal/logger"
	"github.com/wfunc/runner-game/internal/models"
	"go.uber.org/zap"
)

// EventRewardIssued 奖励发放事件类型
const EventRewardIssued = "reward.issued"

// RewardIssuedEvent 奖励发放事件，供下游结算服务消费
type RewardIssuedEvent struct {
	Event      string    `json:"event"`
	RewardID   string    `json:"reward_id"`
	RunID      string    `json:"run_id"`
	UserID     string    `json:"user_id"`
	GameType   string    `json:"game_type"`
	RewardType string    `json:"reward_type"`
	Amount     int64     `json:"amount"`
	Digest     string    `json:"audit_digest"`
	ClaimedAt  time.Time `json:"claimed_at"`
}

// NewRewardIssuedEvent 由台账记录构造事件
func NewRewardIssuedEvent(reward *models.GameReward) RewardIssuedEvent {
	evt := RewardIssuedEvent{
		Event:      EventRewardIssued,
		RewardID:   reward.RewardID,
		RunID:      reward.RunID,
		UserID:     reward.UserID,
		GameType:   reward.GameType,
		RewardType: reward.RewardType,
		Amount:     reward.Amount,
		Digest:     reward.AuditDigest,
	}
	if reward.ClaimedAt != nil {
		evt.ClaimedAt = *reward.ClaimedAt
	}
	return evt
}

// channel 发布所需的 amqp 通道能力
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher 奖励事件发布者
type Publisher struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel channel
	queue   string
	log     *zap.Logger
}

// Dial 连接消息队列并声明持久化队列
func Dial(cfg *config.MQConfig) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接消息队列失败: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建消息通道失败: %w", err)
	}

	if _, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明队列失败: %w", err)
	}

	logger.Info("消息队列连接成功", zap.String("queue", cfg.QueueName))
	return &Publisher{
		conn:    conn,
		channel: ch,
		queue:   cfg.QueueName,
		log:     logger.WithModule("mq"),
	}, nil
}

// NotifyRewardIssued 发布奖励发放事件
func (p *Publisher) NotifyRewardIssued(ctx context.Context, reward *models.GameReward) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(NewRewardIssuedEvent(reward))
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.Publish("", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    reward.RewardID,
		Timestamp:    time.Now(),
		Type:         EventRewardIssued,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("发布奖励事件失败: %w", err)
	}

	p.log.Debug("reward event published", zap.String("reward_id", reward.RewardID), zap.String("run_id", reward.RunID))
	return nil
}

// Close 关闭通道和连接
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
