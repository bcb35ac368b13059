// Package executor implements the action execution consumer: it reads the
// action-required stream, resolves the user's brokerage account and submits
// orders. Messages are always acknowledged, success or failure; retry is
// deliberately left to whatever wraps the brokerage call.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robert-nguyenn/strategy-engine/internal/config"
	"github.com/robert-nguyenn/strategy-engine/internal/models"
	"github.com/robert-nguyenn/strategy-engine/internal/storage"
	"github.com/robert-nguyenn/strategy-engine/internal/store"
	"github.com/robert-nguyenn/strategy-engine/pkg/logger"
)

var (
	actionsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_actions_consumed_total",
			Help: "Total number of action-required events consumed",
		},
		[]string{"outcome"}, // "executed", "dropped", "failed", "poison"
	)

	ordersSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_orders_submitted_total",
			Help: "Total number of brokerage order submissions",
		},
		[]string{"side", "status"}, // status: "ok" or "error"
	)
)

// Consumer consumes action-required events and executes them.
type Consumer struct {
	config   config.ExecutorConfig
	redis    storage.RedisClient
	store    store.StrategyStore
	broker   BrokerClient
	consumer string
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	stats    ConsumerStats
}

// ConsumerStats holds statistics about the consumer
type ConsumerStats struct {
	ActionsReceived int64
	OrdersSubmitted int64
	ActionsDropped  int64
	ActionsFailed   int64
	LastActionTime  time.Time
	mu              sync.RWMutex
}

// NewConsumer creates a new action execution consumer.
func NewConsumer(cfg config.ExecutorConfig, redis storage.RedisClient, st store.StrategyStore, broker BrokerClient, consumerName string) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		config:   cfg,
		redis:    redis,
		store:    st,
		broker:   broker,
		consumer: consumerName,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts consuming from the action-required stream.
func (c *Consumer) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer is already running")
	}
	c.running = true
	c.mu.Unlock()

	logger.Info("Starting action execution consumer",
		logger.String("stream", c.config.StreamName),
		logger.String("group", c.config.ConsumerGroup),
		logger.String("consumer", c.consumer),
	)

	messageChan, err := c.redis.ConsumeFromStream(c.ctx, c.config.StreamName, c.config.ConsumerGroup, c.consumer)
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return fmt.Errorf("failed to start consuming from stream: %w", err)
	}

	c.wg.Add(1)
	go c.processMessages(messageChan)

	return nil
}

// Stop stops the consumer
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	logger.Info("Stopping action execution consumer")
	c.cancel()
	c.wg.Wait()
	logger.Info("Action execution consumer stopped")
}

// IsRunning returns whether the consumer is running
func (c *Consumer) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// GetStats returns a copy of the current consumer statistics
func (c *Consumer) GetStats() ConsumerStats {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()
	return ConsumerStats{
		ActionsReceived: c.stats.ActionsReceived,
		OrdersSubmitted: c.stats.OrdersSubmitted,
		ActionsDropped:  c.stats.ActionsDropped,
		ActionsFailed:   c.stats.ActionsFailed,
		LastActionTime:  c.stats.LastActionTime,
	}
}

func (c *Consumer) processMessages(messageChan <-chan storage.StreamMessage) {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-messageChan:
			if !ok {
				logger.Warn("Message channel closed")
				return
			}
			c.recordReceived()
			c.ProcessMessage(msg)
		}
	}
}

// ProcessMessage executes one action-required event. The acknowledgment in
// the defer runs regardless of downstream success so the stream always makes
// forward progress. Exported so tests can drive the pipeline directly.
func (c *Consumer) ProcessMessage(msg storage.StreamMessage) {
	defer c.acknowledge(msg.ID)

	event, err := models.ActionRequiredEventFromValues(msg.Values)
	if err != nil {
		actionsConsumed.WithLabelValues("poison").Inc()
		logger.Warn("Dropping malformed action-required event",
			logger.ErrorField(err),
			logger.String("message_id", msg.ID),
		)
		return
	}

	if err := c.executeAction(event); err != nil {
		actionsConsumed.WithLabelValues("failed").Inc()
		c.recordFailed()
		logger.Error("Failed to execute action",
			logger.ErrorField(err),
			logger.String("action_id", event.ActionID),
			logger.String("action_type", string(event.ActionType)),
			logger.String("strategy_id", event.StrategyID),
			logger.String("message_id", msg.ID),
		)
		return
	}
	actionsConsumed.WithLabelValues("executed").Inc()
}

func (c *Consumer) executeAction(event *models.ActionRequiredEvent) error {
	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	switch event.ActionType {
	case models.ActionBuy, models.ActionSell:
		return c.submitOrder(ctx, event)

	case models.ActionNotify:
		// Notification delivery is a stub; the trigger is recorded for
		// operator visibility only.
		logger.Info("Notify action triggered",
			logger.String("strategy_id", event.StrategyID),
			logger.String("user_id", event.UserID),
			logger.JSON("parameters", event.Parameters),
		)
		return nil

	case models.ActionLogMessage:
		logger.Info("Strategy log message",
			logger.String("strategy_id", event.StrategyID),
			logger.JSON("parameters", event.Parameters),
		)
		return nil

	case models.ActionRebalance:
		logger.Warn("REBALANCE action is not implemented",
			logger.String("strategy_id", event.StrategyID),
			logger.String("action_id", event.ActionID),
		)
		return nil

	default:
		logger.Warn("Unrecognized action type, skipping",
			logger.String("action_type", string(event.ActionType)),
			logger.String("action_id", event.ActionID),
		)
		return nil
	}
}

func (c *Consumer) submitOrder(ctx context.Context, event *models.ActionRequiredEvent) error {
	accountID, err := c.store.GetUserTradingAccount(ctx, event.UserID)
	if err != nil {
		// Cannot act without an account; drop rather than fail so the
		// message is not mistaken for a transient error.
		actionsConsumed.WithLabelValues("dropped").Inc()
		c.recordDropped()
		logger.Warn("Dropping order action without a trading account",
			logger.ErrorField(err),
			logger.String("user_id", event.UserID),
			logger.String("action_id", event.ActionID),
		)
		return nil
	}

	order, err := MapOrder(event.ActionType, event.Parameters)
	if err != nil {
		return fmt.Errorf("order validation failed: %w", err)
	}

	if err := c.broker.SubmitOrder(ctx, accountID, order); err != nil {
		ordersSubmitted.WithLabelValues(order.Side, "error").Inc()
		return fmt.Errorf("order submission failed: %w", err)
	}

	ordersSubmitted.WithLabelValues(order.Side, "ok").Inc()
	c.recordSubmitted()
	return nil
}

func (c *Consumer) acknowledge(messageID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.redis.AcknowledgeMessage(ctx, c.config.StreamName, c.config.ConsumerGroup, messageID); err != nil {
		logger.Warn("Failed to acknowledge message",
			logger.ErrorField(err),
			logger.String("message_id", messageID),
		)
	}
}

// Stats increment methods

func (c *Consumer) recordReceived() {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()
	c.stats.ActionsReceived++
	c.stats.LastActionTime = time.Now()
}

func (c *Consumer) recordSubmitted() {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()
	c.stats.OrdersSubmitted++
}

func (c *Consumer) recordDropped() {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()
	c.stats.ActionsDropped++
}

func (c *Consumer) recordFailed() {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()
	c.stats.ActionsFailed++
}
