package evaluator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robert-nguyenn/strategy-engine/internal/config"
	"github.com/robert-nguyenn/strategy-engine/internal/models"
	"github.com/robert-nguyenn/strategy-engine/internal/storage"
	"github.com/robert-nguyenn/strategy-engine/internal/store"
	"github.com/robert-nguyenn/strategy-engine/pkg/logger"
)

// Consumer reads the indicator-update stream, resolves affected strategies
// and fans evaluation out with bounded concurrency. Every message is
// acknowledged exactly once, whether it evaluated, matched nothing, or
// failed: a dropped update is recoverable on the next fetch cycle, a poison
// loop is not.
type Consumer struct {
	config    config.EvaluatorConfig
	redis     storage.RedisClient
	store     store.StrategyStore
	evaluator *Evaluator
	consumer  string
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	running   bool
	stats     ConsumerStats
}

// ConsumerStats holds statistics about the consumer
type ConsumerStats struct {
	EventsReceived      int64
	EventsEvaluated     int64
	EventsNoMatch       int64
	EventsPoison        int64
	EventsFailed        int64
	StrategiesEvaluated int64
	LastEventTime       time.Time
	mu                  sync.RWMutex
}

// NewConsumer creates a new strategy evaluation consumer. consumerName must
// be process-unique within the consumer group.
func NewConsumer(cfg config.EvaluatorConfig, redis storage.RedisClient, st store.StrategyStore, evaluator *Evaluator, consumerName string) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		config:    cfg,
		redis:     redis,
		store:     st,
		evaluator: evaluator,
		consumer:  consumerName,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts consuming from the indicator-update stream.
func (c *Consumer) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer is already running")
	}
	c.running = true
	c.mu.Unlock()

	logger.Info("Starting strategy evaluation consumer",
		logger.String("stream", c.config.StreamName),
		logger.String("group", c.config.ConsumerGroup),
		logger.String("consumer", c.consumer),
		logger.Int("concurrency", c.config.ConcurrencyLimit),
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

	logger.Info("Stopping strategy evaluation consumer")
	c.cancel()
	c.wg.Wait()
	logger.Info("Strategy evaluation consumer stopped")
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
		EventsReceived:      c.stats.EventsReceived,
		EventsEvaluated:     c.stats.EventsEvaluated,
		EventsNoMatch:       c.stats.EventsNoMatch,
		EventsPoison:        c.stats.EventsPoison,
		EventsFailed:        c.stats.EventsFailed,
		StrategiesEvaluated: c.stats.StrategiesEvaluated,
		LastEventTime:       c.stats.LastEventTime,
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

// ProcessMessage runs the full pipeline for one stream message and always
// acknowledges it. Exported so tests can drive the pipeline directly.
func (c *Consumer) ProcessMessage(msg storage.StreamMessage) {
	defer c.acknowledge(msg.ID)

	event, err := models.IndicatorUpdateEventFromValues(msg.Values)
	if err != nil {
		// Permanently undeliverable; retrying cannot fix a malformed message.
		eventsConsumed.WithLabelValues("poison").Inc()
		c.recordPoison()
		logger.Warn("Dropping malformed indicator update event",
			logger.ErrorField(err),
			logger.String("message_id", msg.ID),
		)
		return
	}

	if err := c.evaluateEvent(event); err != nil {
		eventsConsumed.WithLabelValues("error").Inc()
		c.recordFailed()
		logger.Error("Failed to process indicator update event",
			logger.ErrorField(err),
			logger.String("cache_key", event.CacheKey),
			logger.String("message_id", msg.ID),
		)
		// Back off so a down store does not hot-loop the consumer.
		select {
		case <-c.ctx.Done():
		case <-time.After(c.config.ErrorBackoff):
		}
	}
}

// evaluateEvent resolves affected strategies and fans out evaluation.
func (c *Consumer) evaluateEvent(event *models.IndicatorUpdateEvent) error {
	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	profile := &models.IndicatorProfile{
		IndicatorType: event.IndicatorType,
		Symbol:        event.Symbol,
		Interval:      event.Interval,
		DataSource:    event.DataSource,
		DataKey:       event.DataKey,
		Parameters:    event.Parameters,
	}

	matches, err := c.store.FindActiveConditionsMatching(ctx, profile)
	if err != nil {
		return fmt.Errorf("failed to find matching conditions: %w", err)
	}

	refs := distinctStrategies(matches)
	if len(refs) == 0 {
		eventsConsumed.WithLabelValues("no_match").Inc()
		c.recordNoMatch()
		return nil
	}

	logger.Debug("Evaluating strategies for indicator update",
		logger.String("cache_key", event.CacheKey),
		logger.Int("strategies", len(refs)),
	)

	// Bounded fan-out: batches of ConcurrencyLimit, all settle, individual
	// failures logged and ignored so one strategy never blocks its siblings.
	limit := c.config.ConcurrencyLimit
	if limit < 1 {
		limit = 1
	}
	for start := 0; start < len(refs); start += limit {
		end := start + limit
		if end > len(refs) {
			end = len(refs)
		}

		var wg sync.WaitGroup
		for _, ref := range refs[start:end] {
			wg.Add(1)
			go func(ref models.StrategyRef) {
				defer wg.Done()
				c.runStrategy(ctx, ref, event)
			}(ref)
		}
		wg.Wait()
	}

	eventsConsumed.WithLabelValues("evaluated").Inc()
	c.recordEvaluated()
	return nil
}

func (c *Consumer) runStrategy(ctx context.Context, ref models.StrategyRef, event *models.IndicatorUpdateEvent) {
	start := time.Now()
	_, err := c.evaluator.EvaluateStrategy(ctx, ref, event)
	elapsed := time.Since(start)

	strategiesEvaluated.Inc()
	evaluationLatency.Observe(elapsed.Seconds())
	c.recordStrategyRun()

	if err != nil {
		logger.Error("Strategy evaluation failed",
			logger.ErrorField(err),
			logger.String("strategy_id", ref.StrategyID),
			logger.String("cache_key", event.CacheKey),
		)
		return
	}

	if elapsed > c.config.EvalTimeBudget && c.config.EvalTimeBudget > 0 {
		budgetExceeded.Inc()
		logger.Warn("Strategy evaluation exceeded latency budget",
			logger.String("strategy_id", ref.StrategyID),
			logger.Duration("elapsed", elapsed),
			logger.Duration("budget", c.config.EvalTimeBudget),
		)
	}
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

// distinctStrategies flattens condition matches into the unique set of
// active (strategy, user) pairs.
func distinctStrategies(matches []models.ConditionMatch) []models.StrategyRef {
	seen := make(map[string]bool)
	var refs []models.StrategyRef
	for _, match := range matches {
		for _, ref := range match.Strategies {
			if !ref.IsActive || seen[ref.StrategyID] {
				continue
			}
			seen[ref.StrategyID] = true
			refs = append(refs, ref)
		}
	}
	return refs
}

// Stats increment methods

func (c *Consumer) recordReceived() {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()
	c.stats.EventsReceived++
	c.stats.LastEventTime = time.Now()
}

func (c *Consumer) recordEvaluated() {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()
	c.stats.EventsEvaluated++
}

func (c *Consumer) recordNoMatch() {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()
	c.stats.EventsNoMatch++
}

func (c *Consumer) recordPoison() {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()
	c.stats.EventsPoison++
}

func (c *Consumer) recordFailed() {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()
	c.stats.EventsFailed++
}

func (c *Consumer) recordStrategyRun() {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()
	c.stats.StrategiesEvaluated++
}
