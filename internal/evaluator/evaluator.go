// Package evaluator implements the strategy evaluation pipeline: the
// indicator-update stream consumer, the recursive block-tree evaluator, the
// single-condition evaluator and the action throttle gate.
package evaluator

import (
	"context"

	"github.com/robert-nguyenn/strategy-engine/internal/cache"
	"github.com/robert-nguyenn/strategy-engine/internal/fingerprint"
	"github.com/robert-nguyenn/strategy-engine/internal/models"
	"github.com/robert-nguyenn/strategy-engine/internal/store"
	"github.com/robert-nguyenn/strategy-engine/pkg/logger"
)

// ActionPublisher publishes throttle-approved triggers to the action stream.
type ActionPublisher interface {
	PublishAction(ctx context.Context, event *models.ActionRequiredEvent) error
}

// EvaluationContext is the ephemeral per-run state of one strategy
// evaluation. actionsTriggered dedupes an action reached from multiple
// branches within a single pass.
type EvaluationContext struct {
	StrategyID          string
	UserID              string
	TriggeringIndicator *models.IndicatorUpdateEvent
	IndicatorValues     map[string]models.IndicatorValues
	actionsTriggered    map[string]bool
}

// Evaluator walks strategy trees against cached indicator values and emits
// action-required events for satisfied branches.
type Evaluator struct {
	store     store.StrategyStore
	cache     *cache.Cache
	throttle  *Throttle
	publisher ActionPublisher
}

// NewEvaluator wires the evaluator's collaborators.
func NewEvaluator(st store.StrategyStore, c *cache.Cache, throttle *Throttle, publisher ActionPublisher) *Evaluator {
	return &Evaluator{
		store:     st,
		cache:     c,
		throttle:  throttle,
		publisher: publisher,
	}
}

// EvaluateStrategy runs one full evaluation pass for a strategy against the
// triggering event: tree fetch, static fingerprint walk, one batched cache
// read, then recursive evaluation from the root. Returns whether at least
// one action was published.
func (e *Evaluator) EvaluateStrategy(ctx context.Context, ref models.StrategyRef, event *models.IndicatorUpdateEvent) (bool, error) {
	root, err := e.store.GetStrategyTree(ctx, ref.StrategyID)
	if err != nil {
		return false, err
	}

	refs := collectIndicatorRefs(root)
	fps := make([]string, 0, len(refs))
	for fp := range refs {
		fps = append(fps, fp)
	}

	entries := e.cache.BatchGet(ctx, fps)
	values := make(map[string]models.IndicatorValues, len(entries))
	for fp, entry := range entries {
		values[fp] = ExtractValues(entry, refs[fp])
	}

	ec := &EvaluationContext{
		StrategyID:          ref.StrategyID,
		UserID:              ref.UserID,
		TriggeringIndicator: event,
		IndicatorValues:     values,
		actionsTriggered:    make(map[string]bool),
	}

	return e.evaluateBlock(ctx, root, ec), nil
}

// evaluateBlock recursively evaluates a block. The returned bool means "this
// block or a descendant published an action", not a condition truth value.
func (e *Evaluator) evaluateBlock(ctx context.Context, block *models.StrategyBlock, ec *EvaluationContext) bool {
	if block == nil {
		return false
	}

	switch block.BlockType {
	case models.BlockRoot, models.BlockGroup:
		return e.evaluateGroup(ctx, block, ec)

	case models.BlockConditionIf:
		return e.evaluateConditionIf(ctx, block, ec)

	case models.BlockAction:
		return e.evaluateAction(ctx, block, ec)

	case models.BlockFilter, models.BlockWeight, models.BlockAsset:
		// Structurally present but semantically unimplemented; pass through
		// as an AND-group over children.
		logger.Warn("Block type not implemented, evaluating children as group",
			logger.String("block_id", block.ID),
			logger.String("block_type", string(block.BlockType)),
		)
		return e.evaluateGroup(ctx, block, ec)

	default:
		logger.Warn("Unknown block type, skipping",
			logger.ErrorField(models.ErrUnknownBlockType),
			logger.String("block_id", block.ID),
			logger.String("block_type", string(block.BlockType)),
		)
		return false
	}
}

// evaluateGroup evaluates every child in sibling order and ORs their
// action-triggered flags. The declared logic parameter is read for logging
// only; OR grouping has never short-circuited, and actions behind a false
// sibling still depend on their own CONDITION_IF gates.
func (e *Evaluator) evaluateGroup(ctx context.Context, block *models.StrategyBlock, ec *EvaluationContext) bool {
	if declared, ok := block.Parameters["logic"].(string); ok && declared == "OR" {
		logger.Debug("Group declares OR logic; all children are still evaluated",
			logger.String("block_id", block.ID),
		)
	}

	triggered := false
	for _, child := range block.Children {
		if e.evaluateBlock(ctx, child, ec) {
			triggered = true
		}
	}
	return triggered
}

// evaluateConditionIf evaluates the linked condition, then the then-branch
// (all children) when true, or the else-branch (children at the else marker
// order) when false.
func (e *Evaluator) evaluateConditionIf(ctx context.Context, block *models.StrategyBlock, ec *EvaluationContext) bool {
	if block.Condition == nil {
		logger.Warn("CONDITION_IF block has no linked condition",
			logger.String("block_id", block.ID),
			logger.String("strategy_id", ec.StrategyID),
		)
		return false
	}

	satisfied := e.evaluateCondition(ctx, block.Condition, ec)

	triggered := false
	for _, child := range block.Children {
		if satisfied {
			if e.evaluateBlock(ctx, child, ec) {
				triggered = true
			}
			continue
		}
		if child.Order == models.ElseBranchOrder {
			if e.evaluateBlock(ctx, child, ec) {
				triggered = true
			}
		}
	}
	return triggered
}

// evaluateAction gates the linked action through the throttle store and the
// per-run dedupe set, then publishes an action-required event.
func (e *Evaluator) evaluateAction(ctx context.Context, block *models.StrategyBlock, ec *EvaluationContext) bool {
	if block.Action == nil {
		return false
	}
	action := block.Action

	interval := ""
	if ec.TriggeringIndicator != nil {
		interval = ec.TriggeringIndicator.Interval
	}
	cooldown := e.throttle.CooldownForInterval(interval)

	if !e.throttle.Allow(ctx, ec.StrategyID, action.ID, cooldown) {
		actionsThrottled.Inc()
		logger.Debug("Action throttled",
			logger.String("strategy_id", ec.StrategyID),
			logger.String("action_id", action.ID),
			logger.Duration("cooldown", cooldown),
		)
		return false
	}

	if ec.actionsTriggered[action.ID] {
		// A second branch reached the same action in this pass.
		return false
	}

	event := &models.ActionRequiredEvent{
		ActionID:            action.ID,
		ActionType:          action.ActionType,
		Parameters:          action.Parameters,
		StrategyID:          ec.StrategyID,
		UserID:              ec.UserID,
		TriggeringIndicator: ec.TriggeringIndicator,
	}

	if err := e.publisher.PublishAction(ctx, event); err != nil {
		logger.Error("Failed to publish action-required event",
			logger.ErrorField(err),
			logger.String("strategy_id", ec.StrategyID),
			logger.String("action_id", action.ID),
		)
		return false
	}

	ec.actionsTriggered[action.ID] = true
	actionsPublished.Inc()
	logger.Info("Action triggered",
		logger.String("strategy_id", ec.StrategyID),
		logger.String("action_id", action.ID),
		logger.String("action_type", string(action.ActionType)),
	)
	return true
}

// collectIndicatorRefs statically walks a tree and returns the fingerprints
// of every condition's left operand, mapped to the dataKey used to extract
// values for that fingerprint.
func collectIndicatorRefs(block *models.StrategyBlock) map[string]string {
	refs := make(map[string]string)
	var walk func(b *models.StrategyBlock)
	walk = func(b *models.StrategyBlock) {
		if b == nil {
			return
		}
		if b.Condition != nil {
			fp := fingerprint.ForCondition(b.Condition)
			if _, ok := refs[fp]; !ok {
				refs[fp] = b.Condition.DataKey
			}
		}
		for _, child := range b.Children {
			walk(child)
		}
	}
	walk(block)
	return refs
}
