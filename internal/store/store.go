package store

import (
	"context"

	"github.com/robert-nguyenn/strategy-engine/internal/models"
)

// StrategyStore is the read-only contract the evaluation pipeline has with
// the relational strategy store. Strategy CRUD lives elsewhere; nothing here
// writes.
type StrategyStore interface {
	// FindActiveConditionsMatching returns conditions whose identifying
	// fields exactly match the profile (structural JSON equality on
	// parameters) and that are linked through the block tree to at least one
	// active strategy.
	FindActiveConditionsMatching(ctx context.Context, profile *models.IndicatorProfile) ([]models.ConditionMatch, error)

	// GetStrategyTree fetches a strategy's block tree to the configured
	// depth, with conditions and actions eagerly joined at every level.
	GetStrategyTree(ctx context.Context, strategyID string) (*models.StrategyBlock, error)

	// GetCondition fetches a single condition record. Used for
	// indicator-vs-indicator right operands.
	GetCondition(ctx context.Context, id string) (*models.Condition, error)

	// GetUserTradingAccount returns the brokerage trading-account identifier
	// for a user, or models.ErrNoTradingAccount.
	GetUserTradingAccount(ctx context.Context, userID string) (string, error)

	// ListActiveIndicatorProfiles returns the distinct fetch profiles
	// required by all active strategies' leaf conditions.
	ListActiveIndicatorProfiles(ctx context.Context) ([]*models.IndicatorProfile, error)

	// Close closes the store connection
	Close() error
}
