package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/robert-nguyenn/strategy-engine/internal/fingerprint"
	"github.com/robert-nguyenn/strategy-engine/internal/models"
)

// MockStrategyStore is an in-memory StrategyStore for testing. Matching uses
// fingerprint equality, which is equivalent to the structural JSON equality
// the Postgres implementation performs.
type MockStrategyStore struct {
	mu sync.Mutex

	Trees      map[string]*models.StrategyBlock // strategyID -> root
	Conditions map[string]*models.Condition     // conditionID -> condition
	Accounts   map[string]string                // userID -> trading account id
	Strategies map[string]*models.Strategy      // strategyID -> strategy

	MatchErr   error
	TreeErr    error
	AccountErr error

	TreeFetches int
}

func NewMockStrategyStore() *MockStrategyStore {
	return &MockStrategyStore{
		Trees:      make(map[string]*models.StrategyBlock),
		Conditions: make(map[string]*models.Condition),
		Accounts:   make(map[string]string),
		Strategies: make(map[string]*models.Strategy),
	}
}

func (m *MockStrategyStore) FindActiveConditionsMatching(ctx context.Context, profile *models.IndicatorProfile) ([]models.ConditionMatch, error) {
	if m.MatchErr != nil {
		return nil, m.MatchErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	target := fingerprint.ForProfile(profile)
	var matches []models.ConditionMatch
	for id, cond := range m.Conditions {
		if fingerprint.ForCondition(cond) != target {
			continue
		}
		match := models.ConditionMatch{ConditionID: id}
		for _, strat := range m.Strategies {
			if !strat.IsActive {
				continue
			}
			if m.treeReferencesCondition(m.Trees[strat.ID], id) {
				match.Strategies = append(match.Strategies, models.StrategyRef{
					StrategyID: strat.ID,
					UserID:     strat.UserID,
					IsActive:   strat.IsActive,
				})
			}
		}
		if len(match.Strategies) > 0 {
			matches = append(matches, match)
		}
	}
	return matches, nil
}

func (m *MockStrategyStore) GetStrategyTree(ctx context.Context, strategyID string) (*models.StrategyBlock, error) {
	if m.TreeErr != nil {
		return nil, m.TreeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TreeFetches++
	root, ok := m.Trees[strategyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrStrategyNotFound, strategyID)
	}
	return root, nil
}

func (m *MockStrategyStore) GetCondition(ctx context.Context, id string) (*models.Condition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cond, ok := m.Conditions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrConditionNotFound, id)
	}
	return cond, nil
}

func (m *MockStrategyStore) GetUserTradingAccount(ctx context.Context, userID string) (string, error) {
	if m.AccountErr != nil {
		return "", m.AccountErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.Accounts[userID]
	if !ok {
		return "", fmt.Errorf("%w: %s", models.ErrUserNotFound, userID)
	}
	if account == "" {
		return "", fmt.Errorf("%w: user %s", models.ErrNoTradingAccount, userID)
	}
	return account, nil
}

func (m *MockStrategyStore) ListActiveIndicatorProfiles(ctx context.Context) ([]*models.IndicatorProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool)
	var profiles []*models.IndicatorProfile
	for _, strat := range m.Strategies {
		if !strat.IsActive {
			continue
		}
		m.collectProfiles(m.Trees[strat.ID], seen, &profiles)
	}
	return profiles, nil
}

func (m *MockStrategyStore) Close() error {
	return nil
}

func (m *MockStrategyStore) treeReferencesCondition(block *models.StrategyBlock, conditionID string) bool {
	if block == nil {
		return false
	}
	if block.Condition != nil && block.Condition.ID == conditionID {
		return true
	}
	if block.ConditionID == conditionID {
		return true
	}
	for _, child := range block.Children {
		if m.treeReferencesCondition(child, conditionID) {
			return true
		}
	}
	return false
}

func (m *MockStrategyStore) collectProfiles(block *models.StrategyBlock, seen map[string]bool, out *[]*models.IndicatorProfile) {
	if block == nil {
		return
	}
	if block.Condition != nil {
		profile := &models.IndicatorProfile{
			IndicatorType: block.Condition.IndicatorType,
			Symbol:        block.Condition.Symbol,
			Interval:      block.Condition.Interval,
			DataSource:    block.Condition.DataSource,
			DataKey:       block.Condition.DataKey,
			Parameters:    block.Condition.Parameters,
		}
		fp := fingerprint.ForProfile(profile)
		if !seen[fp] {
			seen[fp] = true
			*out = append(*out, profile)
		}
	}
	for _, child := range block.Children {
		m.collectProfiles(child, seen, out)
	}
}
