package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL driver, also used for array binds
	"github.com/robert-nguyenn/strategy-engine/internal/config"
	"github.com/robert-nguyenn/strategy-engine/internal/models"
	"github.com/robert-nguyenn/strategy-engine/pkg/logger"
)

// PostgresStore is the Postgres-backed implementation of StrategyStore.
type PostgresStore struct {
	db       *sql.DB
	maxDepth int
}

// NewPostgresStore opens a connection pool against the strategy database.
func NewPostgresStore(dbConfig config.DatabaseConfig, maxTreeDepth int) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Database,
		dbConfig.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(dbConfig.MaxConnections)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Strategy store initialized",
		logger.String("host", dbConfig.Host),
		logger.Int("port", dbConfig.Port),
		logger.String("database", dbConfig.Database),
		logger.Int("tree_max_depth", maxTreeDepth),
	)

	return &PostgresStore{db: db, maxDepth: maxTreeDepth}, nil
}

// FindActiveConditionsMatching matches conditions on the event's identifying
// fields. Parameters are compared as jsonb, which is structural equality in
// Postgres, so key order on the wire does not matter.
func (s *PostgresStore) FindActiveConditionsMatching(ctx context.Context, profile *models.IndicatorProfile) ([]models.ConditionMatch, error) {
	paramsJSON, err := json.Marshal(profile.Parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parameters: %w", err)
	}

	query := `
		SELECT c.id, st.id, st.user_id, st.is_active
		FROM conditions c
		JOIN strategy_blocks b ON b.condition_id = c.id
		JOIN strategies st ON st.id = b.strategy_id
		WHERE st.is_active = TRUE
		  AND c.indicator_type = $1
		  AND COALESCE(c.symbol, '') = $2
		  AND COALESCE(c.interval, '') = $3
		  AND COALESCE(c.data_source, '') = $4
		  AND COALESCE(c.parameters, 'null'::jsonb) = $5::jsonb
	`

	rows, err := s.db.QueryContext(ctx, query,
		profile.IndicatorType,
		profile.Symbol,
		profile.Interval,
		profile.DataSource,
		string(paramsJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query matching conditions: %w", err)
	}
	defer rows.Close()

	byCondition := make(map[string]*models.ConditionMatch)
	var order []string
	for rows.Next() {
		var conditionID string
		var ref models.StrategyRef
		if err := rows.Scan(&conditionID, &ref.StrategyID, &ref.UserID, &ref.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan condition match: %w", err)
		}
		match, ok := byCondition[conditionID]
		if !ok {
			match = &models.ConditionMatch{ConditionID: conditionID}
			byCondition[conditionID] = match
			order = append(order, conditionID)
		}
		match.Strategies = append(match.Strategies, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate condition matches: %w", err)
	}

	matches := make([]models.ConditionMatch, 0, len(order))
	for _, id := range order {
		matches = append(matches, *byCondition[id])
	}
	return matches, nil
}

// GetStrategyTree fetches the block tree level by level down to the
// configured depth, eagerly joining conditions and actions. If blocks still
// exist below the cutoff a warning is logged so truncation is never silent.
func (s *PostgresStore) GetStrategyTree(ctx context.Context, strategyID string) (*models.StrategyBlock, error) {
	var rootID string
	err := s.db.QueryRowContext(ctx,
		`SELECT root_block_id FROM strategies WHERE id = $1`, strategyID,
	).Scan(&rootID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", models.ErrStrategyNotFound, strategyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy: %w", err)
	}

	root, err := s.fetchBlocks(ctx, []string{rootID})
	if err != nil {
		return nil, err
	}
	if len(root) == 0 {
		return nil, fmt.Errorf("%w: root block %s", models.ErrStrategyNotFound, rootID)
	}

	level := root
	for depth := 1; depth < s.maxDepth; depth++ {
		parentIDs := make([]string, 0, len(level))
		byID := make(map[string]*models.StrategyBlock, len(level))
		for _, b := range level {
			parentIDs = append(parentIDs, b.ID)
			byID[b.ID] = b
		}

		children, err := s.fetchChildren(ctx, parentIDs)
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			return root[0], nil
		}
		for _, child := range children {
			parent := byID[child.ParentID]
			if parent != nil {
				parent.Children = append(parent.Children, child)
			}
		}
		level = children
	}

	// One cheap probe below the cutoff so deep trees are flagged loudly.
	leafIDs := make([]string, 0, len(level))
	for _, b := range level {
		leafIDs = append(leafIDs, b.ID)
	}
	var truncated bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM strategy_blocks WHERE parent_id = ANY($1))`,
		pq.Array(leafIDs),
	).Scan(&truncated)
	if err == nil && truncated {
		logger.Warn("Strategy tree exceeds fetch depth, deeper blocks will not be evaluated",
			logger.String("strategy_id", strategyID),
			logger.Int("max_depth", s.maxDepth),
		)
	}

	return root[0], nil
}

// GetCondition fetches a single condition by id.
func (s *PostgresStore) GetCondition(ctx context.Context, id string) (*models.Condition, error) {
	query := `
		SELECT id, indicator_type, COALESCE(symbol, ''), COALESCE(interval, ''),
		       COALESCE(data_source, ''), COALESCE(data_key, ''), parameters,
		       operator, target_value, COALESCE(target_indicator_id, '')
		FROM conditions
		WHERE id = $1
	`
	c, err := scanCondition(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", models.ErrConditionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query condition: %w", err)
	}
	return c, nil
}

// GetUserTradingAccount resolves a user's brokerage trading-account id.
func (s *PostgresStore) GetUserTradingAccount(ctx context.Context, userID string) (string, error) {
	var accountID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT trading_account_id FROM users WHERE id = $1`, userID,
	).Scan(&accountID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", models.ErrUserNotFound, userID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query user: %w", err)
	}
	if !accountID.Valid || accountID.String == "" {
		return "", fmt.Errorf("%w: user %s", models.ErrNoTradingAccount, userID)
	}
	return accountID.String, nil
}

// ListActiveIndicatorProfiles returns the distinct indicator fetch profiles
// required by active strategies' conditions.
func (s *PostgresStore) ListActiveIndicatorProfiles(ctx context.Context) ([]*models.IndicatorProfile, error) {
	query := `
		SELECT DISTINCT c.indicator_type, COALESCE(c.symbol, ''), COALESCE(c.interval, ''),
		       COALESCE(c.data_source, ''), COALESCE(c.data_key, ''),
		       COALESCE(c.parameters, 'null'::jsonb)
		FROM conditions c
		JOIN strategy_blocks b ON b.condition_id = c.id
		JOIN strategies st ON st.id = b.strategy_id
		WHERE st.is_active = TRUE
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active indicator profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.IndicatorProfile
	for rows.Next() {
		var p models.IndicatorProfile
		var paramsJSON []byte
		if err := rows.Scan(&p.IndicatorType, &p.Symbol, &p.Interval, &p.DataSource, &p.DataKey, &paramsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan indicator profile: %w", err)
		}
		if len(paramsJSON) > 0 {
			if err := json.Unmarshal(paramsJSON, &p.Parameters); err != nil {
				return nil, fmt.Errorf("failed to unmarshal profile parameters: %w", err)
			}
		}
		profiles = append(profiles, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate indicator profiles: %w", err)
	}
	return profiles, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const blockColumns = `
	b.id, b.strategy_id, COALESCE(b.parent_id, ''), b.block_type, b.block_order,
	COALESCE(b.parameters, 'null'::jsonb), COALESCE(b.condition_id, ''), COALESCE(b.action_id, ''),
	c.id, c.indicator_type, COALESCE(c.symbol, ''), COALESCE(c.interval, ''),
	COALESCE(c.data_source, ''), COALESCE(c.data_key, ''), c.parameters,
	c.operator, c.target_value, COALESCE(c.target_indicator_id, ''),
	a.id, a.action_type, a.parameters
`

func (s *PostgresStore) fetchBlocks(ctx context.Context, ids []string) ([]*models.StrategyBlock, error) {
	query := `
		SELECT ` + blockColumns + `
		FROM strategy_blocks b
		LEFT JOIN conditions c ON c.id = b.condition_id
		LEFT JOIN actions a ON a.id = b.action_id
		WHERE b.id = ANY($1)
		ORDER BY b.block_order ASC
	`
	return s.queryBlocks(ctx, query, pq.Array(ids))
}

func (s *PostgresStore) fetchChildren(ctx context.Context, parentIDs []string) ([]*models.StrategyBlock, error) {
	query := `
		SELECT ` + blockColumns + `
		FROM strategy_blocks b
		LEFT JOIN conditions c ON c.id = b.condition_id
		LEFT JOIN actions a ON a.id = b.action_id
		WHERE b.parent_id = ANY($1)
		ORDER BY b.block_order ASC
	`
	return s.queryBlocks(ctx, query, pq.Array(parentIDs))
}

func (s *PostgresStore) queryBlocks(ctx context.Context, query string, arg interface{}) ([]*models.StrategyBlock, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy blocks: %w", err)
	}
	defer rows.Close()

	var blocks []*models.StrategyBlock
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate strategy blocks: %w", err)
	}
	return blocks, nil
}

func scanBlock(rows *sql.Rows) (*models.StrategyBlock, error) {
	var b models.StrategyBlock
	var blockParams []byte
	var condID, condType, condSymbol, condInterval, condSource, condKey sql.NullString
	var condParams []byte
	var condOperator, condTargetIndicator sql.NullString
	var condTarget sql.NullFloat64
	var actionID, actionType sql.NullString
	var actionParams []byte

	err := rows.Scan(
		&b.ID, &b.StrategyID, &b.ParentID, &b.BlockType, &b.Order,
		&blockParams, &b.ConditionID, &b.ActionID,
		&condID, &condType, &condSymbol, &condInterval,
		&condSource, &condKey, &condParams,
		&condOperator, &condTarget, &condTargetIndicator,
		&actionID, &actionType, &actionParams,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan strategy block: %w", err)
	}

	if len(blockParams) > 0 {
		if err := json.Unmarshal(blockParams, &b.Parameters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal block parameters: %w", err)
		}
	}

	if condID.Valid && condID.String != "" {
		cond := &models.Condition{
			ID:                condID.String,
			IndicatorType:     condType.String,
			Symbol:            condSymbol.String,
			Interval:          condInterval.String,
			DataSource:        condSource.String,
			DataKey:           condKey.String,
			Operator:          models.Operator(condOperator.String),
			TargetIndicatorID: condTargetIndicator.String,
		}
		if condTarget.Valid {
			v := condTarget.Float64
			cond.TargetValue = &v
		}
		if len(condParams) > 0 {
			if err := json.Unmarshal(condParams, &cond.Parameters); err != nil {
				return nil, fmt.Errorf("failed to unmarshal condition parameters: %w", err)
			}
		}
		b.Condition = cond
	}

	if actionID.Valid && actionID.String != "" {
		action := &models.Action{
			ID:         actionID.String,
			ActionType: models.ActionType(actionType.String),
		}
		if len(actionParams) > 0 {
			if err := json.Unmarshal(actionParams, &action.Parameters); err != nil {
				return nil, fmt.Errorf("failed to unmarshal action parameters: %w", err)
			}
		}
		b.Action = action
	}

	return &b, nil
}

func scanCondition(row *sql.Row) (*models.Condition, error) {
	var c models.Condition
	var paramsJSON []byte
	var target sql.NullFloat64

	err := row.Scan(
		&c.ID, &c.IndicatorType, &c.Symbol, &c.Interval,
		&c.DataSource, &c.DataKey, &paramsJSON,
		&c.Operator, &target, &c.TargetIndicatorID,
	)
	if err != nil {
		return nil, err
	}
	if target.Valid {
		v := target.Float64
		c.TargetValue = &v
	}
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &c.Parameters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal condition parameters: %w", err)
		}
	}
	return &c, nil
}
