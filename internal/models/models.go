package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Parameters is a calculation-parameter bag attached to conditions, actions
// and blocks. Values survive a JSON round trip, so numbers arrive as float64.
type Parameters map[string]interface{}

// BlockType identifies the role of a node in a strategy tree.
type BlockType string

const (
	BlockRoot        BlockType = "ROOT"
	BlockGroup       BlockType = "GROUP"
	BlockConditionIf BlockType = "CONDITION_IF"
	BlockAction      BlockType = "ACTION"
	BlockFilter      BlockType = "FILTER"
	BlockWeight      BlockType = "WEIGHT"
	BlockAsset       BlockType = "ASSET"
)

// ElseBranchOrder is the sibling order value that marks a CONDITION_IF child
// as belonging to the else branch. The order column doubles as the branch
// discriminator; every other order value is part of the then branch.
const ElseBranchOrder = 1

// Operator is a condition comparison operator.
type Operator string

const (
	OpGreaterThan        Operator = "GREATER_THAN"
	OpLessThan           Operator = "LESS_THAN"
	OpEquals             Operator = "EQUALS"
	OpNotEquals          Operator = "NOT_EQUALS"
	OpGreaterThanOrEqual Operator = "GREATER_THAN_OR_EQUAL"
	OpLessThanOrEqual    Operator = "LESS_THAN_OR_EQUAL"
	OpCrossesAbove       Operator = "CROSSES_ABOVE"
	OpCrossesBelow       Operator = "CROSSES_BELOW"
)

// ActionType identifies what an ACTION block does when triggered.
type ActionType string

const (
	ActionBuy        ActionType = "BUY"
	ActionSell       ActionType = "SELL"
	ActionNotify     ActionType = "NOTIFY"
	ActionLogMessage ActionType = "LOG_MESSAGE"
	ActionRebalance  ActionType = "REBALANCE"
)

// Priority classifies a cache entry for tiering and retention.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Strategy is the root record of a user-defined strategy tree. Read-only to
// the evaluation pipeline; CRUD lives elsewhere.
type Strategy struct {
	ID              string  `json:"id"`
	UserID          string  `json:"userId"`
	IsActive        bool    `json:"isActive"`
	RootBlockID     string  `json:"rootBlockId"`
	AllocatedAmount float64 `json:"allocatedAmount"`
}

// StrategyBlock is a node in the n-ary ordered strategy tree.
type StrategyBlock struct {
	ID          string           `json:"id"`
	StrategyID  string           `json:"strategyId"`
	ParentID    string           `json:"parentId,omitempty"`
	BlockType   BlockType        `json:"blockType"`
	Order       int              `json:"order"`
	Parameters  Parameters       `json:"parameters,omitempty"`
	ConditionID string           `json:"conditionId,omitempty"`
	ActionID    string           `json:"actionId,omitempty"`
	Condition   *Condition       `json:"condition,omitempty"`
	Action      *Action          `json:"action,omitempty"`
	Children    []*StrategyBlock `json:"children,omitempty"`
}

// Condition describes an indicator comparison. The left operand is always an
// indicator; the right operand is either TargetValue or another Condition
// referenced by TargetIndicatorID. Exactly one of the two must be set.
type Condition struct {
	ID                string     `json:"id"`
	IndicatorType     string     `json:"indicatorType"`
	Symbol            string     `json:"symbol,omitempty"`
	Interval          string     `json:"interval,omitempty"`
	DataSource        string     `json:"dataSource,omitempty"`
	DataKey           string     `json:"dataKey,omitempty"`
	Parameters        Parameters `json:"parameters,omitempty"`
	Operator          Operator   `json:"operator"`
	TargetValue       *float64   `json:"targetValue,omitempty"`
	TargetIndicatorID string     `json:"targetIndicatorId,omitempty"`
}

// Action describes what to do when a branch triggers.
type Action struct {
	ID         string     `json:"id"`
	ActionType ActionType `json:"actionType"`
	Parameters Parameters `json:"parameters,omitempty"`
}

// ConditionMatch links a matched condition to the active strategies that
// reference it through their block trees.
type ConditionMatch struct {
	ConditionID string
	Strategies  []StrategyRef
}

// StrategyRef is the (strategy, user) pair reachable from a matched condition.
type StrategyRef struct {
	StrategyID string
	UserID     string
	IsActive   bool
}

// IndicatorProfile is the distinct fetch profile derived from a leaf
// condition, used by scheduler discovery and the fetch service.
type IndicatorProfile struct {
	IndicatorType string     `json:"indicatorType"`
	Symbol        string     `json:"symbol,omitempty"`
	Interval      string     `json:"interval,omitempty"`
	DataSource    string     `json:"dataSource,omitempty"`
	DataKey       string     `json:"dataKey,omitempty"`
	Parameters    Parameters `json:"parameters,omitempty"`
}

// IndicatorUpdateEvent is published once per successful indicator fetch.
type IndicatorUpdateEvent struct {
	CacheKey      string     `json:"cacheKey"`
	IndicatorType string     `json:"indicatorType"`
	Symbol        string     `json:"symbol,omitempty"`
	Interval      string     `json:"interval,omitempty"`
	DataSource    string     `json:"dataSource,omitempty"`
	DataKey       string     `json:"dataKey,omitempty"`
	Parameters    Parameters `json:"parameters,omitempty"`
	LastRefreshed string     `json:"lastRefreshed,omitempty"`
	FetchTime     time.Time  `json:"fetchTime"`
}

// Validate checks that the event carries the fields consumers require.
func (e *IndicatorUpdateEvent) Validate() error {
	if e.CacheKey == "" {
		return fmt.Errorf("%w: cacheKey", ErrMissingField)
	}
	if e.IndicatorType == "" {
		return fmt.Errorf("%w: indicatorType", ErrMissingField)
	}
	return nil
}

// ToStreamValues renders the event as a flat field map for XADD. Sub-objects
// are JSON-encoded strings per the wire contract.
func (e *IndicatorUpdateEvent) ToStreamValues() (map[string]interface{}, error) {
	params, err := json.Marshal(e.Parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parameters: %w", err)
	}
	return map[string]interface{}{
		"cacheKey":      e.CacheKey,
		"indicatorType": e.IndicatorType,
		"symbol":        e.Symbol,
		"interval":      e.Interval,
		"dataSource":    e.DataSource,
		"dataKey":       e.DataKey,
		"parameters":    string(params),
		"lastRefreshed": e.LastRefreshed,
		"fetchTime":     e.FetchTime.Format(time.RFC3339Nano),
	}, nil
}

// IndicatorUpdateEventFromValues parses a stream field map back into an event.
func IndicatorUpdateEventFromValues(values map[string]interface{}) (*IndicatorUpdateEvent, error) {
	e := &IndicatorUpdateEvent{
		CacheKey:      stringField(values, "cacheKey"),
		IndicatorType: stringField(values, "indicatorType"),
		Symbol:        stringField(values, "symbol"),
		Interval:      stringField(values, "interval"),
		DataSource:    stringField(values, "dataSource"),
		DataKey:       stringField(values, "dataKey"),
		LastRefreshed: stringField(values, "lastRefreshed"),
	}
	if raw := stringField(values, "parameters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &e.Parameters); err != nil {
			return nil, fmt.Errorf("%w: parameters: %v", ErrInvalidParameters, err)
		}
	}
	if raw := stringField(values, "fetchTime"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid fetchTime %q: %w", raw, err)
		}
		e.FetchTime = t
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// ActionRequiredEvent is published once per throttle-approved trigger.
type ActionRequiredEvent struct {
	ActionID            string                `json:"actionId"`
	ActionType          ActionType            `json:"actionType"`
	Parameters          Parameters            `json:"parameters,omitempty"`
	StrategyID          string                `json:"strategyId"`
	UserID              string                `json:"userId"`
	TriggeringIndicator *IndicatorUpdateEvent `json:"triggeringIndicator,omitempty"`
}

// Validate checks that the event carries the fields the executor requires.
func (e *ActionRequiredEvent) Validate() error {
	if e.ActionID == "" {
		return fmt.Errorf("%w: actionId", ErrMissingField)
	}
	if e.ActionType == "" {
		return fmt.Errorf("%w: actionType", ErrMissingField)
	}
	if e.StrategyID == "" {
		return fmt.Errorf("%w: strategyId", ErrMissingField)
	}
	if e.UserID == "" {
		return fmt.Errorf("%w: userId", ErrMissingField)
	}
	return nil
}

// ToStreamValues renders the event as a flat field map for XADD.
func (e *ActionRequiredEvent) ToStreamValues() (map[string]interface{}, error) {
	params, err := json.Marshal(e.Parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parameters: %w", err)
	}
	trigger, err := json.Marshal(e.TriggeringIndicator)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal triggeringIndicator: %w", err)
	}
	return map[string]interface{}{
		"actionId":            e.ActionID,
		"actionType":          string(e.ActionType),
		"parameters":          string(params),
		"strategyId":          e.StrategyID,
		"userId":              e.UserID,
		"triggeringIndicator": string(trigger),
	}, nil
}

// ActionRequiredEventFromValues parses a stream field map back into an event.
func ActionRequiredEventFromValues(values map[string]interface{}) (*ActionRequiredEvent, error) {
	e := &ActionRequiredEvent{
		ActionID:   stringField(values, "actionId"),
		ActionType: ActionType(stringField(values, "actionType")),
		StrategyID: stringField(values, "strategyId"),
		UserID:     stringField(values, "userId"),
	}
	if raw := stringField(values, "parameters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &e.Parameters); err != nil {
			return nil, fmt.Errorf("%w: parameters: %v", ErrInvalidParameters, err)
		}
	}
	if raw := stringField(values, "triggeringIndicator"); raw != "" && raw != "null" {
		var trigger IndicatorUpdateEvent
		if err := json.Unmarshal([]byte(raw), &trigger); err != nil {
			return nil, fmt.Errorf("%w: triggeringIndicator: %v", ErrInvalidParameters, err)
		}
		e.TriggeringIndicator = &trigger
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// CacheMetadata is freshness and usage bookkeeping stored alongside a series.
type CacheMetadata struct {
	ProviderLastRefreshed string    `json:"providerLastRefreshed,omitempty"`
	FetchedAt             time.Time `json:"fetchedAt"`
	CachedAt              time.Time `json:"cachedAt"`
	LastAccessedAt        time.Time `json:"lastAccessedAt,omitempty"`
	AccessCount           int64     `json:"accessCount"`
	Priority              Priority  `json:"priority"`
	TTLSeconds            int       `json:"ttlSeconds"`
}

// CacheEntry is the cached provider payload plus metadata. Data is keyed by
// date-like strings, each holding the provider-native field map.
type CacheEntry struct {
	Data     map[string]map[string]interface{} `json:"data"`
	Metadata CacheMetadata                     `json:"metadata"`
}

// IndicatorValues is the latest/previous pair extracted from a cache entry.
// A nil pointer means the slot could not be extracted.
type IndicatorValues struct {
	Latest   *float64
	Previous *float64
}

func stringField(values map[string]interface{}, key string) string {
	v, ok := values[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
