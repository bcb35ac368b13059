package evaluator

import (
	"context"
	"math"

	"github.com/robert-nguyenn/strategy-engine/internal/fingerprint"
	"github.com/robert-nguyenn/strategy-engine/internal/models"
	"github.com/robert-nguyenn/strategy-engine/pkg/logger"
)

// equalsEpsilon is the tolerance for EQUALS / NOT_EQUALS comparisons.
const equalsEpsilon = 1e-4

// operand is a resolved comparison side. previous may be nil, which fails
// any cross operator closed.
type operand struct {
	current  float64
	previous *float64
}

// evaluateCondition resolves both operands and applies the operator.
// Everything fails closed: missing values, unresolvable targets and unknown
// operators all yield false, never an error.
func (e *Evaluator) evaluateCondition(ctx context.Context, cond *models.Condition, ec *EvaluationContext) bool {
	left, ok := e.resolveIndicatorOperand(ctx, fingerprint.ForCondition(cond), cond.DataKey, ec)
	if !ok {
		return false
	}

	right, ok := e.resolveTarget(ctx, cond, ec)
	if !ok {
		return false
	}

	switch cond.Operator {
	case models.OpGreaterThan:
		return left.current > right.current
	case models.OpLessThan:
		return left.current < right.current
	case models.OpGreaterThanOrEqual:
		return left.current >= right.current
	case models.OpLessThanOrEqual:
		return left.current <= right.current
	case models.OpEquals:
		return math.Abs(left.current-right.current) < equalsEpsilon
	case models.OpNotEquals:
		return math.Abs(left.current-right.current) >= equalsEpsilon
	case models.OpCrossesAbove:
		if left.previous == nil || right.previous == nil {
			return false
		}
		return *left.previous <= *right.previous && left.current > right.current
	case models.OpCrossesBelow:
		if left.previous == nil || right.previous == nil {
			return false
		}
		return *left.previous >= *right.previous && left.current < right.current
	default:
		logger.Warn("Unknown condition operator",
			logger.ErrorField(models.ErrUnknownOperator),
			logger.String("condition_id", cond.ID),
			logger.String("operator", string(cond.Operator)),
		)
		return false
	}
}

// resolveTarget resolves the right side of a comparison: another condition's
// indicator when targetIndicatorId is set, otherwise the static targetValue.
// A static value supplies equal current/previous so cross operators stay
// well-defined against constants. A condition with neither side set cannot
// be evaluated and fails closed.
func (e *Evaluator) resolveTarget(ctx context.Context, cond *models.Condition, ec *EvaluationContext) (operand, bool) {
	if cond.TargetIndicatorID != "" {
		target, err := e.store.GetCondition(ctx, cond.TargetIndicatorID)
		if err != nil {
			logger.Warn("Failed to resolve target indicator condition",
				logger.ErrorField(err),
				logger.String("condition_id", cond.ID),
				logger.String("target_indicator_id", cond.TargetIndicatorID),
			)
			return operand{}, false
		}
		return e.resolveIndicatorOperand(ctx, fingerprint.ForCondition(target), target.DataKey, ec)
	}

	if cond.TargetValue != nil {
		v := *cond.TargetValue
		return operand{current: v, previous: &v}, true
	}

	logger.Warn("Condition has neither targetValue nor targetIndicatorId",
		logger.String("condition_id", cond.ID),
	)
	return operand{}, false
}

// resolveIndicatorOperand looks an indicator up in the run's pre-fetched
// values, falling back to a single cache read for fingerprints the static
// walk could not see (target indicators of other conditions).
func (e *Evaluator) resolveIndicatorOperand(ctx context.Context, fp, dataKey string, ec *EvaluationContext) (operand, bool) {
	values, ok := ec.IndicatorValues[fp]
	if !ok {
		entry, hit := e.cache.Get(ctx, fp)
		if !hit {
			return operand{}, false
		}
		values = ExtractValues(entry, dataKey)
		ec.IndicatorValues[fp] = values
	}
	if values.Latest == nil {
		return operand{}, false
	}
	return operand{current: *values.Latest, previous: values.Previous}, true
}
