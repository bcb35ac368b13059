package models

import "errors"

// Common validation and processing errors
var (
	ErrMissingField      = errors.New("required field is missing")
	ErrInvalidParameters = errors.New("parameters are not valid JSON")
	ErrUnknownBlockType  = errors.New("unknown block type")
	ErrUnknownOperator   = errors.New("unknown operator")
	ErrUnknownActionType = errors.New("unknown action type")
	ErrConditionNotFound = errors.New("condition not found")
	ErrStrategyNotFound  = errors.New("strategy not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrNoTradingAccount  = errors.New("user has no brokerage trading account")
	ErrOrderIncomplete   = errors.New("order parameters incomplete")
)
