package contract

import "errors"

var (
	ErrRunStart        = errors.New("generation run failed to start")
	ErrRunFailed       = errors.New("generation run failed")
	ErrSchemaViolation = errors.New("engine response violates schema")
	ErrValidation      = errors.New("validation failed")
)
