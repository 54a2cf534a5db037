package repository

import (
	"errors"

	"github.com/okian/pitwall/internal/domain/model"
)

// Sentinel kinds for ledger errors.
var (
	ErrNotFound     = model.ErrUnitNotFound
	ErrRunNotFound  = errors.New("run not found")
	ErrInvalidState = errors.New("invalid unit state")
	ErrClosed       = errors.New("ledger closed")
)
