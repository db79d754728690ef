package models

import "errors"

// Доменные ошибки. Слои оборачивают их через fmt.Errorf("%s: %w", op, err),
// HTTP-слой сопоставляет их со статусами через errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrNotFound            = errors.New("not found")
	ErrLimitExceeded       = errors.New("habit limit exceeded")
	ErrPremiumRequired     = errors.New("premium subscription required")
	ErrConflict            = errors.New("conflict")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUnknownPlan         = errors.New("unknown plan")
	ErrMetadataCorrupt     = errors.New("payment metadata corrupt")
	ErrAlreadySubscribed   = errors.New("payment already succeeded")
)
