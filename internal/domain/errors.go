package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateJob        = errors.New("duplicate job")
	ErrQuotaExceeded       = errors.New("quota exceeded")
	ErrProviderRateLimited = errors.New("provider rate limited")
	ErrNoProcessor         = errors.New("no processor registered")
	ErrInvalidPayload      = errors.New("invalid payload")
	ErrJobNotCancellable   = errors.New("job not cancellable")
	ErrEngineStopped       = errors.New("engine stopped")
)
