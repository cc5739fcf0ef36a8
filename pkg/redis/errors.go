package redis

import "errors"

var (
	// Connection errors
	ErrEmptyConnectionURL           = errors.New("empty redis connection URL")
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")
	ErrRedisNotReady                = errors.New("redis did not answer ping before the retry budget ran out")

	ErrHealthcheckFailed = errors.New("redis healthcheck failed")
)
