package config

import "errors"

var (
	// ErrInvalidConfig wraps every problem Validate finds.
	ErrInvalidConfig = errors.New("config: invalid")
	// ErrLoadConfig wraps failures reading the config file, the environment
	// or decoding them into Config.
	ErrLoadConfig = errors.New("config: load failed")
)
