package repository

import "github.com/okian/leadrank/pkg/logger"

// SQLOption configures a SQLStore.
type SQLOption func(*SQLStore)

// WithMaxOpenConns caps the connection pool. SQLite is always limited to a
// single connection.
func WithMaxOpenConns(n int) SQLOption {
	return func(s *SQLStore) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) SQLOption {
	return func(s *SQLStore) {
		if l != nil {
			s.logger = l
		}
	}
}
