package timelock

import "go.uber.org/zap"

type (
	// Option adjusts how a Store or Engine is constructed
	Option func(*settings)

	settings struct {
		logger  *zap.Logger
		clock   Clock
		metrics *Metrics
		book    ID
	}
)

// WithLogger routes diagnostic output to the given logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces the wall clock used for window checks and event
// timestamps. Only the Engine reads it
func WithClock(clock Clock) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetrics records operations and appends on m
func WithMetrics(m *Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

// WithBook selects which Book an Engine operates on. Only the Engine reads it
func WithBook(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.book = ID(name)
		}
	}
}

func applyOptions(opts []Option) settings {
	s := settings{
		logger: zap.NewNop(),
		clock:  SystemClock{},
		book:   DefaultBook,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
