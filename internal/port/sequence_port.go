package port

import "context"

type SequenceRepository interface {
	// Next atomically increments and returns the order counter of the given
	// year. The counter is the source of truth for issued sequences: two
	// concurrent callers in the same year never observe the same value, and
	// the counter restarts at 1 with each new year.
	Next(ctx context.Context, year int) (int64, error)
}
