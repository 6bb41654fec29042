package whisper

import (
	"context"

	"golang.org/x/sync/semaphore"
)

type limitedEngine struct {
	next Engine
	sem  *semaphore.Weighted
}

// Limit caps the number of concurrent Transcribe calls on next. With n <= 1
// invocations are fully serialized.
func Limit(next Engine, n int) Engine {
	if n < 1 {
		n = 1
	}
	return &limitedEngine{next: next, sem: semaphore.NewWeighted(int64(n))}
}

func (l *limitedEngine) Transcribe(ctx context.Context, req Request) (Result, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	defer l.sem.Release(1)
	return l.next.Transcribe(ctx, req)
}
