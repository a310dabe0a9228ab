package core

import (
	"context"
	"sort"
	"sync"

	"estatecore/pkg/domain"
)

// Locker grants exclusive access to live entity keys for the duration of a
// unit of work. Acquire either takes every key or none of them.
type Locker interface {
	Acquire(ctx context.Context, keys []string) (release func(), err error)
}

// LockMode selects how a LocalLocker treats a key held by another transaction.
type LockMode string

const (
	// LockWait blocks until the key is released or the context ends.
	LockWait LockMode = "wait"
	// LockFail returns a ConflictError immediately.
	LockFail LockMode = "fail"
)

// LocalLocker serialises transactions touching the same entity within one process.
type LocalLocker struct {
	mode LockMode
	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewLocalLocker constructs an in-process locker. An empty mode means LockWait.
func NewLocalLocker(mode LockMode) *LocalLocker {
	if mode == "" {
		mode = LockWait
	}
	return &LocalLocker{mode: mode, held: make(map[string]chan struct{})}
}

// Mode reports the contention behaviour.
func (l *LocalLocker) Mode() LockMode { return l.mode }

// Acquire takes the keys in sorted order so concurrent callers cannot deadlock.
func (l *LocalLocker) Acquire(ctx context.Context, keys []string) (func(), error) {
	keys = NormalizeLockKeys(keys)
	acquired := make([]string, 0, len(keys))
	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for _, key := range acquired {
			if ch, ok := l.held[key]; ok {
				close(ch)
				delete(l.held, key)
			}
		}
		acquired = nil
	}
	for _, key := range keys {
		if err := l.lockOne(ctx, key); err != nil {
			release()
			return func() {}, err
		}
		acquired = append(acquired, key)
	}
	return release, nil
}

func (l *LocalLocker) lockOne(ctx context.Context, key string) error {
	for {
		l.mu.Lock()
		ch, busy := l.held[key]
		if !busy {
			l.held[key] = make(chan struct{})
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()
		if l.mode == LockFail {
			return domain.ConflictError{Key: key}
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return domain.ConflictError{Key: key}
		}
	}
}

// NormalizeLockKeys drops empty and duplicate keys and sorts the remainder.
func NormalizeLockKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, []string) (func(), error) { return func() {}, nil }
