package core

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"estatecore/pkg/domain"
)

func TestNormalizeLockKeys(t *testing.T) {
	got := NormalizeLockKeys([]string{"property/P2", "", "agent/A1", "property/P2"})
	want := []string{"agent/A1", "property/P2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestLocalLockerFailMode(t *testing.T) {
	locker := NewLocalLocker(LockFail)
	ctx := context.Background()
	release, err := locker.Acquire(ctx, []string{"property/P1"})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	_, err = locker.Acquire(ctx, []string{"agent/A1", "property/P1"})
	var conflict domain.ConflictError
	if !errors.As(err, &conflict) || conflict.Key != "property/P1" {
		t.Fatalf("expected conflict on property/P1, got %v", err)
	}
	// The partially acquired key must have been released.
	again, err := locker.Acquire(ctx, []string{"agent/A1"})
	if err != nil {
		t.Fatalf("expected agent/A1 free after failed acquire: %v", err)
	}
	again()
	release()
	if _, err := locker.Acquire(ctx, []string{"property/P1"}); err != nil {
		t.Fatalf("expected key free after release: %v", err)
	}
}

func TestLocalLockerWaitMode(t *testing.T) {
	locker := NewLocalLocker("")
	if locker.Mode() != LockWait {
		t.Fatalf("expected default wait mode, got %s", locker.Mode())
	}
	release, err := locker.Acquire(context.Background(), []string{"shop/S1"})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Acquire(ctx, []string{"shop/S1"}); !errors.As(err, new(domain.ConflictError)) {
		t.Fatalf("expected conflict after deadline, got %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		rel, err := locker.Acquire(context.Background(), []string{"shop/S1"})
		if err == nil {
			rel()
		}
		acquired <- err
	}()
	time.Sleep(10 * time.Millisecond)
	release()
	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("waiter failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("waiter never acquired the key")
	}
}
