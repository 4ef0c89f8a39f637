package service

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DeviceLocks serialises reconciliation passes per device. A second pass on
// the same device waits until the first one has reported.
type DeviceLocks struct {
	mu    sync.Mutex
	locks map[string]*deviceLock
}

type deviceLock struct {
	sem  *semaphore.Weighted
	refs int
}

// NewDeviceLocks creates an empty lock table
func NewDeviceLocks() *DeviceLocks {
	return &DeviceLocks{locks: make(map[string]*deviceLock)}
}

// Lock blocks until the device is free or ctx is done. The returned func
// releases the device and must be called exactly once.
func (l *DeviceLocks) Lock(ctx context.Context, tid string) (func(), error) {
	key := strings.ToUpper(tid)

	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &deviceLock{sem: semaphore.NewWeighted(1)}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	if err := lock.sem.Acquire(ctx, 1); err != nil {
		l.release(key, lock, false)
		return nil, err
	}
	return func() { l.release(key, lock, true) }, nil
}

func (l *DeviceLocks) release(key string, lock *deviceLock, held bool) {
	if held {
		lock.sem.Release(1)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
}

// Held returns the number of devices with an active or waiting pass
func (l *DeviceLocks) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
