package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
	"go.uber.org/zap"

	"github.com/selivandex/advisor/pkg/logger"
)

// CycleLock guards the single-writer batch processes (learning cycle,
// calibration analyzer). The +0.1/-0.1 weight adjustments are not idempotent
// under concurrent application, so overlap must be prevented, not tolerated:
// a second instance that finds the lock held exits immediately.
type CycleLock struct {
	lockManager *redlock.RedLock
	name        string
	lockKey     string
	ttl         time.Duration
	locked      bool
}

// NewCycleLock creates an advisory lock for the named writer
func NewCycleLock(lockManager *redlock.RedLock, name string, ttl time.Duration) *CycleLock {
	return &CycleLock{
		lockManager: lockManager,
		name:        name,
		lockKey:     fmt.Sprintf("advisor:lock:%s", name),
		ttl:         ttl,
	}
}

// TryAcquire attempts to acquire the lock. Returns false when another
// instance holds it; that is not an error condition for the caller beyond
// aborting its run.
func (cl *CycleLock) TryAcquire(ctx context.Context) (bool, error) {
	expiry, err := cl.lockManager.Lock(ctx, cl.lockKey, cl.ttl)
	if err != nil {
		logger.Debug("lock already held by another instance",
			zap.String("name", cl.name),
			zap.String("lock_key", cl.lockKey),
		)
		return false, nil
	}

	if expiry <= 0 {
		return false, fmt.Errorf("failed to acquire lock %s: invalid expiry %v", cl.name, expiry)
	}

	cl.locked = true

	logger.Info("advisory lock acquired",
		zap.String("name", cl.name),
		zap.Duration("ttl", cl.ttl),
		zap.Duration("expiry", expiry),
	)

	return true, nil
}

// Release releases the lock
func (cl *CycleLock) Release(ctx context.Context) error {
	if !cl.locked {
		return nil
	}

	if err := cl.lockManager.UnLock(ctx, cl.lockKey); err != nil {
		logger.Warn("failed to release lock (may have already expired)",
			zap.String("name", cl.name),
			zap.Error(err),
		)
		// Lock may have expired naturally; don't propagate
	} else {
		logger.Info("advisory lock released", zap.String("name", cl.name))
	}

	cl.locked = false
	return nil
}
