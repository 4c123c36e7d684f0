package state

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"shardbft/types"
)

// AttemptFunc 执行一次对账
type AttemptFunc func(ctx context.Context) (*types.Block, error)

// NewLinearBackoff 第n次重试前等待n*interval，总共最多尝试maxAttempts次
func NewLinearBackoff(interval time.Duration, maxAttempts int) retry.Backoff {
	var attempt int64
	linear := retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return time.Duration(attempt) * interval, false
	})
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return retry.WithMaxRetries(uint64(maxAttempts-1), linear)
}

// Reconcile 反复执行attempt直到成功、遇到不可重试的错误或者次数用完
// 次数用完时返回ErrReconcileTimeout，ctx取消时返回ctx.Err()
func Reconcile(ctx context.Context, backoff retry.Backoff, attempt AttemptFunc) (*types.Block, error) {
	var block *types.Block
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		b, err := attempt(ctx)
		if err != nil {
			if IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		block = b
		return nil
	})
	switch {
	case err == nil:
		return block, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case IsRetryable(err):
		return nil, ErrReconcileTimeout
	default:
		return nil, err
	}
}
