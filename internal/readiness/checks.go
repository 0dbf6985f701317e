package readiness

import (
	"context"
	"fmt"
)

// Pinger is satisfied by the order DAO (SELECT 1).
type Pinger interface {
	Ping(ctx context.Context) error
}

// DepthReader is satisfied by every queue.Client.
type DepthReader interface {
	Depth(ctx context.Context) (int, error)
}

// PersistenceCheck pings the database.
func PersistenceCheck(p Pinger) Check {
	return Check{Name: CheckPersistence, Fn: func(ctx context.Context) (string, error) {
		if err := p.Ping(ctx); err != nil {
			return "", err
		}
		return "ok", nil
	}}
}

// QueueCheck asks the queue for its depth.
func QueueCheck(q DepthReader) Check {
	return Check{Name: CheckQueue, Fn: func(ctx context.Context) (string, error) {
		depth, err := q.Depth(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("depth=%d", depth), nil
	}}
}
