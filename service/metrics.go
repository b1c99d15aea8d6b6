package service

import (
	"context"
	"time"

	"github.com/c360/semflow/rpc"
)

// instrument records call counts and latency per surface and method, and
// logs failed calls.
func (fs *FlowService) instrument(surface string, next rpc.Handler) rpc.Handler {
	logger := fs.logger.With("surface", surface)
	return rpc.HandlerFunc(func(ctx context.Context, req *rpc.Request) (any, error) {
		start := time.Now()
		result, err := next.Handle(ctx, req)
		fs.metrics.RecordRPC(surface, req.Method, err, time.Since(start).Seconds())

		if err != nil {
			logger.Debug("RPC call failed", "method", req.Method, "error", err)
		}
		return result, err
	})
}
