// Package health reports service health over the standard gRPC health
// protocol and to the HTTP /health endpoint.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// MonitorService is the health service name reported for the queue monitor.
const MonitorService = "chatqueue.Monitor"

// Reporter tracks whether the queue monitor is serving.
type Reporter struct {
	srv     *health.Server
	serving atomic.Bool
}

// NewReporter creates a reporter that starts out not serving.
func NewReporter() *Reporter {
	r := &Reporter{srv: health.NewServer()}
	r.SetServing(false)
	return r
}

// SetServing records the monitor state.
func (r *Reporter) SetServing(serving bool) {
	r.serving.Store(serving)
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	r.srv.SetServingStatus("", status)
	r.srv.SetServingStatus(MonitorService, status)
}

// Serving reports the last recorded state.
func (r *Reporter) Serving() bool {
	return r.serving.Load()
}

// Shutdown marks every service NOT_SERVING permanently.
func (r *Reporter) Shutdown() {
	r.serving.Store(false)
	r.srv.Shutdown()
}

// NewGRPCServer returns a gRPC server with the health service registered.
func (r *Reporter) NewGRPCServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    2 * time.Minute,
			Timeout: 10 * time.Second,
		}),
	)
	healthpb.RegisterHealthServer(srv, r.srv)
	return srv
}

// Serve listens on addr and serves gRPC health checks until ctx is cancelled.
func (r *Reporter) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	srv := r.NewGRPCServer()

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	slog.Info("gRPC health server listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve grpc: %w", err)
	}
	return nil
}
