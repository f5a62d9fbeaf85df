package grpcapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ai-media-hub-service/internal/observability/logging"
	"ai-media-hub-service/internal/observability/metrics"
)

// observe records a finished call. Server side failures are reported to
// Sentry; health probes log at trace level.
func observe(m *metrics.Metrics, method string, start time.Time, err error) {
	duration := time.Since(start)
	code := status.Code(err)
	m.RecordGRPC(method, code.String(), duration.Seconds())

	logger := logging.WithComponent("grpc")
	ev := logger.Debug()
	switch {
	case code == codes.Internal || code == codes.Unknown:
		ev = logger.Error().Err(err)
		logging.Capture(err, map[string]string{"component": "grpc", "method": method})
	case method == healthCheckMethod || method == healthWatchMethod:
		ev = logger.Trace()
	}
	ev.Str("method", method).
		Str("code", code.String()).
		Dur("duration", duration).
		Msg("gRPC call completed")
}

// recovered turns a handler panic into an Internal status.
func recovered(method string, r any) error {
	return status.Errorf(codes.Internal, "panic in %s: %v", method, r)
}

func unaryInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				resp, err = nil, recovered(info.FullMethod, r)
			}
			observe(m, info.FullMethod, start, err)
		}()
		return handler(ctx, req)
	}
}

func streamInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				err = recovered(info.FullMethod, r)
			}
			observe(m, info.FullMethod, start, err)
		}()
		return handler(srv, ss)
	}
}
