package interceptors

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"screening-pipeline/internal/logging"
	"screening-pipeline/pkg/utils"
)

// requestID returns the caller's x-request-id or a fresh one
func requestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-request-id"); len(ids) > 0 && ids[0] != "" {
			return ids[0]
		}
	}
	return utils.GenerateRequestID()
}

func statusCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}
	return codes.Internal
}

// LoggingInterceptor returns a gRPC unary interceptor that logs each call
func LoggingInterceptor(logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		startTime := time.Now()
		ctx = logging.WithRequestID(ctx, requestID(ctx))
		resp, err := handler(ctx, req)

		fields := map[string]interface{}{
			"method":          info.FullMethod,
			"processing_time": time.Since(startTime).String(),
			"status_code":     statusCode(err).String(),
			"type":            "grpc_request",
		}
		if err != nil {
			fields["error"] = err.Error()
			logger.WithContext(ctx).Error("gRPC request failed", fields)
		} else {
			logger.WithContext(ctx).Debug("gRPC request completed", fields)
		}
		return resp, err
	}
}

// StreamLoggingInterceptor returns a gRPC streaming interceptor that logs each stream
func StreamLoggingInterceptor(logger logging.Logger) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		startTime := time.Now()
		err := handler(srv, ss)

		fields := map[string]interface{}{
			"request_id":      requestID(ss.Context()),
			"method":          info.FullMethod,
			"processing_time": time.Since(startTime).String(),
			"status_code":     statusCode(err).String(),
			"type":            "grpc_stream",
		}
		if err != nil && statusCode(err) != codes.Canceled {
			fields["error"] = err.Error()
			logger.Error("gRPC stream failed", fields)
		} else {
			logger.Debug("gRPC stream completed", fields)
		}
		return err
	}
}
