package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/order-lifecycle/internal/core/domain"
	"github.com/rl1809/order-lifecycle/internal/core/service"
)

// errorCode maps lifecycle errors to the canonical status codes shared by
// the HTTP and gRPC surfaces.
func errorCode(err error) codes.Code {
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		return codes.NotFound
	case errors.Is(err, service.ErrInvalidOrderState):
		return codes.FailedPrecondition
	case errors.Is(err, service.ErrValidation), errors.Is(err, domain.ErrInvalidPageToken):
		return codes.InvalidArgument
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

func httpStatus(code codes.Code) int {
	switch code {
	case codes.NotFound:
		return http.StatusNotFound
	case codes.FailedPrecondition:
		return http.StatusPreconditionFailed
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Canceled:
		return http.StatusRequestTimeout
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides internal error details from callers.
func publicMessage(ctx context.Context, code codes.Code, err error) string {
	if code == codes.Internal {
		slog.ErrorContext(ctx, "internal error", "error", err)
		return "internal error"
	}
	return err.Error()
}

// UnaryErrorInterceptor converts lifecycle errors into gRPC statuses.
func UnaryErrorInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err == nil {
		return resp, nil
	}
	if _, ok := status.FromError(err); ok {
		return nil, err
	}

	code := errorCode(err)
	return nil, status.Error(code, publicMessage(ctx, code, err))
}
