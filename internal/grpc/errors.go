package grpcserver

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"droneDeliveryCoordinator/internal/auth"
	"droneDeliveryCoordinator/models"
)

// toStatus maps domain errors onto gRPC codes. Errors that already carry a status pass through.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeOf(err), err.Error())
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return codes.Unauthenticated
	case errors.Is(err, models.ErrPermissionDenied):
		return codes.PermissionDenied
	case errors.Is(err, models.ErrDroneNotFound),
		errors.Is(err, models.ErrOrderNotFound),
		errors.Is(err, models.ErrRequestNotFound),
		errors.Is(err, models.ErrDeliveryNotFound),
		errors.Is(err, models.ErrRestaurantNotFound):
		return codes.NotFound
	case errors.Is(err, models.ErrInvalidArgument), errors.Is(err, models.ErrReasonRequired):
		return codes.InvalidArgument
	case errors.Is(err, models.ErrDroneUnavailable),
		errors.Is(err, models.ErrCapacityExceeded),
		errors.Is(err, models.ErrDroneBusy),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrOrderNotProcessing),
		errors.Is(err, models.ErrRequestAlreadyResolved):
		return codes.FailedPrecondition
	case errors.Is(err, models.ErrOrderService):
		return codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	}
	return codes.Internal
}
