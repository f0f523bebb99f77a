package models

import "errors"

// Precondition violations. Nothing is applied when one of these is returned.
var (
	ErrDroneUnavailable       = errors.New("drone unavailable")
	ErrCapacityExceeded       = errors.New("capacity exceeded")
	ErrDroneBusy              = errors.New("drone busy")
	ErrInvalidTransition      = errors.New("invalid drone status transition")
	ErrOrderNotProcessing     = errors.New("order is not processing")
	ErrRequestAlreadyResolved = errors.New("request already resolved")
	ErrReasonRequired         = errors.New("reason required")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrPermissionDenied       = errors.New("permission denied")
)

// Missing entities.
var (
	ErrDroneNotFound      = errors.New("drone not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrRequestNotFound    = errors.New("registration request not found")
	ErrDeliveryNotFound   = errors.New("delivery not found")
	ErrRestaurantNotFound = errors.New("restaurant not found")
)

// ErrOrderService marks a failure of the order service collaborator.
var ErrOrderService = errors.New("order service unavailable")
