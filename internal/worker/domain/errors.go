package domain

import "errors"

// Error kinds for a single message. Each one ends in a permanent rejection.
var (
	// ErrConfig is returned when the signing secret or callback URL is not configured
	ErrConfig = errors.New("configuration error")

	// ErrProcessing is returned when the job body is malformed or inference fails
	ErrProcessing = errors.New("processing error")

	// ErrDelivery is returned when the callback fails at the network level or with a non-2xx status
	ErrDelivery = errors.New("delivery error")
)
