package domain

import "errors"

var (
	// ErrUnauthenticated covers a missing credential and any failure to resolve one upstream.
	ErrUnauthenticated  = errors.New("not authenticated")
	ErrNoChannelLinked  = errors.New("no channel linked")
	ErrStreamerNotFound = errors.New("streamer not found")
	ErrInvalidEvent     = errors.New("invalid stream event")
	ErrNoDeliveryTarget = errors.New("no delivery target configured")
)
