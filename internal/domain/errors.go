package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the store
	ErrJobNotFound = errors.New("job not found")

	// ErrNoValidNumbers is returned when no recipient survives normalization
	ErrNoValidNumbers = errors.New("no valid numbers found")

	// ErrEmptyMessage is returned when a job has neither text nor media
	ErrEmptyMessage = errors.New("message or media is required")

	// ErrSessionNotReady is returned when the WhatsApp session cannot send yet
	ErrSessionNotReady = errors.New("whatsapp session is not ready")

	// ErrQueueFull is returned when the dispatch queue cannot take another job
	ErrQueueFull = errors.New("dispatch queue is full")

	// ErrJobFinished is returned when canceling a job that already ended
	ErrJobFinished = errors.New("job already finished")

	// ErrDispatcherStopped is returned when submitting after shutdown began
	ErrDispatcherStopped = errors.New("dispatcher is not running")
)
