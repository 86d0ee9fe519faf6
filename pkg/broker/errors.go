package broker

import "fmt"

// OpenError is surfaced to subscribers when the device library cannot be
// opened. The broker stays Disconnected until the health monitor retries.
type OpenError struct {
	Err error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("failed to open device connection: %v", e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// CloseError is logged when closing a handle fails. It never reaches
// subscribers.
type CloseError struct {
	Err error
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("failed to close device connection: %v", e.Err)
}

func (e *CloseError) Unwrap() error { return e.Err }

// ListenerError is logged when a subscriber panics during fan-out.
type ListenerError struct {
	Subscription string
	Value        any
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("subscriber %s panicked: %v", e.Subscription, e.Value)
}

// DeviceError wraps an error reported by the device library itself.
type DeviceError struct {
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device error: %v", e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }
