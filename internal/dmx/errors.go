package dmx

import "fmt"

// ConfigError rejects a fixture definition at registration: channel
// count, universe id or start channel outside the DMX512 bounds. The
// fixture stays unregistered.
type ConfigError struct {
	Fixture string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("fixture %s: %s", e.Fixture, e.Reason)
}

// OverlapError reports a placement collision that neither auto
// assignment nor priority arbitration could resolve.
type OverlapError struct {
	Fixture  string
	Universe uint16
	Start    int
	Channels int
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("fixture %s: channels %d-%d already taken in universe %d",
		e.Fixture, e.Start, e.Start+e.Channels-1, e.Universe)
}

// CapacityError reports that no universe below the configured limit can
// hold the fixture. The fixture stays unregistered; the caller decides
// whether to retry with different parameters.
type CapacityError struct {
	Fixture  string
	Channels int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("fixture %s: no universe with %d free channels", e.Fixture, e.Channels)
}

// TransportError wraps a send failure for one universe. Transport errors
// are transient: the controller logs them and leaves the universe dirty
// so the frame goes out on a later tick.
type TransportError struct {
	Universe uint16
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("universe %d: send failed: %v", e.Universe, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
