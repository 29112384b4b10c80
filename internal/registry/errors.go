package registry

import "fmt"

// SessionError means the landing page could not be fetched or no longer has
// the expected layout. Nothing else can run without a session.
type SessionError struct {
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("acquire session: %v", e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// RegionResolutionError means the cadastral municipalities of a region could
// not be resolved.
type RegionResolutionError struct {
	Region string
	Err    error
}

func (e *RegionResolutionError) Error() string {
	return fmt.Sprintf("resolve sub-regions of %s: %v", e.Region, e.Err)
}

func (e *RegionResolutionError) Unwrap() error {
	return e.Err
}

// FetchError means the data query for a (region, sub-region) pair failed at
// the transport level or with a non-2xx status. Status is 0 when no response
// was received.
type FetchError struct {
	Region    string
	SubRegion string
	Status    int
	Err       error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s/%s: status %d: %v", e.Region, e.SubRegion, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s/%s: %v", e.Region, e.SubRegion, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError means the registry answered with a body that does not have the
// expected shape.
type ParseError struct {
	Region    string
	SubRegion string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s/%s: %v", e.Region, e.SubRegion, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
