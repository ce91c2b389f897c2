package isomp4

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions that carry no further context.
var (
	ErrDataBufferNotFound          = errors.New("isomp4: data buffer not found")
	ErrNaluLengthDelimitedReadFail = errors.New("isomp4: failed to read NAL unit length-delimited header")
	ErrUnsupportedMediaType        = errors.New("isomp4: unsupported media type")
)

// InvalidDataError reports malformed box data that fails a structural check.
type InvalidDataError struct {
	Reason string
}

func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("isomp4: invalid data: %s", e.Reason)
}

// BoxNotFoundError reports a missing required top-level or container box.
type BoxNotFoundError struct {
	Box BoxType
}

func (e *BoxNotFoundError) Error() string {
	return fmt.Sprintf("isomp4: box %q not found", e.Box)
}

// Box2NotFoundError reports a missing box, expressed as "neither A nor B
// found" when either would have satisfied the caller.
type Box2NotFoundError struct {
	Box1, Box2 BoxType
}

func (e *Box2NotFoundError) Error() string {
	return fmt.Sprintf("isomp4: neither %q nor %q found", e.Box1, e.Box2)
}

// BoxInStblNotFoundError reports a missing required child of a sample
// table box for a specific track.
type BoxInStblNotFoundError struct {
	TrackID uint32
	Box     BoxType
}

func (e *BoxInStblNotFoundError) Error() string {
	return fmt.Sprintf("isomp4: box %q not found in stbl of track %d", e.Box, e.TrackID)
}

// EntryInStblNotFoundError reports a missing sample-table entry addressed
// by index (e.g. a chunk offset or sample-to-chunk run beyond the table).
type EntryInStblNotFoundError struct {
	TrackID uint32
	Box     BoxType
	Index   uint32
}

func (e *EntryInStblNotFoundError) Error() string {
	return fmt.Sprintf("isomp4: entry %d not found in %q of track %d", e.Index, e.Box, e.TrackID)
}

// UnsupportedBoxVersionError reports a FullBox version this package does
// not know how to interpret.
type UnsupportedBoxVersionError struct {
	Box     BoxType
	Version uint8
}

func (e *UnsupportedBoxVersionError) Error() string {
	return fmt.Sprintf("isomp4: unsupported version %d for box %q", e.Version, e.Box)
}

// TrakNotFoundError reports a reference to a track ID absent from moov/moof.
type TrakNotFoundError struct {
	TrackID uint32
}

func (e *TrakNotFoundError) Error() string {
	return fmt.Sprintf("isomp4: track %d not found", e.TrackID)
}

// DataStorageError wraps an error returned by a DataStorage implementation.
type DataStorageError struct {
	Op  string
	Err error
}

func (e *DataStorageError) Error() string {
	return fmt.Sprintf("isomp4: data storage %s: %v", e.Op, e.Err)
}

func (e *DataStorageError) Unwrap() error { return e.Err }
