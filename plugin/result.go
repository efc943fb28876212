package plugin

import (
	"fmt"
	"strings"

	"github.com/pbosetti/mads-plugin/errors"
)

// ReturnType is the status returned by every data operation of a role contract.
// Values are ordered by severity; free-text detail travels through LastError.
type ReturnType int

const (
	// Success means the operation completed and any output is valid
	Success ReturnType = iota
	// Retry means no data was available; output is empty and the caller may try again
	Retry
	// Warning means a degraded but usable result
	Warning
	// Error means the operation failed but the instance remains usable
	Error
	// Critical means the instance must not be used again
	Critical
)

var returnTypeNames = [...]string{"success", "retry", "warning", "error", "critical"}

// String returns the lowercase name of the status
func (r ReturnType) String() string {
	if !r.Valid() {
		return "unknown"
	}
	return returnTypeNames[r]
}

// Valid reports whether r is one of the five defined statuses
func (r ReturnType) Valid() bool {
	return r >= Success && r <= Critical
}

// Forwardable reports whether an output produced with this status may go downstream
func (r ReturnType) Forwardable() bool {
	return r == Success || r == Warning
}

// Failed reports whether the status is Error or worse
func (r ReturnType) Failed() bool {
	return r >= Error
}

// ParseReturnType converts a status name, case-insensitive, back into a ReturnType
func ParseReturnType(s string) (ReturnType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range returnTypeNames {
		if n == name {
			return ReturnType(i), nil
		}
	}
	return Error, errors.WrapInvalid(fmt.Errorf("%w: unknown status %q", errors.ErrInvalidData, s),
		"ReturnType", "Parse", "status lookup")
}

// MarshalText implements encoding.TextMarshaler
func (r ReturnType) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: status %d", errors.ErrInvalidData, int(r)),
			"ReturnType", "MarshalText", "status validation")
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (r *ReturnType) UnmarshalText(text []byte) error {
	parsed, err := ParseReturnType(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Worst returns the most severe of the given statuses
func Worst(first ReturnType, rest ...ReturnType) ReturnType {
	worst := first
	for _, r := range rest {
		if r > worst {
			worst = r
		}
	}
	return worst
}

// StatusOf maps a classified Go error onto the status taxonomy.
//
//	nil             -> Success
//	ErrNoData       -> Retry
//	ErrPartialData  -> Warning
//	fatal class     -> Critical
//	anything else   -> Error
//
// Only classification counts: an unclassified error reads as Error whatever
// its text says.
func StatusOf(err error) ReturnType {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, errors.ErrNoData):
		return Retry
	case errors.Is(err, errors.ErrPartialData):
		return Warning
	case errors.IsClassifiedFatal(err):
		return Critical
	default:
		return Error
	}
}
