package migrerror

import (
	"fmt"
)

const (
	MIG_UNEXPECTED        = "MIGU"
	MIG_CODEC_ERROR       = "MIGC"
	MIG_TRANSFER_ERROR    = "MIGT"
	MIG_ILLEGAL_STATE     = "MIGS"
	MIG_UNKNOWN_OPERATION = "MIGO"
	MIG_UNKNOWN_SERVICE   = "MIGN"
	MIG_REGISTRY_ERROR    = "MIGR"
	MIG_INVALID_REQUEST   = "MIGI"
	MIG_OBJECT_NOT_EXIST  = "MIGE"
	MIG_TRANSPORT_ERROR   = "MIGP"
)

var existingErrorCodeMap = map[string]string{
	MIG_UNEXPECTED:        "unexpected error",
	MIG_CODEC_ERROR:       "malformed binary payload",
	MIG_TRANSFER_ERROR:    "migration transfer failed",
	MIG_ILLEGAL_STATE:     "illegal state",
	MIG_UNKNOWN_OPERATION: "unknown operation type",
	MIG_UNKNOWN_SERVICE:   "unknown service",
	MIG_REGISTRY_ERROR:    "active migration registry error",
	MIG_INVALID_REQUEST:   "invalid request",
	MIG_OBJECT_NOT_EXIST:  "object does not exist",
	MIG_TRANSPORT_ERROR:   "transport error",
}

// GetMessageByCode returns the human readable name of an error code.
func GetMessageByCode(errorCode string) string {
	rep, ok := existingErrorCodeMap[errorCode]
	if ok {
		return rep
	}
	return "Unexpected error"
}

type MigError struct {
	Err error

	ErrorCode string
}

var _ error = &MigError{}

// New creates a MigError with the given code and message.
func New(errorCode string, errorMsg string) *MigError {
	return &MigError{
		Err:       fmt.Errorf("%s", errorMsg),
		ErrorCode: errorCode,
	}
}

// Newf creates a MigError with the given code and a formatted message.
// Wrapped errors (%w) stay reachable through errors.Is and errors.As.
func Newf(errorCode string, format string, a ...any) *MigError {
	return &MigError{
		Err:       fmt.Errorf(format, a...),
		ErrorCode: errorCode,
	}
}

// NewByCode creates a MigError whose message is the description of the code.
func NewByCode(errorCode string) *MigError {
	return New(errorCode, GetMessageByCode(errorCode))
}

func (er *MigError) Error() string {
	return er.Err.Error()
}

func (er *MigError) Unwrap() error {
	return er.Err
}

// Is matches any MigError carrying the same code.
func (er *MigError) Is(target error) bool {
	t, ok := target.(*MigError)
	if !ok {
		return false
	}
	return t.ErrorCode == er.ErrorCode
}

// Code extracts the error code of the first MigError in err's chain.
func Code(err error) string {
	for err != nil {
		if me, ok := err.(*MigError); ok {
			return me.ErrorCode
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ""
}
