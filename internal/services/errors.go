package services

import (
	"context"
	"errors"

	"github.com/Lllllllleong/unbundler/internal/flatten"
	"github.com/Lllllllleong/unbundler/internal/models"
)

// ErrorKind groups per-item failures by how the loop should react to them.
type ErrorKind string

const (
	KindNone      ErrorKind = ""
	KindNotFound  ErrorKind = "not_found"
	KindTransfer  ErrorKind = "transfer"
	KindMalformed ErrorKind = "malformed"
	KindLocalIO   ErrorKind = "local_io"
	KindCanceled  ErrorKind = "canceled"
	KindUnknown   ErrorKind = "unknown"
)

// Classify maps an error onto the failure taxonomy.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, models.ErrLocalIO):
		return KindLocalIO
	case errors.Is(err, flatten.ErrMalformedDocument):
		return KindMalformed
	case errors.Is(err, models.ErrNotFound):
		return KindNotFound
	case errors.Is(err, models.ErrTransfer):
		return KindTransfer
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	}
	return KindUnknown
}

// Transient reports whether redelivery could plausibly succeed.
func (k ErrorKind) Transient() bool {
	switch k {
	case KindTransfer, KindNotFound, KindCanceled, KindUnknown:
		return true
	}
	return false
}
