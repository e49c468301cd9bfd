package attachment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maneesh/mailattach/internal/chunker"
)

var (
	ErrFileTooLarge   = chunker.ErrTooLarge
	ErrEmptyFile      = chunker.ErrEmpty
	ErrNotRegularFile = errors.New("attachment is not a file")
	ErrIO             = errors.New("attachment i/o failed")
	ErrStoreWrite     = errors.New("store write failed")
	ErrStoreRead      = errors.New("store read failed")
	// ErrNotFound is returned by stores for handles with no record.
	ErrNotFound  = errors.New("record not found")
	ErrIntegrity = errors.New("reconstructed attachment does not match manifest")
	ErrCorrupt   = errors.New("chunk is not valid base64url")
	// ErrInvalidOptions is returned by every operation of a Publisher or
	// Reconstructor built from options that fail Validate.
	ErrInvalidOptions = errors.New("invalid attachment options")
	// ErrChunkOrder is returned when pre-split chunks are not in index order.
	ErrChunkOrder = errors.New("chunks out of order")
)

// Error reports which call failed. It matches both Kind and Err under errors.Is.
type Error struct {
	Op     string
	Path   string
	Handle string
	Kind   error
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Path != "" {
		fmt.Fprintf(&b, " %s", e.Path)
	}
	if e.Handle != "" {
		fmt.Fprintf(&b, " [%s]", e.Handle)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil && e.Err != e.Kind {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil || e.Err == e.Kind {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func pathError(op, path string, kind, err error) error {
	return &Error{Op: op, Path: path, Kind: kind, Err: err}
}

// storeError classifies a store failure. Not-found wins over the generic kind.
func storeError[H any](op string, handle H, kind, err error) error {
	if errors.Is(err, ErrNotFound) {
		kind = ErrNotFound
	}
	return &Error{Op: op, Handle: fmt.Sprint(handle), Kind: kind, Err: err}
}
