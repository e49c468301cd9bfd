package attachment

import (
	"fmt"
	"math"
	"strings"
)

const (
	// DefaultFileMaxSize is the largest attachment accepted for publishing.
	DefaultFileMaxSize int64 = 10 * 1024 * 1024
	// DefaultChunkMaxSize is the raw byte size of a chunk before encoding.
	DefaultChunkMaxSize int64 = 200 * 1024
)

// VerifyPolicy selects what the Reconstructor checks before writing output.
type VerifyPolicy int

const (
	// VerifyContent checks the reassembled length and whole-file hash against
	// the manifest.
	VerifyContent VerifyPolicy = iota
	// TrustStore writes whatever the store returned.
	TrustStore
)

func (p VerifyPolicy) String() string {
	switch p {
	case VerifyContent:
		return "verify"
	case TrustStore:
		return "trust"
	default:
		return fmt.Sprintf("VerifyPolicy(%d)", int(p))
	}
}

// ParseVerifyPolicy accepts "verify" or "trust".
func ParseVerifyPolicy(s string) (VerifyPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "verify", "":
		return VerifyContent, nil
	case "trust":
		return TrustStore, nil
	}
	return 0, fmt.Errorf("unknown verify policy %q", s)
}

// Options configures a Publisher or Reconstructor
type Options struct {
	MaxFileSize  int64
	MaxChunkSize int64
	// Concurrency bounds in-flight chunk writes or reads. Values below 2 run
	// chunk I/O sequentially.
	Concurrency int
	Verify      VerifyPolicy
}

// DefaultOptions returns sequential, verifying options with default limits
func DefaultOptions() Options {
	return Options{
		MaxFileSize:  DefaultFileMaxSize,
		MaxChunkSize: DefaultChunkMaxSize,
		Concurrency:  1,
		Verify:       VerifyContent,
	}
}

// Validate reports option combinations no publish could satisfy
func (o Options) Validate() error {
	if o.MaxFileSize < 1 {
		return fmt.Errorf("max file size must be positive, got %d", o.MaxFileSize)
	}
	if o.MaxChunkSize < 1 {
		return fmt.Errorf("max chunk size must be positive, got %d", o.MaxChunkSize)
	}
	return o.validateRead()
}

// validateRead checks only the settings a Reconstructor uses
func (o Options) validateRead() error {
	if o.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", o.Concurrency)
	}
	switch o.Verify {
	case VerifyContent, TrustStore:
	default:
		return fmt.Errorf("unknown verify policy %s", o.Verify)
	}
	return nil
}

// ReadLimit is the number of bytes to read from a source that may hold up to
// maxSize bytes: one more than the limit, so oversize input is still seen.
func ReadLimit(maxSize int64) int64 {
	if maxSize >= math.MaxInt64 {
		return math.MaxInt64
	}
	return maxSize + 1
}

func (o Options) workers() int {
	if o.Concurrency < 1 {
		return 1
	}
	return o.Concurrency
}
