// Package limits provides centralized size limits for the OTRDATA protocol.
// This ensures consistent validation across different components of the system.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxRecordValue is the largest value a TLV record can carry (uint16 length field).
	MaxRecordValue = 65535

	// RecordHeaderSize is the size of the type and length fields of a TLV record.
	RecordHeaderSize = 4

	// MaxHeaderBlock is the maximum size of a tunneled message header block.
	MaxHeaderBlock = 8192

	// MaxChunkSize is the largest chunk a range fetch may ask for. A response
	// carrying a full chunk plus a maximal header block still fits in one record.
	MaxChunkSize = MaxRecordValue - MaxHeaderBlock

	// MinChunkSize is the smallest accepted chunk size.
	MinChunkSize = 1

	// DefaultChunkSize is the chunk size used when none is configured (16 KiB).
	DefaultChunkSize = 16384

	// MaxFileLength is the largest file an incoming transfer will buffer (1GB).
	// This prevents memory exhaustion from a hostile offer.
	MaxFileLength = 1 << 30

	// MaxFileNameLength is the maximum accepted file name length in bytes.
	MaxFileNameLength = 255
)

var (
	// ErrEmpty indicates an empty value was provided where content is required.
	ErrEmpty = errors.New("empty value")

	// ErrTooLarge indicates a value exceeds its maximum size.
	ErrTooLarge = errors.New("value too large")

	// ErrOutOfBounds indicates a numeric setting is outside its accepted range.
	ErrOutOfBounds = errors.New("value out of bounds")
)

// ValidateSize validates data against the specified maximum size.
// Empty data is accepted; callers that require content check for it separately.
func ValidateSize(data []byte, maxSize int) error {
	if len(data) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrTooLarge, len(data), maxSize)
	}
	return nil
}

// ValidateRecordValue validates a TLV value against MaxRecordValue.
func ValidateRecordValue(value []byte) error {
	if err := ValidateSize(value, MaxRecordValue); err != nil {
		return fmt.Errorf("record value: %w", err)
	}
	return nil
}

// ValidateChunkSize checks a configured chunk size against [MinChunkSize, MaxChunkSize].
func ValidateChunkSize(size int) error {
	if size < MinChunkSize || size > MaxChunkSize {
		return fmt.Errorf("%w: chunk size %d not in [%d, %d]", ErrOutOfBounds, size, MinChunkSize, MaxChunkSize)
	}
	return nil
}

// ValidateFileLength checks an announced file length. Zero-length files are
// rejected because there is nothing to fetch or verify.
func ValidateFileLength(length int64) error {
	if length <= 0 {
		return fmt.Errorf("%w: file length %d", ErrEmpty, length)
	}
	if length > MaxFileLength {
		return fmt.Errorf("%w: file length %d exceeds limit %d", ErrTooLarge, length, MaxFileLength)
	}
	return nil
}

// ValidateFileName checks a file name against MaxFileNameLength.
func ValidateFileName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("%w: file name", ErrEmpty)
	}
	if len(name) > MaxFileNameLength {
		return fmt.Errorf("%w: file name length %d exceeds limit %d", ErrTooLarge, len(name), MaxFileNameLength)
	}
	return nil
}
