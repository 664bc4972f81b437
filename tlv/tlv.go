// Package tlv implements the tag-length-value records carried inside messages
// of the secure channel.
//
// Each record is laid out as [type (2 bytes BE)][length (2 bytes BE)][value].
// Records of types this package does not know about are decoded and passed
// through unmodified so that other consumers of the channel can handle them.
//
// Example:
//
//	data, err := tlv.Encode(tlv.TypeDataRequest, offer)
//	if err != nil {
//	    return err
//	}
//
//	for rec, err := range tlv.DecodeAll(data) {
//	    if err != nil {
//	        break // truncated tail
//	    }
//	    handle(rec)
//	}
package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"

	"github.com/opd-ai/otrdata/limits"
)

// ErrValueTooLarge indicates a record value longer than limits.MaxRecordValue.
var ErrValueTooLarge = errors.New("tlv value too large")

// ErrTruncated indicates a buffer ended inside a record header or value.
var ErrTruncated = errors.New("tlv record truncated")

// Type identifies the kind of a TLV record.
type Type uint16

const (
	// TypePadding is padding for the encrypted message and should be ignored.
	TypePadding Type = 0x0000
	// TypeDisconnected signals that the peer has thrown away its session keys.
	TypeDisconnected Type = 0x0001
	// TypeSMP1 through TypeSMPAbort carry verification protocol steps.
	TypeSMP1     Type = 0x0002
	TypeSMP2     Type = 0x0003
	TypeSMP3     Type = 0x0004
	TypeSMP4     Type = 0x0005
	TypeSMPAbort Type = 0x0006
	// TypeSMP1Question is TypeSMP1 prefixed with a question for the peer.
	TypeSMP1Question Type = 0x0007
	// TypeSymmetricKey carries the extra symmetric key notification.
	TypeSymmetricKey Type = 0x0008

	// TypeDataRequest carries a tunneled OFFER or GET request.
	TypeDataRequest Type = 0x0100
	// TypeDataResponse carries a tunneled response.
	TypeDataResponse Type = 0x0101
)

// String returns a human-readable name for the record type.
func (t Type) String() string {
	switch t {
	case TypePadding:
		return "padding"
	case TypeDisconnected:
		return "disconnected"
	case TypeSMP1:
		return "smp1"
	case TypeSMP2:
		return "smp2"
	case TypeSMP3:
		return "smp3"
	case TypeSMP4:
		return "smp4"
	case TypeSMPAbort:
		return "smp-abort"
	case TypeSMP1Question:
		return "smp1-question"
	case TypeSymmetricKey:
		return "symmetric-key"
	case TypeDataRequest:
		return "data-request"
	case TypeDataResponse:
		return "data-response"
	default:
		return fmt.Sprintf("unknown(0x%04x)", uint16(t))
	}
}

// Handles reports whether the data transfer subsystem consumes records of type t.
// Requests and responses are told apart by content, so both types are accepted.
func Handles(t Type) bool {
	return t == TypeDataRequest || t == TypeDataResponse
}

// Record is a single tag-length-value unit.
type Record struct {
	Type  Type
	Value []byte
}

// Valid reports whether the record value fits the 16-bit length field.
// Invalid records must never be transmitted.
func (r Record) Valid() bool {
	return len(r.Value) <= limits.MaxRecordValue
}

// Size returns the encoded size of the record in bytes.
func (r Record) Size() int {
	return limits.RecordHeaderSize + len(r.Value)
}

// Encode serializes a single record.
func Encode(t Type, value []byte) ([]byte, error) {
	if err := limits.ValidateRecordValue(value); err != nil {
		return nil, fmt.Errorf("%w: %d bytes for type %s", ErrValueTooLarge, len(value), t)
	}

	out := make([]byte, limits.RecordHeaderSize+len(value))
	putRecord(out, t, value)
	return out, nil
}

// EncodeAll serializes records back to back. It fails without producing
// output if any record is invalid.
func EncodeAll(records ...Record) ([]byte, error) {
	total := 0
	for _, r := range records {
		if !r.Valid() {
			return nil, fmt.Errorf("%w: %d bytes for type %s", ErrValueTooLarge, len(r.Value), r.Type)
		}
		total += r.Size()
	}

	out := make([]byte, total)
	offset := 0
	for _, r := range records {
		putRecord(out[offset:], r.Type, r.Value)
		offset += r.Size()
	}
	return out, nil
}

// putRecord writes header and value into dst, which must be large enough.
func putRecord(dst []byte, t Type, value []byte) {
	binary.BigEndian.PutUint16(dst[0:2], uint16(t))
	binary.BigEndian.PutUint16(dst[2:4], uint16(len(value)))
	copy(dst[limits.RecordHeaderSize:], value)
}

// DecodeAll returns a lazy sequence over the records in buf. Iteration stops
// after the last complete record; if bytes remain that do not form a complete
// record, a final (Record{}, ErrTruncated) pair is yielded. Record values are
// copies and do not alias buf.
func DecodeAll(buf []byte) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		offset := 0
		for offset < len(buf) {
			rec, n, err := decodeOne(buf[offset:])
			if err != nil {
				yield(Record{}, fmt.Errorf("%w at offset %d", err, offset))
				return
			}
			if !yield(rec, nil) {
				return
			}
			offset += n
		}
	}
}

// Decode collects every record in buf. Records decoded before a truncated tail
// are returned together with the error.
func Decode(buf []byte) ([]Record, error) {
	var records []Record
	for rec, err := range DecodeAll(buf) {
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// decodeOne parses the record at the start of data and returns it with the
// number of bytes consumed.
func decodeOne(data []byte) (Record, int, error) {
	if len(data) < limits.RecordHeaderSize {
		return Record{}, 0, ErrTruncated
	}

	t := Type(binary.BigEndian.Uint16(data[0:2]))
	length := int(binary.BigEndian.Uint16(data[2:4]))
	end := limits.RecordHeaderSize + length
	if len(data) < end {
		return Record{}, 0, ErrTruncated
	}

	value := make([]byte, length)
	copy(value, data[limits.RecordHeaderSize:end])
	return Record{Type: t, Value: value}, end, nil
}
