// Package limits provides centralized size constants and validation functions
// for the OTRDATA transfer protocol. Every codec and the fetch scheduler read
// their bounds from here so that a record produced by one component is always
// accepted by the others.
//
// # Size Hierarchy
//
//   - MaxRecordValue (65535 bytes): the largest value a TLV record can carry,
//     fixed by its 16-bit length field.
//
//   - MaxHeaderBlock (8192 bytes): the largest header block the tunnel parser
//     buffers before declaring a message malformed.
//
//   - MaxChunkSize (MaxRecordValue - MaxHeaderBlock): the largest chunk a fetch
//     may request, so that a response with full headers still fits in one record.
//
//   - MaxFileLength (1GB): the largest file an incoming transfer will pre-size a
//     receive buffer for. Offers above it are dropped.
//
// # Validation Functions
//
//	if err := limits.ValidateRecordValue(value); err != nil {
//	    // errors.Is(err, limits.ErrTooLarge)
//	}
//
//	if err := limits.ValidateChunkSize(cfg.ChunkSize); err != nil {
//	    // reject configuration
//	}
//
// # Security Considerations
//
// A hostile peer controls the File-Length of an offer and the Content-Length of
// every tunneled message. Both are checked against these limits before any
// buffer is allocated.
package limits
