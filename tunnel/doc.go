// Package tunnel implements the minimal HTTP-like request/response format that
// OTRDATA carries inside TLV records.
//
// Requests announce files (OFFER) and fetch byte ranges of them (GET); responses
// carry the requested bytes or an error status. Only the parts of HTTP/1.1 the
// protocol needs are supported: a start line, "Name: value" header lines, an
// empty line and a body whose size is always given by Content-Length.
//
// # Building Messages
//
//	h := tunnel.Header{}
//	h.Set(tunnel.HeaderRequestID, id)
//	h.Set(tunnel.HeaderRange, tunnel.FormatRange(0, 16383))
//	data := tunnel.SerializeRequest(tunnel.MethodGet, tunnel.StorageURL(transferID), h, nil)
//
// # Parsing Messages
//
// Parser is an incremental state machine:
//
//	ReadingHeaders -> ReadingBody -> Complete
//	       \               \
//	        +---------------+--> Malformed
//
// Bytes can be fed in arbitrary pieces. Once the parser reports StateMalformed it
// never recovers; the caller discards the message and reports the failure.
//
//	p := tunnel.NewParser()
//	if _, err := p.Feed(data); err != nil {
//	    return err // errors.Is(err, tunnel.ErrMalformed)
//	}
//	msg, err := p.Message()
//
// Header names are case-insensitive; Header canonicalizes them the same way
// MIME headers are canonicalized, so "request-id", "Request-ID" and
// "REQUEST-ID" all address the Request-Id header.
package tunnel
