package tunnel

import (
	"bytes"
	"fmt"
	"net/textproto"
	"sort"
	"strconv"
	"strings"
)

// Protocol version written on every start line.
const Proto = "HTTP/1.1"

// Methods used by OTRDATA.
const (
	MethodOffer = "OFFER"
	MethodGet   = "GET"
)

// StorageScheme prefixes every transfer target.
const StorageScheme = "otr-in-band:/storage/"

// Header names used by OTRDATA.
const (
	HeaderRequestID     = "Request-Id"
	HeaderRange         = "Range"
	HeaderContentLength = "Content-Length"
	HeaderFileName      = "File-Name"
	HeaderFileLength    = "File-Length"
	HeaderFileHash      = "File-Hash-SHA1"
	HeaderMimeType      = "Mime-Type"
	HeaderErrorReason   = "Error-Reason"
)

// Status codes used by OTRDATA.
const (
	StatusOK                  = 200
	StatusBadRequest          = 400
	StatusNotFound            = 404
	StatusRangeNotSatisfiable = 416
)

var statusText = map[int]string{
	StatusOK:                  "OK",
	StatusBadRequest:          "Bad Request",
	StatusNotFound:            "Not Found",
	StatusRangeNotSatisfiable: "Range Not Satisfiable",
}

// StatusText returns the reason phrase for a status code, or "Unknown".
func StatusText(code int) string {
	if text, ok := statusText[code]; ok {
		return text
	}
	return "Unknown"
}

// StorageURL returns the target used to address a transfer.
func StorageURL(transferID string) string {
	return StorageScheme + transferID
}

// TransferIDFromTarget extracts the transfer id from a storage target.
func TransferIDFromTarget(target string) (string, bool) {
	if !strings.HasPrefix(target, StorageScheme) {
		return "", false
	}
	id := strings.TrimPrefix(target, StorageScheme)
	if id == "" || strings.ContainsAny(id, "/ ") {
		return "", false
	}
	return id, true
}

// Header holds message headers keyed by canonical name.
type Header map[string]string

// Get returns the value for key, matched case-insensitively.
func (h Header) Get(key string) string {
	return h[textproto.CanonicalMIMEHeaderKey(key)]
}

// Has reports whether key is present.
func (h Header) Has(key string) bool {
	_, ok := h[textproto.CanonicalMIMEHeaderKey(key)]
	return ok
}

// Set stores value under the canonical form of key.
func (h Header) Set(key, value string) {
	h[textproto.CanonicalMIMEHeaderKey(key)] = value
}

// Del removes key.
func (h Header) Del(key string) {
	delete(h, textproto.CanonicalMIMEHeaderKey(key))
}

// Clone returns a copy of h with canonical keys.
func (h Header) Clone() Header {
	out := make(Header, len(h))
	for k, v := range h {
		out.Set(k, v)
	}
	return out
}

// Message is a parsed tunneled request or response.
type Message struct {
	// Request fields. Method is empty for responses.
	Method string
	Target string

	// Response fields. StatusCode is zero for requests.
	StatusCode int
	Reason     string

	Proto  string
	Header Header
	Body   []byte
}

// IsRequest reports whether the message is a request.
func (m *Message) IsRequest() bool {
	return m.Method != ""
}

// IsSuccess reports whether a response carries a 2xx status.
func (m *Message) IsSuccess() bool {
	return m.StatusCode >= 200 && m.StatusCode < 300
}

// RequestID returns the Request-Id header.
func (m *Message) RequestID() string {
	return m.Header.Get(HeaderRequestID)
}

// String returns a short description for logging.
func (m *Message) String() string {
	if m.IsRequest() {
		return fmt.Sprintf("%s %s (%d bytes)", m.Method, m.Target, len(m.Body))
	}
	return fmt.Sprintf("%d %s (%d bytes)", m.StatusCode, m.Reason, len(m.Body))
}

// SerializeRequest builds a request. Content-Length is always written and
// reflects len(body) regardless of any value in h.
func SerializeRequest(method, target string, h Header, body []byte) []byte {
	start := fmt.Sprintf("%s %s %s", sanitize(method), sanitize(target), Proto)
	return serialize(start, h, body)
}

// SerializeResponse builds a response with the standard reason phrase.
func SerializeResponse(status int, h Header, body []byte) []byte {
	start := fmt.Sprintf("%s %d %s", Proto, status, StatusText(status))
	return serialize(start, h, body)
}

// Serialize encodes a parsed message again.
func (m *Message) Serialize() []byte {
	if m.IsRequest() {
		return SerializeRequest(m.Method, m.Target, m.Header, m.Body)
	}
	return SerializeResponse(m.StatusCode, m.Header, m.Body)
}

func serialize(startLine string, h Header, body []byte) []byte {
	keys := make([]string, 0, len(h))
	for k := range h {
		canonical := textproto.CanonicalMIMEHeaderKey(k)
		if canonical == HeaderContentLength {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Grow(len(startLine) + 64*len(keys) + len(body) + 32)
	buf.WriteString(startLine)
	buf.WriteString("\r\n")
	for _, k := range keys {
		buf.WriteString(textproto.CanonicalMIMEHeaderKey(sanitize(k)))
		buf.WriteString(": ")
		buf.WriteString(sanitize(h[k]))
		buf.WriteString("\r\n")
	}
	buf.WriteString(HeaderContentLength)
	buf.WriteString(": ")
	buf.WriteString(strconv.Itoa(len(body)))
	buf.WriteString("\r\n\r\n")
	buf.Write(body)
	return buf.Bytes()
}

// sanitize replaces line breaks so a value can never terminate the header block.
func sanitize(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
