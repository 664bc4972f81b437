package tunnel

import (
	"bytes"
	"errors"
	"fmt"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/opd-ai/otrdata/limits"
)

// ErrMalformed indicates a message that violates the tunneled message syntax.
var ErrMalformed = errors.New("malformed tunneled message")

// ErrIncomplete indicates Message was called before the parser completed.
var ErrIncomplete = errors.New("tunneled message incomplete")

// State is the state of a Parser.
type State uint8

const (
	// StateReadingHeaders waits for the blank line ending the header block.
	StateReadingHeaders State = iota
	// StateReadingBody waits for Content-Length body bytes.
	StateReadingBody
	// StateComplete holds a fully parsed message.
	StateComplete
	// StateMalformed is terminal; the message must be discarded.
	StateMalformed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateReadingHeaders:
		return "reading-headers"
	case StateReadingBody:
		return "reading-body"
	case StateComplete:
		return "complete"
	case StateMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

var headerTerminator = []byte("\r\n\r\n")

// Parser incrementally parses one tunneled message.
// A Parser is not safe for concurrent use.
type Parser struct {
	state   State
	buf     []byte
	msg     *Message
	bodyLen int
	err     error
}

// NewParser returns a parser in StateReadingHeaders.
func NewParser() *Parser {
	return &Parser{state: StateReadingHeaders}
}

// State returns the current parser state.
func (p *Parser) State() State {
	return p.state
}

// Feed appends data and advances the state machine as far as the buffered
// bytes allow. Once malformed, every call returns the original error.
func (p *Parser) Feed(data []byte) (State, error) {
	switch p.state {
	case StateMalformed:
		return p.state, p.err
	case StateComplete:
		if len(data) > 0 {
			return p.fail("%d bytes after complete message", len(data))
		}
		return p.state, nil
	}

	p.buf = append(p.buf, data...)

	if p.state == StateReadingHeaders {
		idx := bytes.Index(p.buf, headerTerminator)
		if idx < 0 {
			if len(p.buf) > limits.MaxHeaderBlock {
				return p.fail("header block exceeds %d bytes", limits.MaxHeaderBlock)
			}
			return p.state, nil
		}
		if idx > limits.MaxHeaderBlock {
			return p.fail("header block exceeds %d bytes", limits.MaxHeaderBlock)
		}
		if err := p.parseHeaderBlock(string(p.buf[:idx])); err != nil {
			p.state = StateMalformed
			p.err = err
			return p.state, err
		}
		p.buf = append([]byte(nil), p.buf[idx+len(headerTerminator):]...)
		p.state = StateReadingBody
	}

	if p.state == StateReadingBody {
		switch {
		case len(p.buf) > p.bodyLen:
			return p.fail("body has %d bytes, Content-Length is %d", len(p.buf), p.bodyLen)
		case len(p.buf) == p.bodyLen:
			p.msg.Body = p.buf
			p.buf = nil
			p.state = StateComplete
		}
	}

	return p.state, nil
}

// Message returns the parsed message once the parser is complete.
func (p *Parser) Message() (*Message, error) {
	switch p.state {
	case StateComplete:
		return p.msg, nil
	case StateMalformed:
		return nil, p.err
	default:
		return nil, fmt.Errorf("%w: parser is %s", ErrIncomplete, p.state)
	}
}

// Parse parses a complete message held in data.
func Parse(data []byte) (*Message, error) {
	p := NewParser()
	state, err := p.Feed(data)
	if err != nil {
		return nil, err
	}
	if state != StateComplete {
		return nil, fmt.Errorf("%w: truncated in %s", ErrMalformed, state)
	}
	return p.msg, nil
}

func (p *Parser) fail(format string, args ...any) (State, error) {
	p.state = StateMalformed
	p.err = fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
	p.buf = nil
	return p.state, p.err
}

// parseHeaderBlock parses the start line and headers and sets bodyLen.
func (p *Parser) parseHeaderBlock(block string) error {
	lines := strings.Split(block, "\r\n")

	msg, err := parseStartLine(lines[0])
	if err != nil {
		return err
	}

	msg.Header = Header{}
	for _, line := range lines[1:] {
		name, value, err := parseHeaderLine(line)
		if err != nil {
			return err
		}
		if name == HeaderContentLength && msg.Header.Has(name) && msg.Header.Get(name) != value {
			return fmt.Errorf("%w: conflicting Content-Length values", ErrMalformed)
		}
		msg.Header.Set(name, value)
	}

	bodyLen := 0
	if v := msg.Header.Get(HeaderContentLength); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: invalid Content-Length %q", ErrMalformed, v)
		}
		if n > limits.MaxRecordValue {
			return fmt.Errorf("%w: Content-Length %d exceeds %d", ErrMalformed, n, limits.MaxRecordValue)
		}
		bodyLen = n
	}

	p.msg = msg
	p.bodyLen = bodyLen
	return nil
}

func parseStartLine(line string) (*Message, error) {
	if line == "" {
		return nil, fmt.Errorf("%w: missing start line", ErrMalformed)
	}

	if strings.HasPrefix(line, "HTTP/") {
		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: bad status line %q", ErrMalformed, line)
		}
		code, err := strconv.Atoi(parts[1])
		if err != nil || code < 100 || code > 599 {
			return nil, fmt.Errorf("%w: bad status code in %q", ErrMalformed, line)
		}
		msg := &Message{Proto: parts[0], StatusCode: code}
		if len(parts) == 3 {
			msg.Reason = parts[2]
		}
		return msg, nil
	}

	fields := strings.Fields(line)
	if len(fields) < 2 || len(fields) > 3 {
		return nil, fmt.Errorf("%w: bad request line %q", ErrMalformed, line)
	}
	if !isToken(fields[0]) {
		return nil, fmt.Errorf("%w: bad method %q", ErrMalformed, fields[0])
	}
	msg := &Message{Method: fields[0], Target: fields[1]}
	if len(fields) == 3 {
		if !strings.HasPrefix(fields[2], "HTTP/") {
			return nil, fmt.Errorf("%w: bad protocol %q", ErrMalformed, fields[2])
		}
		msg.Proto = fields[2]
	}
	return msg, nil
}

func parseHeaderLine(line string) (string, string, error) {
	idx := strings.IndexByte(line, ':')
	if idx <= 0 {
		return "", "", fmt.Errorf("%w: header line without name or colon %q", ErrMalformed, line)
	}
	name := line[:idx]
	if !isToken(name) {
		return "", "", fmt.Errorf("%w: bad header name %q", ErrMalformed, name)
	}
	return textproto.CanonicalMIMEHeaderKey(name), strings.TrimSpace(line[idx+1:]), nil
}

// isToken reports whether s is a non-empty run of visible ASCII without separators.
func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= ' ' || c >= 0x7f || strings.IndexByte(`()<>@,;:\"/[]?={}`, c) >= 0 {
			return false
		}
	}
	return true
}
