// Package multipart implements the incremental multipart/form-data
// parser of §4.E: a state machine fed arbitrarily-sized chunks that
// drives a Listener, mirroring the way a FrameHeader's Deserialize
// incrementally consumes a frame's wire payload one field at a time.
package multipart

import (
	"strings"

	"github.com/dgrr/h2engine"
	"github.com/valyala/bytebufferpool"
)

type parserState int

const (
	statePreamble parserState = iota
	stateBoundary
	stateHeaderStart
	stateHeaderLine
	stateContent
	stateBoundaryClose
	stateEpilogue
	stateDone
)

const (
	defaultMaxParts     = 1000
	defaultMaxHeaderLen = 1 << 20
)

// Parser is the multipart/form-data state machine of §4.E. It owns no
// body storage of its own; a Collector (or any Listener) assembles
// whatever representation the caller wants from the events it emits.
type Parser struct {
	boundary *matcher
	listener Listener

	compliance   Compliance
	maxParts     int
	maxHeaderLen int

	state     parserState
	partCount int
	headerLen int

	// carry holds the tail of the previous chunk that might still
	// extend into a boundary match or a header/content line; it is
	// pooled like the flusher's batch buffer rather than grown ad hoc.
	carry *bytebufferpool.ByteBuffer

	closed bool
	err    error
}

// Option configures a Parser at construction.
type Option func(*Parser)

func WithCompliance(c Compliance) Option {
	return func(p *Parser) { p.compliance = c }
}

// WithMaxParts bounds how many parts a single parse may contain; -1
// means unlimited, 0 rejects any part at all (§4.E "Limits").
func WithMaxParts(n int) Option {
	return func(p *Parser) { p.maxParts = n }
}

// WithMaxHeaderLen bounds the accumulated header bytes for a single
// part (§4.E "Header limits").
func WithMaxHeaderLen(n int) Option {
	return func(p *Parser) { p.maxHeaderLen = n }
}

// NewParser builds a Parser for the given boundary token, as found in
// the Content-Type header's "boundary=" parameter (RFC 2046 bounds it
// to 1-70 ASCII characters; trailing whitespace is stripped here since
// some producers pad it).
func NewParser(boundary string, l Listener, opts ...Option) (*Parser, error) {
	boundary = strings.TrimRight(boundary, " \t")
	if len(boundary) < 1 || len(boundary) > 70 {
		return nil, &h2engine.BadMessageError{Message: "multipart: boundary length out of range"}
	}

	p := &Parser{
		boundary:     newMatcher(boundary),
		listener:     l,
		maxParts:     defaultMaxParts,
		maxHeaderLen: defaultMaxHeaderLen,
		carry:        bytebufferpool.Get(),
	}
	for _, opt := range opts {
		opt(p)
	}

	// Seed a synthetic leading newline so the first boundary, which may
	// open the body with no preceding CRLF, matches the same
	// "\n--boundary" pattern as every later one.
	p.carry.WriteByte('\n')

	return p, nil
}

// Write feeds the next chunk of input. The listener may be called zero
// or more times before Write returns; it must not retain chunk beyond
// the call unless it copies it, except through OnPartContent slices,
// which alias either chunk or the Parser's own carry buffer and are
// only valid until the next Write/Close call.
func (p *Parser) Write(chunk []byte) error {
	if p.err != nil {
		return p.err
	}
	if p.closed {
		return nil
	}

	buf := chunk
	if p.carry.Len() > 0 {
		p.carry.Write(chunk)
		buf = p.carry.B
	}

	_, err := p.run(buf)
	if err != nil {
		p.fail(err)
		return err
	}
	return nil
}

// Close signals end of input. It fails the parse if input ended before
// the epilogue was reached, otherwise invokes OnComplete.
func (p *Parser) Close() error {
	if p.err != nil {
		return p.err
	}
	if p.closed {
		return nil
	}
	p.closed = true
	bytebufferpool.Put(p.carry)
	p.carry = nil

	if p.state != stateEpilogue && p.state != stateDone {
		err := &h2engine.BadMessageError{Message: "multipart: input ended before final boundary"}
		p.err = err
		p.listener.failure(err)
		return err
	}
	p.state = stateDone
	p.listener.complete()
	return nil
}

func (p *Parser) fail(err error) {
	p.err = err
	p.listener.failure(err)
}

// run drives the state machine over buf until it either stalls waiting
// for more input or reaches a terminal/error condition. It rewrites
// p.carry to hold whatever trailing bytes must survive into the next
// call.
func (p *Parser) run(buf []byte) (int, error) {
	for {
		switch p.state {
		case statePreamble, stateBoundary:
			idx := p.boundary.match(buf)
			if idx < 0 {
				return p.stallOnBoundary(buf)
			}
			rest := buf[idx+p.boundary.len():]
			n, closing, violation, ok := consumeBoundaryTail(rest)
			if !ok {
				return p.stallCarry(buf[idx:])
			}
			if violation >= 0 {
				v := Violation(violation)
				if !p.compliance.allows(v) {
					return 0, &h2engine.BadMessageError{Message: "multipart: " + v.String()}
				}
				p.listener.violation(v)
			}
			if closing {
				p.state = stateBoundaryClose
				buf = rest[n:]
				continue
			}
			if p.maxParts == 0 || (p.maxParts > 0 && p.partCount >= p.maxParts) {
				return 0, &h2engine.BadMessageError{Message: "multipart: too many parts"}
			}
			p.partCount++
			p.headerLen = 0
			p.listener.partBegin()
			p.state = stateHeaderStart
			buf = rest[n:]
			continue

		case stateHeaderStart, stateHeaderLine:
			line, rest, violation, ok := consumeLine(buf)
			if !ok {
				return p.stallCarry(buf)
			}
			if violation >= 0 {
				v := Violation(violation)
				if !p.compliance.allows(v) {
					return 0, &h2engine.BadMessageError{Message: "multipart: " + v.String()}
				}
				p.listener.violation(v)
			}
			if len(line) == 0 {
				p.listener.partHeaders()
				p.state = stateContent
				buf = rest
				continue
			}
			p.headerLen += len(line) + 2
			if p.headerLen > p.maxHeaderLen {
				return 0, &h2engine.BadMessageError{Message: "multipart: part headers too large"}
			}
			name, value := splitHeaderLine(line)
			p.listener.partHeader(name, value)
			p.state = stateHeaderLine
			buf = rest
			continue

		case stateContent:
			idx := p.boundary.match(buf)
			if idx < 0 {
				return p.stallOnBoundary(buf)
			}
			// The matched pattern's leading \n is the line terminator
			// introducing the boundary; a \r immediately before it
			// belongs to that same terminator, not the content.
			contentEnd := idx
			if contentEnd > 0 && buf[contentEnd-1] == '\r' {
				contentEnd--
			}
			if contentEnd > 0 {
				p.listener.partContent(buf[:contentEnd], false)
			}

			rest := buf[idx+p.boundary.len():]
			n, closing, violation, ok := consumeBoundaryTail(rest)
			if !ok {
				// The part only ends once the boundary line is complete;
				// carry the terminator and boundary into the next Write.
				return p.stallCarry(buf[contentEnd:])
			}
			p.listener.partContent(nil, true)
			p.listener.partEnd()
			if violation >= 0 {
				v := Violation(violation)
				if !p.compliance.allows(v) {
					return 0, &h2engine.BadMessageError{Message: "multipart: " + v.String()}
				}
				p.listener.violation(v)
			}
			if closing {
				p.state = stateBoundaryClose
			} else {
				if p.maxParts > 0 && p.partCount >= p.maxParts {
					return 0, &h2engine.BadMessageError{Message: "multipart: too many parts"}
				}
				p.partCount++
				p.headerLen = 0
				p.listener.partBegin()
				p.state = stateHeaderStart
			}
			buf = rest[n:]
			continue

		case stateBoundaryClose:
			// Discard through end of line, then fall into the epilogue,
			// which absorbs and discards everything else.
			_, rest, _, ok := consumeLine(buf)
			if !ok {
				return p.stallCarry(buf)
			}
			p.state = stateEpilogue
			buf = rest
			continue

		case stateEpilogue:
			// Nothing further is meaningful; drop it.
			p.carry.Reset()
			return len(buf), nil

		case stateDone:
			p.carry.Reset()
			return len(buf), nil
		}
	}
}

// stallOnBoundary is reached in CONTENT/PREAMBLE/BOUNDARY states when no
// full boundary match exists in buf. Whatever prefix cannot possibly be
// part of a future match (or the CR of its line terminator) is emitted
// as content (for stateContent) and the rest is carried forward.
func (p *Parser) stallOnBoundary(buf []byte) (int, error) {
	keep := p.boundary.endsWith(buf)
	if p.state == stateContent && len(buf)-keep > 0 && buf[len(buf)-keep-1] == '\r' {
		keep++
	}
	if p.state == stateContent && len(buf)-keep > 0 {
		p.listener.partContent(buf[:len(buf)-keep], false)
	}
	return p.stallCarry(buf[len(buf)-keep:])
}

// stallCarry parks tail in p.carry for the next Write call.
func (p *Parser) stallCarry(tail []byte) (int, error) {
	p.carry.Reset()
	p.carry.Write(tail)
	return 0, nil
}

// consumeBoundaryTail inspects the bytes immediately after a matched
// boundary pattern: "--" marks the final boundary, otherwise optional
// transport padding (spaces/tabs) and a line terminator are expected.
// ok is false if rest might still extend into an as-yet-unseen "--".
// violation is -1 for a compliant CRLF terminator.
func consumeBoundaryTail(rest []byte) (n int, closing bool, violation int, ok bool) {
	violation = -1
	if len(rest) >= 2 && rest[0] == '-' && rest[1] == '-' {
		return 2, true, violation, true
	}
	if len(rest) == 1 && rest[0] == '-' {
		return 0, false, violation, false
	}
	i := 0
	for i < len(rest) && (rest[i] == ' ' || rest[i] == '\t') {
		i++
	}
	if i >= len(rest) {
		return 0, false, violation, false
	}
	if rest[i] == '\n' {
		return i + 1, false, int(LFLineTermination), true
	}
	if rest[i] == '\r' {
		if i+1 >= len(rest) {
			return 0, false, violation, false
		}
		if rest[i+1] == '\n' {
			return i + 2, false, violation, true
		}
		return i + 1, false, int(CRLineTermination), true
	}
	// Anything else after a boundary match is itself non-compliant
	// trailing text; treat the boundary as not actually closed and let
	// the caller keep scanning forward from here.
	return i, false, violation, true
}

// consumeLine extracts one line (header or the blank line ending a
// part's headers) up to but excluding its terminator, reporting which
// terminator violation (if any) was seen. violation is -1 for CRLF.
func consumeLine(buf []byte) (line, rest []byte, violation int, ok bool) {
	for i := 0; i < len(buf); i++ {
		switch buf[i] {
		case '\n':
			if i > 0 && buf[i-1] == '\r' {
				return buf[:i-1], buf[i+1:], -1, true
			}
			return buf[:i], buf[i+1:], int(LFLineTermination), true
		case '\r':
			if i+1 >= len(buf) {
				return nil, nil, 0, false
			}
			if buf[i+1] != '\n' {
				return buf[:i], buf[i+1:], int(CRLineTermination), true
			}
		}
	}
	return nil, nil, 0, false
}

func splitHeaderLine(line []byte) (name, value string) {
	for i, b := range line {
		if b == ':' {
			name = string(trimSpace(line[:i]))
			value = string(trimSpace(line[i+1:]))
			return
		}
	}
	return string(trimSpace(line)), ""
}

func trimSpace(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}
	return b
}
