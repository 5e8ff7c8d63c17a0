package h2engine

import "fmt"

// ErrorCode is an RFC 7540 §11.4 wire error code.
type ErrorCode uint32

const (
	NoError            ErrorCode = 0x0
	ProtocolError      ErrorCode = 0x1
	InternalError      ErrorCode = 0x2
	FlowControlError   ErrorCode = 0x3
	SettingsTimeout    ErrorCode = 0x4
	StreamClosedError  ErrorCode = 0x5
	FrameSizeError     ErrorCode = 0x6
	RefusedStream      ErrorCode = 0x7
	CancelError        ErrorCode = 0x8
	CompressionError   ErrorCode = 0x9
	ConnectError       ErrorCode = 0xa
	EnhanceYourCalm    ErrorCode = 0xb
	InadequateSecurity ErrorCode = 0xc
	HTTP11Required     ErrorCode = 0xd
)

var errorStrings = [...]string{
	NoError:            "NO_ERROR",
	ProtocolError:      "PROTOCOL_ERROR",
	InternalError:      "INTERNAL_ERROR",
	FlowControlError:   "FLOW_CONTROL_ERROR",
	SettingsTimeout:    "SETTINGS_TIMEOUT",
	StreamClosedError:  "STREAM_CLOSED",
	FrameSizeError:     "FRAME_SIZE_ERROR",
	RefusedStream:      "REFUSED_STREAM",
	CancelError:        "CANCEL",
	CompressionError:   "COMPRESSION_ERROR",
	ConnectError:       "CONNECT_ERROR",
	EnhanceYourCalm:    "ENHANCE_YOUR_CALM",
	InadequateSecurity: "INADEQUATE_SECURITY",
	HTTP11Required:     "HTTP_1_1_REQUIRED",
}

func (c ErrorCode) String() string {
	if int(c) < len(errorStrings) && errorStrings[c] != "" {
		return errorStrings[c]
	}
	return fmt.Sprintf("UNKNOWN_ERROR(0x%x)", uint32(c))
}

// ConnError is a connection-level failure (§7 "Connection errors"): the
// session must send GOAWAY(Code) and terminate.
type ConnError struct {
	Code   ErrorCode
	Reason string
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("connection error: %s: %s", e.Code, e.Reason)
}

// NewConnError builds a ConnError.
func NewConnError(code ErrorCode, reason string) *ConnError {
	return &ConnError{Code: code, Reason: reason}
}

// StreamError is a stream-level failure (§7 "Stream errors"): the session
// sends RST_STREAM(Code) for the offending stream only.
type StreamError struct {
	StreamID uint32
	Code     ErrorCode
	Reason   string
	retry    bool
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream error: stream=%d code=%s: %s", e.StreamID, e.Code, e.Reason)
}

// Retryable reports whether upper layers should reattempt this stream's
// request on a new connection (§7 "Retryable stream errors").
func (e *StreamError) Retryable() bool {
	return e.retry
}

// NewStreamError builds a non-retryable StreamError.
func NewStreamError(streamID uint32, code ErrorCode, reason string) *StreamError {
	return &StreamError{StreamID: streamID, Code: code, Reason: reason}
}

// NewRetryableStreamError builds a StreamError marked retryable, used when
// a peer GOAWAY strands a local stream above its last-stream-id (§7, §8
// scenario 3).
func NewRetryableStreamError(streamID uint32, reason string) *StreamError {
	return &StreamError{StreamID: streamID, Code: RefusedStream, Reason: reason, retry: true}
}

// WriteTimeoutError aborts the frame flusher (§4.D "Timeouts"): every
// queued and in-flight entry fails and the endpoint is closed.
type WriteTimeoutError struct {
	Message string
}

func (e *WriteTimeoutError) Error() string { return "write timeout: " + e.Message }

// BadMessageError is raised by the multipart parser (§4.E, §7 "Multipart
// parse errors").
type BadMessageError struct {
	Message string
}

func (e *BadMessageError) Error() string { return "bad message: " + e.Message }
