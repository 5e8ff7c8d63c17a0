package multipart

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBoundary = "XBoundary"

func buildBody(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString("--")
		b.WriteString(testBoundary)
		b.WriteString("\r\n")
		b.WriteString(p)
	}
	b.WriteString("--")
	b.WriteString(testBoundary)
	b.WriteString("--\r\n")
	return b.String()
}

type recorder struct {
	begins   int
	headers  []Header
	content  [][]byte
	ends     int
	complete bool
	failure  error
	violations []Violation
}

func (r *recorder) listener() Listener {
	return Listener{
		OnPartBegin: func() { r.begins++ },
		OnPartHeader: func(name, value string) {
			r.headers = append(r.headers, Header{Name: name, Value: value})
		},
		OnPartContent: func(chunk []byte, last bool) {
			if len(chunk) > 0 {
				r.content = append(r.content, append([]byte(nil), chunk...))
			}
		},
		OnPartEnd:   func() { r.ends++ },
		OnComplete:  func() { r.complete = true },
		OnFailure:   func(err error) { r.failure = err },
		OnViolation: func(v Violation) { r.violations = append(r.violations, v) },
	}
}

func (r *recorder) contentString() string {
	var b strings.Builder
	for _, c := range r.content {
		b.Write(c)
	}
	return b.String()
}

func TestParserSinglePart(t *testing.T) {
	body := buildBody("Content-Disposition: form-data; name=\"field\"\r\n\r\nhello world\r\n")

	r := &recorder{}
	p, err := NewParser(testBoundary, r.listener())
	require.NoError(t, err)

	require.NoError(t, p.Write([]byte(body)))
	require.NoError(t, p.Close())

	assert.Equal(t, 1, r.begins)
	assert.Equal(t, 1, r.ends)
	assert.True(t, r.complete)
	assert.Nil(t, r.failure)
	assert.Equal(t, "hello world", r.contentString())
	require.Len(t, r.headers, 1)
	assert.Equal(t, "Content-Disposition", r.headers[0].Name)
}

func TestParserMultiplePartsSplitAcrossChunks(t *testing.T) {
	body := buildBody(
		"Content-Disposition: form-data; name=\"a\"\r\n\r\nfirst\r\n",
		"Content-Disposition: form-data; name=\"b\"\r\n\r\nsecond\r\n",
	)

	r := &recorder{}
	p, err := NewParser(testBoundary, r.listener())
	require.NoError(t, err)

	// Feed one byte at a time to exercise the carry-across-chunks path.
	for i := 0; i < len(body); i++ {
		require.NoError(t, p.Write([]byte{body[i]}))
	}
	require.NoError(t, p.Close())

	assert.Equal(t, 2, r.begins)
	assert.Equal(t, 2, r.ends)
	assert.True(t, r.complete)
}

func TestParserRejectsUnterminatedBody(t *testing.T) {
	r := &recorder{}
	p, err := NewParser(testBoundary, r.listener())
	require.NoError(t, err)

	require.NoError(t, p.Write([]byte("--" + testBoundary + "\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\nhello")))
	err = p.Close()
	require.Error(t, err)
	assert.NotNil(t, r.failure)
}

func TestParserTolerantOfBareLF(t *testing.T) {
	body := "--" + testBoundary + "\n" +
		"Content-Disposition: form-data; name=\"a\"\n" +
		"\n" +
		"hi\n" +
		"--" + testBoundary + "--\n"

	r := &recorder{}
	p, err := NewParser(testBoundary, r.listener(), WithCompliance(TolerateLF))
	require.NoError(t, err)

	require.NoError(t, p.Write([]byte(body)))
	require.NoError(t, p.Close())

	assert.True(t, r.complete)
	assert.NotEmpty(t, r.violations)
	assert.Equal(t, LFLineTermination, r.violations[0])
}

func TestParserStrictRejectsBareLF(t *testing.T) {
	body := "--" + testBoundary + "\n"

	r := &recorder{}
	p, err := NewParser(testBoundary, r.listener(), WithCompliance(Strict))
	require.NoError(t, err)

	err = p.Write([]byte(body))
	require.Error(t, err)
	assert.NotNil(t, r.failure)
}

func TestParserMaxPartsExceeded(t *testing.T) {
	body := buildBody(
		"Content-Disposition: form-data; name=\"a\"\r\n\r\none\r\n",
		"Content-Disposition: form-data; name=\"b\"\r\n\r\ntwo\r\n",
	)

	r := &recorder{}
	p, err := NewParser(testBoundary, r.listener(), WithMaxParts(1))
	require.NoError(t, err)

	err = p.Write([]byte(body))
	require.Error(t, err)
}

func TestParserRejectsOversizeBoundary(t *testing.T) {
	_, err := NewParser(strings.Repeat("x", 71), Listener{})
	require.Error(t, err)
}
