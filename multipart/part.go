package multipart

import (
	"errors"
	"io"
	"os"
)

// Header is one part header, preserved in arrival order (§3 Part
// invariants call out headers as an ordered collection, not a map, since
// a part may legally repeat a header name).
type Header struct {
	Name, Value string
}

// BodySource is the reproducible-or-not body of a Part (§3 "body-source
// is one of {in-memory buffer list, on-disk path with optional byte
// range, live chunk stream, user-supplied source}").
type BodySource interface {
	// Open returns a fresh reader over the body. Implementations backed
	// by a path or in-memory buffers may be opened more than once;
	// stream-backed implementations must not.
	Open() (io.ReadCloser, error)
	// Reproducible reports whether Open may be called again after a
	// prior read has been consumed.
	Reproducible() bool
}

type memorySource struct {
	chunks [][]byte
}

func (m *memorySource) Open() (io.ReadCloser, error) {
	readers := make([]io.Reader, len(m.chunks))
	for i, c := range m.chunks {
		readers[i] = bytesReader(c)
	}
	return io.NopCloser(io.MultiReader(readers...)), nil
}

func (m *memorySource) Reproducible() bool { return true }

func bytesReader(b []byte) io.Reader {
	return &sliceReader{b: b}
}

// sliceReader avoids importing bytes.Reader's full API for a plain
// linear read over one chunk.
type sliceReader struct {
	b   []byte
	pos int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}

// diskSource reads [start, end) of the file at path; end < 0 means to
// EOF (§3 "on-disk path with optional byte range").
type diskSource struct {
	path       string
	start, end int64
}

func (d *diskSource) Open() (io.ReadCloser, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return nil, err
	}
	if d.start > 0 {
		if _, err := f.Seek(d.start, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
	}
	if d.end < 0 {
		return f, nil
	}
	return &limitedFile{f: f, remaining: d.end - d.start}, nil
}

func (d *diskSource) Reproducible() bool { return true }

type limitedFile struct {
	f         *os.File
	remaining int64
}

func (l *limitedFile) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.f.Read(p)
	l.remaining -= int64(n)
	return n, err
}

func (l *limitedFile) Close() error { return l.f.Close() }

// streamSource wraps a caller-supplied io.Reader that can only be
// consumed once (§3 "live chunk stream").
type streamSource struct {
	r io.Reader
}

func (s *streamSource) Open() (io.ReadCloser, error) { return io.NopCloser(s.r), nil }

func (s *streamSource) Reproducible() bool { return false }

var errAlreadyConsumed = errors.New("multipart: part body already consumed")

// Part is one assembled multipart/form-data part (§3 Part invariants):
// immutable once emitted by a Collector, its body may only be read once
// unless its source is reproducible.
type Part struct {
	Name     string
	FileName string
	Headers  []Header

	source   BodySource
	opened   bool
	diskPath string // non-empty while this Part owns a spill file
	promoted bool
}

// Header looks up the first header matching name, case-sensitively —
// multipart header names are conventionally canonical MIME case and the
// caller is expected to match what it sent.
func (p *Part) Header(name string) (string, bool) {
	for _, h := range p.Headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

// Open returns a reader over the part's content. Calling it twice on a
// non-reproducible source returns errAlreadyConsumed.
func (p *Part) Open() (io.ReadCloser, error) {
	if p.opened && !p.source.Reproducible() {
		return nil, errAlreadyConsumed
	}
	p.opened = true
	return p.source.Open()
}

// WriteTo promotes the part's content to an owned file at path. Once
// promoted, release() (called by a failed or closed Collector) no longer
// deletes the part's spill file, matching §5's "owned by the Part
// object ... unless the part has been promoted via writeTo(path)".
func (p *Part) WriteTo(path string) error {
	r, err := p.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if p.diskPath != "" && p.diskPath != path {
		os.Remove(p.diskPath)
	}
	p.diskPath = path
	p.promoted = true
	p.source = &diskSource{path: path, end: -1}
	return nil
}

// release deletes any spill file this Part still owns. Safe to call
// more than once.
func (p *Part) release() {
	if p.diskPath != "" && !p.promoted {
		os.Remove(p.diskPath)
		p.diskPath = ""
	}
}
