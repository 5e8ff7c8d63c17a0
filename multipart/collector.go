package multipart

import (
	"mime"
	"os"

	"github.com/valyala/bytebufferpool"
)

// Collector is the "helper factory" of §4.E that turns a Parser's raw
// listener events into assembled Part values, spilling a part's content
// to a temp file once it exceeds MaxMemoryPartSize rather than holding
// arbitrarily large uploads in memory.
type Collector struct {
	// MaxMemoryPartSize is the largest a part's content may grow while
	// still buffered in memory; zero means unlimited (always in-memory).
	MaxMemoryPartSize int64

	// TempDir is where spilled parts are written; empty uses os.TempDir.
	TempDir string

	Parts []*Part

	cur       *Part
	curBuf    *bytebufferpool.ByteBuffer
	curFile   *os.File
	curPath   string
	curSize   int64
	spilled   bool
}

// Listener returns the event record to pass to NewParser, wired to
// this Collector's assembly methods.
func (c *Collector) Listener() Listener {
	return Listener{
		OnPartBegin:   c.onPartBegin,
		OnPartHeader:  c.onPartHeader,
		OnPartHeaders: c.onPartHeaders,
		OnPartContent: c.onPartContent,
		OnPartEnd:     c.onPartEnd,
	}
}

func (c *Collector) onPartBegin() {
	c.cur = &Part{}
	c.curBuf = bytebufferpool.Get()
	c.curFile = nil
	c.curPath = ""
	c.curSize = 0
	c.spilled = false
}

func (c *Collector) onPartHeader(name, value string) {
	c.cur.Headers = append(c.cur.Headers, Header{Name: name, Value: value})
	if !equalFoldASCII(name, "Content-Disposition") {
		return
	}
	_, params, err := mime.ParseMediaType(value)
	if err != nil {
		return
	}
	c.cur.Name = params["name"]
	c.cur.FileName = params["filename"]
}

func (c *Collector) onPartHeaders() {}

func (c *Collector) onPartContent(chunk []byte, last bool) {
	if len(chunk) > 0 {
		if c.MaxMemoryPartSize > 0 && !c.spilled && c.curSize+int64(len(chunk)) > c.MaxMemoryPartSize {
			c.spillLocked()
		}
		c.curSize += int64(len(chunk))
		if c.spilled {
			c.curFile.Write(chunk)
		} else {
			c.curBuf.Write(chunk)
		}
	}
	if last {
		c.finishPart()
	}
}

func (c *Collector) spillLocked() {
	f, err := os.CreateTemp(c.TempDir, "h2engine-multipart-*")
	if err != nil {
		// Fall back to in-memory; the Collector has no error channel of
		// its own and the part may simply grow larger than intended.
		return
	}
	f.Write(c.curBuf.B)
	c.curBuf.Reset()
	c.curFile = f
	c.curPath = f.Name()
	c.spilled = true
}

func (c *Collector) finishPart() {
	p := c.cur
	if c.spilled {
		c.curFile.Close()
		p.source = &diskSource{path: c.curPath, end: -1}
		p.diskPath = c.curPath
	} else {
		p.source = &memorySource{chunks: [][]byte{append([]byte(nil), c.curBuf.B...)}}
		bytebufferpool.Put(c.curBuf)
	}
	c.Parts = append(c.Parts, p)
	c.cur, c.curBuf, c.curFile, c.curPath = nil, nil, nil, ""
}

func (c *Collector) onPartEnd() {}

// Release deletes every collected part's spill file that has not been
// promoted via Part.WriteTo, and any in-flight spill file for a part
// that never finished. Call after a failed or abandoned parse.
func (c *Collector) Release() {
	for _, p := range c.Parts {
		p.release()
	}
	if c.curFile != nil {
		c.curFile.Close()
		os.Remove(c.curPath)
	}
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
