package server

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/gatewire/gatewire/internal/codec/http1"
	"github.com/gatewire/gatewire/pkg/gateway"
)

// FileError reports a failed file-body send. It is fatal to the one
// connection it happened on and nothing else: the server keeps accepting.
type FileError struct {
	Path     string
	NotFound bool
	Err      error
}

func (e *FileError) Error() string {
	if e.NotFound {
		return fmt.Sprintf("file not found: %s", e.Path)
	}
	return fmt.Sprintf("file send %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// sendFile streams a file or filehandle body event. Offset/Length select
// the byte window (offset 0 = start of file, negative length = rest of
// file) so handlers can serve partial-content responses. File sends are
// always terminal.
func (ex *httpExchange) sendFile(ev gateway.HTTPResponseBody) error {
	f := ev.File
	name := ev.Path
	if f == nil {
		opened, err := os.Open(ev.Path)
		if err != nil {
			return ex.fail(&FileError{Path: ev.Path, NotFound: errors.Is(err, os.ErrNotExist), Err: err})
		}
		defer opened.Close()
		f = opened
	} else if name == "" {
		name = f.Name()
	}

	info, err := f.Stat()
	if err != nil {
		return ex.fail(&FileError{Path: name, Err: err})
	}
	size := info.Size()

	offset := ev.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > size {
		return ex.fail(&FileError{Path: name, Err: fmt.Errorf("offset %d beyond size %d", offset, size)})
	}
	length := ev.Length
	if length < 0 || length > size-offset {
		length = size - offset
	}

	if !ex.wroteHeader {
		if !ex.headers.Has("etag") {
			ex.headers = appendHeader(ex.headers, "etag", fileETag(name, info))
		}
		out := ex.headerBytes(length, true)
		if ex.suppressBody {
			ex.written += length
			ex.finished = true
			return ex.c.write(out)
		}
		if err := ex.c.write(out); err != nil {
			return err
		}
	} else if ex.suppressBody {
		ex.written += length
		ex.finished = true
		return nil
	}

	if err := ex.copyFile(f, offset, length); err != nil {
		return ex.fail(&FileError{Path: name, Err: err})
	}
	if ex.chunkedOut {
		if err := ex.c.write(http1.AppendBody(nil, nil, true, true)); err != nil {
			return err
		}
	}
	ex.written += length
	ex.finished = true
	return nil
}

// copyFile streams the selected window in fixed-size chunks, re-framing
// as chunks when the response already committed to chunked encoding.
func (ex *httpExchange) copyFile(f *os.File, offset, length int64) error {
	src := io.NewSectionReader(f, offset, length)
	buf := make([]byte, readChunkSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			var out []byte
			if ex.chunkedOut {
				out = http1.AppendBody(nil, buf[:n], false, true)
			} else {
				out = buf[:n]
			}
			if werr := ex.c.write(out); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// fail records a fatal file error; the connection machine aborts the
// connection after the handler unwinds.
func (ex *httpExchange) fail(err *FileError) error {
	ex.fatal = err
	return err
}

// fileETag derives a weak validator from the file identity, size, and
// modification time.
func fileETag(name string, info os.FileInfo) string {
	h := xxhash.New()
	_, _ = h.WriteString(name)
	_, _ = h.WriteString(strconv.FormatInt(info.Size(), 10))
	_, _ = h.WriteString(strconv.FormatInt(info.ModTime().UnixNano(), 10))
	return `W/"` + strconv.FormatUint(h.Sum64(), 16) + `"`
}
