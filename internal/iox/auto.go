package iox

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
)

func isGzip(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".gz")
}

// OpenAuto opens path for reading, transparently decompressing *.gz logs.
func OpenAuto(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !isGzip(path) {
		return f, nil
	}
	gr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &multiCloser{Reader: gr, closers: []io.Closer{gr, f}}, nil
}

// CreateAuto creates path, gzip-compressing when it ends in .gz. Parent
// directories are created as needed.
func CreateAuto(path string) (io.WriteCloser, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if !isGzip(path) {
		return f, nil
	}
	gw := gzip.NewWriter(f)
	return &multiCloser{Writer: gw, closers: []io.Closer{gw, f}}, nil
}

// CountLines counts lines in path (a trailing line without newline counts too).
// Used to report progress as done/total before the real pass.
func CountLines(path string) (int64, error) {
	in, err := OpenAuto(path)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	br := bufio.NewReaderSize(in, 1<<20)
	buf := make([]byte, 1<<16)
	var n int64
	var last byte = '\n'
	for {
		k, err := br.Read(buf)
		if k > 0 {
			n += int64(bytes.Count(buf[:k], []byte{'\n'}))
			last = buf[k-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, err
		}
	}
	if last != '\n' {
		n++
	}
	return n, nil
}

type multiCloser struct {
	io.Reader
	io.Writer
	closers []io.Closer
}

func (m *multiCloser) Close() error {
	var err error
	for _, c := range m.closers {
		if e := c.Close(); err == nil && e != nil {
			err = e
		}
	}
	return err
}
