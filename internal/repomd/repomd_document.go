package repomd

import (
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

type documentReader struct {
	io.Reader
	closers []func() error
}

func (d *documentReader) Close() error {
	var first error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenDocument opens a metadata document and decompresses it based on its
// extension. Unknown extensions are read as plain XML.
func OpenDocument(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	doc := &documentReader{Reader: file, closers: []func() error{file.Close}}

	switch filepath.Ext(path) {
	case ".gz":
		gz, err := gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("open gzip document %s: %w", path, err)
		}
		doc.Reader = gz
		doc.closers = append(doc.closers, gz.Close)
	case ".zst":
		zr, err := zstd.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("open zstd document %s: %w", path, err)
		}
		doc.Reader = zr
		doc.closers = append(doc.closers, func() error {
			zr.Close()
			return nil
		})
	case ".bz2":
		doc.Reader = bzip2.NewReader(file)
	}

	return doc, nil
}
