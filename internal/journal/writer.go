package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
)

var ErrWriterClosed = errors.New("journal writer closed")

// Writer appends records to a single journal file. The backtest loop is
// single-threaded, so writes are synchronous and sequenced by the writer.
type Writer struct {
	file   *os.File
	buf    *bufio.Writer
	digest Digest
	closed bool
}

// NewWriter creates the journal file, truncating any previous run's output.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &Writer{
		file: file,
		buf:  bufio.NewWriterSize(file, 1<<16),
	}, nil
}

// Append writes one record and folds it into the digest.
func (w *Writer) Append(recordType RecordType, tsEvent int64, payload []byte) error {
	if w.closed {
		return ErrWriterClosed
	}
	seq := w.digest.count + 1
	var header [recordHeaderSize]byte
	encodeHeader(header[:], Record{Type: recordType, Seq: seq, TsEvent: tsEvent, Payload: payload})
	sum := checksum(header[:], payload)

	if _, err := w.buf.Write(header[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.buf.Write(payload); err != nil {
			return err
		}
	}
	var trailer [recordChecksumSize]byte
	binary.LittleEndian.PutUint32(trailer[:], sum)
	if _, err := w.buf.Write(trailer[:]); err != nil {
		return err
	}
	w.digest.Add(recordType, tsEvent, payload)
	return nil
}

// Digest returns the fingerprint over everything appended so far.
func (w *Writer) Digest() Digest { return w.digest }

// Close flushes and syncs the journal.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.buf.Flush(); err != nil {
		_ = w.file.Close()
		return err
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}
