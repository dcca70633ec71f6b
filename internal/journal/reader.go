package journal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Reader iterates a journal file, validating every record checksum.
type Reader struct {
	file *os.File
	buf  *bufio.Reader
	seq  uint64
}

// Open opens a journal file for reading.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: file, buf: bufio.NewReaderSize(file, 1<<16)}, nil
}

// Next returns the next record, or io.EOF at the end of the journal.
func (r *Reader) Next() (Record, error) {
	var header [recordHeaderSize]byte
	if _, err := io.ReadFull(r.buf, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Record{}, fmt.Errorf("journal truncated at seq %d: %w", r.seq, io.ErrUnexpectedEOF)
		}
		return Record{}, err
	}
	rec, payloadLen, err := decodeHeader(header[:])
	if err != nil {
		return Record{}, err
	}
	if payloadLen > 0 {
		rec.Payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r.buf, rec.Payload); err != nil {
			return Record{}, fmt.Errorf("journal truncated at seq %d: %w", rec.Seq, io.ErrUnexpectedEOF)
		}
	}
	var trailer [recordChecksumSize]byte
	if _, err := io.ReadFull(r.buf, trailer[:]); err != nil {
		return Record{}, fmt.Errorf("journal truncated at seq %d: %w", rec.Seq, io.ErrUnexpectedEOF)
	}
	if binary.LittleEndian.Uint32(trailer[:]) != checksum(header[:], rec.Payload) {
		return Record{}, fmt.Errorf("%w: seq %d", ErrChecksumMismatch, rec.Seq)
	}
	r.seq = rec.Seq
	return rec, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
