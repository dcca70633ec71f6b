// Package journal persists the processed event sequence of a run as a
// checksummed binary log. Two runs over the same configuration must produce
// byte-identical journals, so the running digest doubles as a determinism
// fingerprint.
package journal

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

const (
	recordVersion      uint16 = 1
	recordHeaderSize          = 32
	recordChecksumSize        = 4
)

var (
	recordMagic = [4]byte{'B', 'T', 'J', '1'}
	crcTable    = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrInvalidMagic            = errors.New("journal invalid magic")
	ErrUnsupportedRecordVer    = errors.New("journal unsupported record version")
	ErrInvalidRecordHeaderSize = errors.New("journal invalid header size")
	ErrChecksumMismatch        = errors.New("journal checksum mismatch")
)

// RecordType tags the journaled event category.
type RecordType uint16

const (
	RecordUnknown RecordType = iota
	RecordQuote
	RecordTrade
	RecordDelta
	RecordStatus
	RecordBar
	RecordOrderEvent
	RecordAccountEvent
	RecordRunMark
)

func (t RecordType) String() string {
	switch t {
	case RecordQuote:
		return "QUOTE"
	case RecordTrade:
		return "TRADE"
	case RecordDelta:
		return "DELTA"
	case RecordStatus:
		return "STATUS"
	case RecordBar:
		return "BAR"
	case RecordOrderEvent:
		return "ORDER_EVENT"
	case RecordAccountEvent:
		return "ACCOUNT_EVENT"
	case RecordRunMark:
		return "RUN_MARK"
	default:
		return "UNKNOWN"
	}
}

// Record is one journal entry.
type Record struct {
	Type    RecordType
	Seq     uint64
	TsEvent int64
	Payload []byte
}

func encodeHeader(dst []byte, r Record) {
	_ = dst[recordHeaderSize-1]
	copy(dst[0:4], recordMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], recordVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(recordHeaderSize))
	binary.LittleEndian.PutUint16(dst[8:10], uint16(r.Type))
	binary.LittleEndian.PutUint16(dst[10:12], 0)
	binary.LittleEndian.PutUint32(dst[12:16], uint32(len(r.Payload)))
	binary.LittleEndian.PutUint64(dst[16:24], r.Seq)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(r.TsEvent))
}

func decodeHeader(src []byte) (Record, uint32, error) {
	if len(src) < recordHeaderSize {
		return Record{}, 0, ErrInvalidRecordHeaderSize
	}
	if !(src[0] == recordMagic[0] && src[1] == recordMagic[1] &&
		src[2] == recordMagic[2] && src[3] == recordMagic[3]) {
		return Record{}, 0, ErrInvalidMagic
	}
	if binary.LittleEndian.Uint16(src[4:6]) != recordVersion {
		return Record{}, 0, ErrUnsupportedRecordVer
	}
	if binary.LittleEndian.Uint16(src[6:8]) != recordHeaderSize {
		return Record{}, 0, ErrInvalidRecordHeaderSize
	}
	payloadLen := binary.LittleEndian.Uint32(src[12:16])
	r := Record{
		Type:    RecordType(binary.LittleEndian.Uint16(src[8:10])),
		Seq:     binary.LittleEndian.Uint64(src[16:24]),
		TsEvent: int64(binary.LittleEndian.Uint64(src[24:32])),
	}
	return r, payloadLen, nil
}

func checksum(header, payload []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	return crc32.Update(crc, crcTable, payload)
}

// Digest accumulates the run fingerprint over appended records without
// persisting anything.
type Digest struct {
	crc   uint32
	count uint64
}

// Add folds one record into the fingerprint and returns its sequence number.
func (d *Digest) Add(recordType RecordType, tsEvent int64, payload []byte) uint64 {
	d.count++
	var header [recordHeaderSize]byte
	encodeHeader(header[:], Record{Type: recordType, Seq: d.count, TsEvent: tsEvent, Payload: payload})
	d.crc = crc32.Update(d.crc, crcTable, header[:])
	d.crc = crc32.Update(d.crc, crcTable, payload)
	return d.count
}

// Sum returns the accumulated fingerprint.
func (d Digest) Sum() uint32 { return d.crc }

// Count returns the number of records folded in.
func (d Digest) Count() uint64 { return d.count }

// Reset clears the fingerprint for a fresh run.
func (d *Digest) Reset() {
	d.crc = 0
	d.count = 0
}
