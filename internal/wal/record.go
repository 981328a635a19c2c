package wal

import (
	"encoding/binary"
	"io"
)

// Job states as persisted in the state field.
const (
	StateReady    uint16 = 0
	StateDelayed  uint16 = 1
	StateReserved uint16 = 2
	StateBuried   uint16 = 3
	StateInvalid  uint16 = 4
)

// headerSize is the fixed prefix before the tube length field.
const headerSize = 58

// Record is one journal entry. A full record carries Tube and Body; a delta
// record carries zero-length strings in their place.
type Record struct {
	ID       uint64
	Delay    uint32 // seconds
	TTR      uint32 // seconds
	Priority uint32

	CreatedAt  int64 // ms
	DeadlineAt int64 // ms; 0 if absent

	State uint16

	Reserves uint32
	Timeouts uint32
	Releases uint32
	Buries   uint32
	Kicks    uint32

	Tube string
	Body []byte

	Full bool
}

// Encode serializes the record. Delta records write zero lengths for tube
// and body regardless of the struct fields.
func (r Record) Encode() []byte {
	tube, body := []byte(r.Tube), r.Body
	if !r.Full {
		tube, body = nil, nil
	}
	out := make([]byte, headerSize+4+len(tube)+4+len(body))
	binary.BigEndian.PutUint64(out[0:8], r.ID)
	binary.BigEndian.PutUint32(out[8:12], r.Delay)
	binary.BigEndian.PutUint32(out[12:16], r.TTR)
	binary.BigEndian.PutUint32(out[16:20], r.Priority)
	binary.BigEndian.PutUint64(out[20:28], uint64(r.CreatedAt))
	binary.BigEndian.PutUint64(out[28:36], uint64(r.DeadlineAt))
	binary.BigEndian.PutUint16(out[36:38], r.State)
	binary.BigEndian.PutUint32(out[38:42], r.Reserves)
	binary.BigEndian.PutUint32(out[42:46], r.Timeouts)
	binary.BigEndian.PutUint32(out[46:50], r.Releases)
	binary.BigEndian.PutUint32(out[50:54], r.Buries)
	binary.BigEndian.PutUint32(out[54:58], r.Kicks)
	off := headerSize
	binary.BigEndian.PutUint32(out[off:off+4], uint32(len(tube)))
	off += 4
	copy(out[off:], tube)
	off += len(tube)
	binary.BigEndian.PutUint32(out[off:off+4], uint32(len(body)))
	off += 4
	copy(out[off:], body)
	return out
}

// ReadRecord reads one record from r. It returns io.EOF at a clean record
// boundary and io.ErrUnexpectedEOF when the stream ends mid-record.
func ReadRecord(r io.Reader) (Record, error) {
	var hdr [headerSize + 4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, io.ErrUnexpectedEOF
	}
	rec := Record{
		ID:         binary.BigEndian.Uint64(hdr[0:8]),
		Delay:      binary.BigEndian.Uint32(hdr[8:12]),
		TTR:        binary.BigEndian.Uint32(hdr[12:16]),
		Priority:   binary.BigEndian.Uint32(hdr[16:20]),
		CreatedAt:  int64(binary.BigEndian.Uint64(hdr[20:28])),
		DeadlineAt: int64(binary.BigEndian.Uint64(hdr[28:36])),
		State:      binary.BigEndian.Uint16(hdr[36:38]),
		Reserves:   binary.BigEndian.Uint32(hdr[38:42]),
		Timeouts:   binary.BigEndian.Uint32(hdr[42:46]),
		Releases:   binary.BigEndian.Uint32(hdr[46:50]),
		Buries:     binary.BigEndian.Uint32(hdr[50:54]),
		Kicks:      binary.BigEndian.Uint32(hdr[54:58]),
	}
	tubeLen := binary.BigEndian.Uint32(hdr[headerSize : headerSize+4])
	if tubeLen > 0 {
		tube := make([]byte, tubeLen)
		if _, err := io.ReadFull(r, tube); err != nil {
			return Record{}, io.ErrUnexpectedEOF
		}
		rec.Tube = string(tube)
	}
	var blen [4]byte
	if _, err := io.ReadFull(r, blen[:]); err != nil {
		return Record{}, io.ErrUnexpectedEOF
	}
	bodyLen := binary.BigEndian.Uint32(blen[:])
	if bodyLen > 0 {
		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(r, body); err != nil {
			return Record{}, io.ErrUnexpectedEOF
		}
		rec.Body = body
	}
	rec.Full = tubeLen > 0
	return rec, nil
}
