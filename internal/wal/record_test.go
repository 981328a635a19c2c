package wal

import (
	"bytes"
	"io"
	"testing"
)

func TestRecordRoundtripFull(t *testing.T) {
	rec := Record{
		ID:         42,
		Delay:      3,
		TTR:        120,
		Priority:   1024,
		CreatedAt:  1700000000000,
		DeadlineAt: 1700000003000,
		State:      StateDelayed,
		Reserves:   1,
		Timeouts:   2,
		Releases:   3,
		Buries:     4,
		Kicks:      5,
		Tube:       "orders",
		Body:       []byte("payload \x00 with binary"),
		Full:       true,
	}
	got, err := ReadRecord(bytes.NewReader(rec.Encode()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != rec.ID || got.Tube != rec.Tube || !bytes.Equal(got.Body, rec.Body) {
		t.Fatalf("mismatch: %+v", got)
	}
	if got.Priority != rec.Priority || got.DeadlineAt != rec.DeadlineAt || got.Kicks != rec.Kicks {
		t.Fatalf("field mismatch: %+v", got)
	}
	if !got.Full {
		t.Fatalf("full record decoded as delta")
	}
}

func TestRecordRoundtripDelta(t *testing.T) {
	rec := Record{ID: 7, State: StateBuried, Buries: 1, Tube: "ignored", Body: []byte("ignored")}
	got, err := ReadRecord(bytes.NewReader(rec.Encode()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Full {
		t.Fatalf("delta decoded as full")
	}
	if got.Tube != "" || got.Body != nil {
		t.Fatalf("delta carried strings: %+v", got)
	}
	if got.State != StateBuried || got.Buries != 1 {
		t.Fatalf("field mismatch: %+v", got)
	}
}

func TestReadRecordTruncated(t *testing.T) {
	rec := Record{ID: 1, Tube: "t", Body: []byte("body"), Full: true}
	enc := rec.Encode()
	for _, cut := range []int{1, headerSize, headerSize + 5, len(enc) - 1} {
		if _, err := ReadRecord(bytes.NewReader(enc[:cut])); err != io.ErrUnexpectedEOF {
			t.Fatalf("cut=%d err=%v, want unexpected EOF", cut, err)
		}
	}
	if _, err := ReadRecord(bytes.NewReader(nil)); err != io.EOF {
		t.Fatalf("empty err=%v, want EOF", err)
	}
}
