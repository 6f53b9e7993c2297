// Package wire holds the XDR codec shared by the control transport and the
// data channels.
//
// Stream transports carry records with an RFC 5531 style record-marking
// header: a 4-byte big-endian word whose top bit flags the last fragment and
// whose low 31 bits give the fragment length. Only single-fragment records
// are produced; multi-fragment records are reassembled on read.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	xdr "github.com/rasky/go-xdr/xdr2"
)

const (
	lastFragment = 0x80000000
	lengthMask   = 0x7FFFFFFF

	// DefaultMaxRecord bounds a single record to prevent memory exhaustion.
	DefaultMaxRecord = 4 << 20
)

// Marshal encodes v as XDR.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, v); err != nil {
		return nil, fmt.Errorf("xdr marshal %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes XDR data into v.
func Unmarshal(data []byte, v any) error {
	if _, err := xdr.Unmarshal(bytes.NewReader(data), v); err != nil {
		return fmt.Errorf("xdr unmarshal %T: %w", v, err)
	}
	return nil
}

// WriteRecord writes v as one record-marked record.
func WriteRecord(w io.Writer, v any) error {
	body, err := Marshal(v)
	if err != nil {
		return err
	}
	if len(body) > lengthMask {
		return fmt.Errorf("record too large: %d bytes", len(body))
	}

	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(body))|lastFragment)
	copy(frame[4:], body)

	_, err = w.Write(frame)
	return err
}

// ReadRecord reads one record into v. A clean EOF before the first header
// byte is returned as io.EOF; a truncated record as io.ErrUnexpectedEOF.
func ReadRecord(r io.Reader, maxSize uint32, v any) error {
	body, err := readRecordBytes(r, maxSize)
	if err != nil {
		return err
	}
	return Unmarshal(body, v)
}

func readRecordBytes(r io.Reader, maxSize uint32) ([]byte, error) {
	if maxSize == 0 {
		maxSize = DefaultMaxRecord
	}

	var record []byte
	for {
		var hdr [4]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if err == io.ErrUnexpectedEOF || (err == io.EOF && record != nil) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}

		word := binary.BigEndian.Uint32(hdr[:])
		length := word & lengthMask
		if uint64(len(record))+uint64(length) > uint64(maxSize) {
			return nil, fmt.Errorf("record too large: %d bytes exceeds %d", uint64(len(record))+uint64(length), maxSize)
		}

		start := len(record)
		record = append(record, make([]byte, length)...)
		if _, err := io.ReadFull(r, record[start:]); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}

		if word&lastFragment != 0 {
			return record, nil
		}
	}
}
