package binlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Record is one parsed capture entry.
type Record struct {
	AtMs    int64
	Flag    uint16
	Seq     uint32
	Payload []byte
}

// Parser loads a session log into memory. Session captures are small
// (hours of 1 Hz traffic), so there is no streaming mode.
type Parser struct {
	Path    string
	Records []Record
}

func NewParser(path string) *Parser {
	return &Parser{Path: path}
}

func (p *Parser) Parse() error {
	f, err := os.Open(p.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	hdr := make([]byte, globalHdrLen)
	if _, err := io.ReadFull(f, hdr); err != nil {
		return fmt.Errorf("capture header: %w", err)
	}
	if binary.LittleEndian.Uint32(hdr[0:4]) != Magic {
		return fmt.Errorf("capture header: bad magic")
	}

	for {
		rec := make([]byte, recordHdrLen)
		if _, err := io.ReadFull(f, rec); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("record header: %w", err)
		}
		tsSec := binary.LittleEndian.Uint32(rec[0:4])
		tsUsec := binary.LittleEndian.Uint32(rec[4:8])
		inclLen := binary.LittleEndian.Uint32(rec[8:12])
		if inclLen < extraHdrLen {
			// malformed record, skip the stated length
			if _, err := f.Seek(int64(inclLen), io.SeekCurrent); err != nil {
				return fmt.Errorf("skip malformed record: %w", err)
			}
			continue
		}

		extra := make([]byte, extraHdrLen)
		if _, err := io.ReadFull(f, extra); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("record extra header: %w", err)
		}
		flag := binary.LittleEndian.Uint16(extra[0:2])
		seq := binary.LittleEndian.Uint32(extra[4:8])

		payloadLen := int(inclLen) - extraHdrLen
		payload := make([]byte, payloadLen)
		if payloadLen > 0 {
			if _, err := io.ReadFull(f, payload); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					break
				}
				return fmt.Errorf("record payload: %w", err)
			}
		}

		atMs := int64(tsSec)*1000 + int64(tsUsec)/1000
		p.Records = append(p.Records, Record{
			AtMs:    atMs,
			Flag:    flag,
			Seq:     seq,
			Payload: payload,
		})
	}
	return nil
}

// EarliestTs returns the first record timestamp, 0 when empty.
func (p *Parser) EarliestTs() int64 {
	if len(p.Records) == 0 {
		return 0
	}
	min := p.Records[0].AtMs
	for _, r := range p.Records[1:] {
		if r.AtMs < min {
			min = r.AtMs
		}
	}
	return min
}
