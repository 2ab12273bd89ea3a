package server

import (
	"log"
	"time"

	"github.com/skinny-l/IndoorNavigation1-sub003/binlog"
)

// Replay feeds a recorded session back through the ingest path, pacing
// records by their captured timestamps. speed <= 0 replays flat out.
// Estimate records are skipped; they are output, not input.
func (s *UdpServer) Replay(path string, speed float64) error {
	p := binlog.NewParser(path)
	if err := p.Parse(); err != nil {
		return err
	}

	s.running = true
	log.Printf("ingest: replaying %s at %.1fx", path, speed)

	var firstTs int64
	startReal := time.Now()
	count := 0

	for _, rec := range p.Records {
		if !s.running {
			break
		}
		if rec.Flag == binlog.FlagEstimate || len(rec.Payload) == 0 {
			continue
		}

		if firstTs == 0 {
			firstTs = rec.AtMs
			startReal = time.Now()
		} else if speed > 0 {
			target := time.Duration(float64(rec.AtMs-firstTs)/speed) * time.Millisecond
			if elapsed := time.Since(startReal); target > elapsed {
				time.Sleep(target - elapsed)
			}
		}

		s.handleDatagram(rec.Payload, nil, rec.AtMs)
		count++
	}

	log.Printf("ingest: replay done, %d records", count)
	return nil
}
