package server

import (
	"log"
	"net"
	"time"

	"github.com/skinny-l/IndoorNavigation1-sub003/binlog"
	"github.com/skinny-l/IndoorNavigation1-sub003/fusion"
)

const (
	DefaultPort   = 44333
	MaxPacketSize = 65535
)

// UdpServer receives sensor envelopes from devices and feeds them into the
// fusion pipeline. One datagram carries one envelope.
type UdpServer struct {
	conn     *net.UDPConn
	pipeline *fusion.Pipeline
	capture  *binlog.Writer
	running  bool
}

func NewUdpServer(port int, pipeline *fusion.Pipeline) (*UdpServer, error) {
	if port == 0 {
		port = DefaultPort
	}
	addr := net.UDPAddr{
		Port: port,
		IP:   net.ParseIP("0.0.0.0"),
	}
	conn, err := net.ListenUDP("udp", &addr)
	if err != nil {
		return nil, err
	}
	conn.SetReadBuffer(256 * 1024)

	return &UdpServer{conn: conn, pipeline: pipeline}, nil
}

// SetCapture enables session logging of accepted envelopes.
func (s *UdpServer) SetCapture(w *binlog.Writer) {
	s.capture = w
}

func (s *UdpServer) Start() {
	s.running = true
	buf := make([]byte, MaxPacketSize)
	log.Printf("ingest: listening on %s", s.conn.LocalAddr())

	for s.running {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if s.running {
				log.Printf("ingest: read error: %v", err)
			}
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		s.handleDatagram(data, addr, time.Now().UnixMilli())
	}
}

func (s *UdpServer) Stop() {
	s.running = false
	s.conn.Close()
}

func (s *UdpServer) handleDatagram(data []byte, addr *net.UDPAddr, nowMs int64) {
	env, err := ParseEnvelope(data)
	if err != nil {
		log.Printf("ingest: dropped datagram from %s: %v", addr, err)
		return
	}

	if s.capture != nil {
		_ = s.capture.WriteRecord(captureFlag(env.Type), nowMs, data)
	}

	switch env.Type {
	case TypeRanging:
		s.pipeline.SubmitRanging(env.SignalReadings(fusion.ChannelBLE, nowMs))
	case TypeWifi:
		s.pipeline.SubmitWifi(env.SignalReadings(fusion.ChannelWifi, nowMs))
	case TypeMotion:
		s.pipeline.SubmitMotion(env.MotionSample(nowMs))
	}
}

func captureFlag(typ string) uint16 {
	switch typ {
	case TypeRanging:
		return binlog.FlagRanging
	case TypeWifi:
		return binlog.FlagWifi
	case TypeMotion:
		return binlog.FlagMotion
	}
	return 0
}
