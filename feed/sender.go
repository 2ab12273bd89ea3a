package feed

import (
	"log"
	"net"
	"sync"
	"time"
)

const (
	queueDepth     = 1000
	dialTimeout    = 2 * time.Second
	writeTimeout   = 5 * time.Second
	reconnectPause = 500 * time.Millisecond
)

type udpTarget struct {
	addr *net.UDPAddr
	mask uint32
}

type tcpTarget struct {
	addr    string
	mask    uint32
	queue   chan []byte
	running bool
	wg      sync.WaitGroup
}

// Sender fans formatted feed records out to downstream consumers. UDP
// targets get fire-and-forget datagrams; TCP targets get a buffered queue
// with reconnect, dropping records when the queue backs up.
type Sender struct {
	udp     []*udpTarget
	tcp     []*tcpTarget
	conn    *net.UDPConn
	running bool
}

func NewSender() *Sender {
	return &Sender{}
}

func (s *Sender) AddUDPTarget(addr string, mask uint32) error {
	uaddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	s.udp = append(s.udp, &udpTarget{addr: uaddr, mask: mask})
	return nil
}

func (s *Sender) AddTCPTarget(addr string, mask uint32) {
	s.tcp = append(s.tcp, &tcpTarget{
		addr:  addr,
		mask:  mask,
		queue: make(chan []byte, queueDepth),
	})
}

func (s *Sender) Start() error {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return err
	}
	s.conn = conn
	s.running = true
	for _, t := range s.tcp {
		t.start()
	}
	return nil
}

func (s *Sender) Stop() {
	s.running = false
	if s.conn != nil {
		s.conn.Close()
	}
	for _, t := range s.tcp {
		t.stop()
	}
}

// Send delivers a record to every target whose mask covers flag.
func (s *Sender) Send(record []byte, flag uint32) {
	if !s.running {
		return
	}
	for _, t := range s.udp {
		if t.mask&flag == flag {
			s.conn.WriteToUDP(record, t.addr)
		}
	}
	for _, t := range s.tcp {
		if t.mask&flag == flag {
			select {
			case t.queue <- record:
			default:
				// queue full, drop
			}
		}
	}
}

func (t *tcpTarget) start() {
	t.running = true
	t.wg.Add(1)
	go t.loop()
}

func (t *tcpTarget) stop() {
	t.running = false
	close(t.queue)
	t.wg.Wait()
}

func (t *tcpTarget) loop() {
	defer t.wg.Done()
	var conn net.Conn

	dial := func() bool {
		if conn != nil {
			return true
		}
		c, err := net.DialTimeout("tcp", t.addr, dialTimeout)
		if err != nil {
			return false
		}
		conn = c
		return true
	}

	for record := range t.queue {
		if !t.running {
			break
		}
		if !dial() {
			time.Sleep(reconnectPause)
			if !dial() {
				continue
			}
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := conn.Write(record); err != nil {
			log.Printf("feed: write to %s failed: %v", t.addr, err)
			conn.Close()
			conn = nil
		}
	}
	if conn != nil {
		conn.Close()
	}
}
