package server

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skinny-l/IndoorNavigation1-sub003/binlog"
	"github.com/skinny-l/IndoorNavigation1-sub003/feed"
	"github.com/skinny-l/IndoorNavigation1-sub003/fusion"
	"github.com/skinny-l/IndoorNavigation1-sub003/nav"
)

// feedSink pairs a UDP listener with a started sender pointed at it.
func feedSink(t *testing.T) (*net.UDPConn, *feed.Sender) {
	t.Helper()
	sink, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })

	snd := feed.NewSender()
	require.NoError(t, snd.AddUDPTarget(sink.LocalAddr().String(), feed.FlagAll))
	require.NoError(t, snd.Start())
	t.Cleanup(snd.Stop)
	return sink, snd
}

func readRecord(t *testing.T, sink *net.UDPConn) string {
	t.Helper()
	buf := make([]byte, 1024)
	sink.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := sink.ReadFromUDP(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestPublisherFeedForwarding(t *testing.T) {
	t.Parallel()

	sink, snd := feedSink(t)
	pb := NewPublisher(nil, snd, nil)

	pb.OnRecovery(fusion.Event{Kind: fusion.EventPositionLost, State: "recovering", Attempt: 2})
	rec := readRecord(t, sink)
	assert.Contains(t, rec, ",RECOV,")
	assert.Contains(t, rec, ",recovering,2")

	route := &nav.Route{ID: "rt_1", DestID: "cafe", Distance: 38.5, ETASeconds: 30}
	pb.OnNav(nav.NavEvent{Kind: nav.NavEventRoute, Route: route})
	rec = readRecord(t, sink)
	assert.Contains(t, rec, ",ROUTE,")
	assert.Contains(t, rec, "rt_1")
	assert.Contains(t, rec, "cafe")

	pb.OnNav(nav.NavEvent{Kind: nav.NavEventArrived, Route: route})
	rec = readRecord(t, sink)
	assert.Contains(t, rec, ",ARRIVE,")

	// Progress stays on the websocket side; the feed never sees it.
	pb.OnNav(nav.NavEvent{Kind: nav.NavEventProgress, Progress: &nav.Progress{}})
	sink.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := sink.ReadFromUDP(make([]byte, 64))
	assert.Error(t, err)
}

func TestPublisherRun(t *testing.T) {
	t.Parallel()

	sink, snd := feedSink(t)
	capPath := filepath.Join(t.TempDir(), "session.cap")
	w, err := binlog.NewWriter(capPath)
	require.NoError(t, err)

	pb := NewPublisher(nil, snd, w)
	p := surveyedPipeline()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pb.Run(ctx, p)

	// Run subscribes asynchronously; keep injecting until a record lands.
	var rec string
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p.InjectPosition(fusion.Position{X: 2, Y: 3, Floor: 1})
		sink.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		buf := make([]byte, 1024)
		if n, _, err := sink.ReadFromUDP(buf); err == nil {
			rec = string(buf[:n])
			break
		}
	}
	require.NotEmpty(t, rec, "no position record reached the feed")
	assert.True(t, strings.HasPrefix(rec, "navfeed:"))
	assert.Contains(t, rec, ",POS,")
	assert.Contains(t, rec, ",active")

	cancel()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, w.Close())

	pr := binlog.NewParser(capPath)
	require.NoError(t, pr.Parse())
	require.NotEmpty(t, pr.Records)
	assert.EqualValues(t, binlog.FlagEstimate, pr.Records[0].Flag)
	assert.Contains(t, string(pr.Records[0].Payload), `"x":2`)
}
