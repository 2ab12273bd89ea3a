package server

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/skinny-l/IndoorNavigation1-sub003/binlog"
	"github.com/skinny-l/IndoorNavigation1-sub003/feed"
	"github.com/skinny-l/IndoorNavigation1-sub003/fusion"
	"github.com/skinny-l/IndoorNavigation1-sub003/nav"
	"github.com/skinny-l/IndoorNavigation1-sub003/web"
)

// Publisher forwards fused estimates and session events to the websocket
// hub, the downstream feed and the session capture. Every sink is optional.
type Publisher struct {
	Hub     *web.Hub
	Feed    *feed.Sender
	Capture *binlog.Writer

	pipeline *fusion.Pipeline
}

func NewPublisher(hub *web.Hub, snd *feed.Sender, capture *binlog.Writer) *Publisher {
	return &Publisher{Hub: hub, Feed: snd, Capture: capture}
}

// streamMsg is the websocket wire shape; exactly one payload field is set.
type streamMsg struct {
	Kind     string        `json:"kind"`
	Position *positionMsg  `json:"position,omitempty"`
	Recovery *fusion.Event `json:"recovery,omitempty"`
	Nav      *nav.NavEvent `json:"nav,omitempty"`
}

type positionMsg struct {
	fusion.Estimate
	State string `json:"state"`
}

// Run consumes the pipeline's estimate stream until ctx ends.
func (pb *Publisher) Run(ctx context.Context, p *fusion.Pipeline) {
	pb.pipeline = p
	ch := p.Subscribe()
	defer p.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case est := <-ch:
			pb.onEstimate(est)
		}
	}
}

func (pb *Publisher) onEstimate(est fusion.Estimate) {
	state := ""
	if pb.pipeline != nil {
		state = pb.pipeline.State().String()
	}
	pb.broadcast(streamMsg{Kind: "position", Position: &positionMsg{Estimate: est, State: state}})

	atMs := est.At.UnixMilli()
	if pb.Feed != nil {
		rec := feed.FormatPosition(atMs, est.Pos.Floor, est.Pos.X, est.Pos.Y, est.Accuracy, state)
		pb.Feed.Send(rec, feed.FlagPosition)
	}
	if pb.Capture != nil {
		if b, err := json.Marshal(est); err == nil {
			_ = pb.Capture.WriteRecord(binlog.FlagEstimate, atMs, b)
		}
	}
}

// OnRecovery is wired as the pipeline's recovery-event callback.
func (pb *Publisher) OnRecovery(ev fusion.Event) {
	pb.broadcast(streamMsg{Kind: "recovery", Recovery: &ev})
	if pb.Feed != nil {
		rec := feed.FormatRecovery(time.Now().UnixMilli(), ev.State, ev.Attempt)
		pb.Feed.Send(rec, feed.FlagRecovery)
	}
}

// OnNav is wired as the controller's event callback.
func (pb *Publisher) OnNav(ev nav.NavEvent) {
	pb.broadcast(streamMsg{Kind: "nav", Nav: &ev})
	if pb.Feed == nil {
		return
	}
	now := time.Now().UnixMilli()
	switch ev.Kind {
	case nav.NavEventRoute, nav.NavEventRerouted:
		if ev.Route != nil {
			rec := feed.FormatRoute(now, ev.Route.ID, ev.Route.DestID, ev.Route.Distance, ev.Route.ETASeconds)
			pb.Feed.Send(rec, feed.FlagRoute)
		}
	case nav.NavEventArrived:
		if ev.Route != nil {
			rec := feed.FormatArrival(now, ev.Route.ID, ev.Route.DestID)
			pb.Feed.Send(rec, feed.FlagArrival)
		}
	}
}

func (pb *Publisher) broadcast(msg streamMsg) {
	if pb.Hub == nil {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		log.Printf("publish: marshal %s failed: %v", msg.Kind, err)
		return
	}
	pb.Hub.Broadcast(b)
}
