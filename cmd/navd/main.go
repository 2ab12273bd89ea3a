package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skinny-l/IndoorNavigation1-sub003/binlog"
	"github.com/skinny-l/IndoorNavigation1-sub003/feed"
	"github.com/skinny-l/IndoorNavigation1-sub003/fusion"
	"github.com/skinny-l/IndoorNavigation1-sub003/nav"
	"github.com/skinny-l/IndoorNavigation1-sub003/server"
	"github.com/skinny-l/IndoorNavigation1-sub003/web"
)

type feedTarget struct {
	Proto string `yaml:"proto"` // udp or tcp
	Addr  string `yaml:"addr"`
	Mask  uint32 `yaml:"mask"` // 0 means all record kinds
}

type appConfig struct {
	Fusion *fusion.Config `yaml:"fusion"`
	Nav    *nav.Config    `yaml:"nav"`
	Feed   []feedTarget   `yaml:"feed"`
}

func loadAppConfig(path string) (*appConfig, error) {
	cfg := &appConfig{
		Fusion: fusion.DefaultConfig(),
		Nav:    nav.DefaultConfig(),
	}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Fusion.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Nav.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config (defaults apply when empty)")
	buildingPath := flag.String("building", "building.xml", "Path to the building XML")
	graphPath := flag.String("graph", "", "Path to the navigation graph JSON (optional)")
	port := flag.Int("port", server.DefaultPort, "UDP ingest port")
	httpPort := flag.Int("http", 8080, "HTTP/WebSocket port. 0 to disable.")
	staticDir := flag.String("static", "", "Static frontend directory (optional)")
	capturePath := flag.String("capture", "", "Session capture file or directory (optional)")
	replayPath := flag.String("replay", "", "Replay a session capture instead of listening")
	replaySpeed := flag.Float64("speed", 1.0, "Replay speed multiplier (0 for max speed)")
	flag.Parse()

	cfg, err := loadAppConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	building, err := fusion.ParseBuilding(*buildingPath)
	if err != nil {
		log.Fatalf("building: %v", err)
	}
	log.Printf("loaded building %q: %d floors, %d ble + %d wifi emitters",
		building.Name, len(building.Floors),
		len(building.Emitters(fusion.ChannelBLE)), len(building.Emitters(fusion.ChannelWifi)))

	graph := nav.NewGraph()
	if *graphPath != "" {
		g, err := nav.LoadGraph(*graphPath)
		if err != nil {
			log.Fatalf("graph: %v", err)
		}
		graph = g
		log.Printf("loaded navigation graph: %d nodes", graph.Len())
	}

	var sender *feed.Sender
	if len(cfg.Feed) > 0 {
		sender = feed.NewSender()
		for _, t := range cfg.Feed {
			mask := t.Mask
			if mask == 0 {
				mask = feed.FlagAll
			}
			if t.Proto == "tcp" {
				sender.AddTCPTarget(t.Addr, mask)
				log.Printf("feed: tcp target %s (mask %#x)", t.Addr, mask)
			} else {
				if err := sender.AddUDPTarget(t.Addr, mask); err != nil {
					log.Fatalf("feed: %v", err)
				}
				log.Printf("feed: udp target %s (mask %#x)", t.Addr, mask)
			}
		}
		if err := sender.Start(); err != nil {
			log.Fatalf("feed: %v", err)
		}
		defer sender.Stop()
	}

	var capture *binlog.Writer
	if *capturePath != "" {
		path := *capturePath
		if fi, err := os.Stat(path); err == nil && fi.IsDir() {
			path = fmt.Sprintf("%s/session_%s.bin", path, time.Now().Format("20060102150405"))
		}
		capture, err = binlog.NewWriter(path)
		if err != nil {
			log.Fatalf("capture: %v", err)
		}
		defer capture.Close()
		log.Printf("capturing session to %s", path)
	}

	pub := server.NewPublisher(nil, sender, capture)
	pipeline := fusion.NewPipeline(cfg.Fusion, building, graph, pub.OnRecovery)
	router := nav.NewRouter(graph, cfg.Nav)
	ctrl := nav.NewController(graph, router, cfg.Nav, pub.OnNav)

	udpSvr, err := server.NewUdpServer(*port, pipeline)
	if err != nil {
		log.Fatalf("ingest: %v", err)
	}
	if capture != nil {
		udpSvr.SetCapture(capture)
	}

	var webSvr *web.Server
	if *httpPort > 0 {
		webSvr = web.NewServer(pipeline, ctrl, graph)
		pub.Hub = webSvr.Hub
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go pipeline.Run(ctx)
	go pub.Run(ctx, pipeline)

	navCh := pipeline.Subscribe()
	defer pipeline.Unsubscribe(navCh)
	go ctrl.Run(ctx, navCh)

	if webSvr != nil {
		go webSvr.Start(*httpPort, *staticDir)
	}

	if *replayPath != "" {
		go func() {
			if err := udpSvr.Replay(*replayPath, *replaySpeed); err != nil {
				log.Printf("replay: %v", err)
			}
		}()
	} else {
		go udpSvr.Start()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("shutting down")
	cancel()
	udpSvr.Stop()
}
