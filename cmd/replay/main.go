package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skinny-l/IndoorNavigation1-sub003/binlog"
	"github.com/skinny-l/IndoorNavigation1-sub003/fusion"
	"github.com/skinny-l/IndoorNavigation1-sub003/server"
)

// replayConfig reads the same YAML file navd takes; only the fusion
// section matters here, the rest is ignored.
type replayConfig struct {
	Fusion *fusion.Config `yaml:"fusion"`
}

func main() {
	capPath := flag.String("capture", "", "Input session capture")
	configPath := flag.String("config", "", "YAML config (defaults apply when empty)")
	buildingPath := flag.String("building", "", "Building XML (required unless -inspect or -dest)")
	outPath := flag.String("out", "fused.csv", "Output CSV path")
	refPath := flag.String("ref", "", "Optional reference CSV for RMSE")
	maxShift := flag.Int("max-shift", 400, "Max row shift when aligning with the reference")
	destAddr := flag.String("dest", "", "Forward records to a live ingest socket instead of fusing")
	speed := flag.Float64("speed", 1.0, "Pacing multiplier for -dest (0 for max speed)")
	inspect := flag.Bool("inspect", false, "Print a capture summary and exit")
	flag.Parse()

	if *capPath == "" {
		log.Fatal("-capture required")
	}

	parser := binlog.NewParser(*capPath)
	if err := parser.Parse(); err != nil {
		log.Fatalf("parse capture: %v", err)
	}

	if *inspect {
		summarize(parser)
		return
	}
	if *destAddr != "" {
		if err := forward(parser, *destAddr, *speed); err != nil {
			log.Fatalf("forward: %v", err)
		}
		return
	}

	if *buildingPath == "" {
		log.Fatal("-building required")
	}
	cfg := fusion.DefaultConfig()
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			log.Fatalf("read config: %v", err)
		}
		rc := replayConfig{Fusion: cfg}
		if err := yaml.Unmarshal(data, &rc); err != nil {
			log.Fatalf("parse config: %v", err)
		}
		if err := cfg.Validate(); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	building, err := fusion.ParseBuilding(*buildingPath)
	if err != nil {
		log.Fatalf("building: %v", err)
	}

	rows := fuse(parser, cfg, building)
	if err := writeCSV(*outPath, rows); err != nil {
		log.Fatalf("write csv: %v", err)
	}
	fmt.Printf("written %d rows to %s\n", len(rows)-1, *outPath)

	if *refPath != "" {
		rmse, shift, err := compareWithRef(*outPath, *refPath, *maxShift)
		if err != nil {
			fmt.Printf("rmse compare failed: %v\n", err)
		} else {
			fmt.Printf("ref shift %d rows, RMSE %.3f m\n", shift, rmse)
		}
	}
}

// fuse drives a fresh pipeline deterministically off the capture clock:
// envelopes are submitted at their recorded times and the filter steps at
// the configured tick cadence in between.
func fuse(parser *binlog.Parser, cfg *fusion.Config, building *fusion.Building) [][]string {
	pipeline := fusion.NewPipeline(cfg, building, nil, nil)
	rows := [][]string{{"seq", "ts_ms", "x_m", "y_m", "floor", "accuracy_m"}}
	seq := 1
	tick := int64(cfg.TickMs)
	var nextStep int64

	step := func(ts int64) {
		est, ok := pipeline.Step(ts)
		if !ok {
			return
		}
		rows = append(rows, []string{
			strconv.Itoa(seq),
			strconv.FormatInt(ts, 10),
			fmt.Sprintf("%.4f", est.Pos.X),
			fmt.Sprintf("%.4f", est.Pos.Y),
			strconv.Itoa(est.Pos.Floor),
			fmt.Sprintf("%.3f", est.Accuracy),
		})
		seq++
	}

	for _, rec := range parser.Records {
		if rec.Flag == binlog.FlagEstimate || len(rec.Payload) == 0 {
			continue
		}
		env, err := server.ParseEnvelope(rec.Payload)
		if err != nil {
			continue
		}
		if nextStep == 0 {
			nextStep = rec.AtMs + tick
		}
		for rec.AtMs >= nextStep {
			step(nextStep)
			nextStep += tick
		}
		switch env.Type {
		case server.TypeRanging:
			pipeline.SubmitRanging(env.SignalReadings(fusion.ChannelBLE, rec.AtMs))
		case server.TypeWifi:
			pipeline.SubmitWifi(env.SignalReadings(fusion.ChannelWifi, rec.AtMs))
		case server.TypeMotion:
			pipeline.SubmitMotion(env.MotionSample(rec.AtMs))
		}
	}
	if nextStep != 0 {
		step(nextStep)
	}
	return rows
}

// forward pushes recorded envelopes to a live ingest socket, paced by the
// capture clock.
func forward(parser *binlog.Parser, dest string, speed float64) error {
	raddr, err := net.ResolveUDPAddr("udp", dest)
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("forwarding to %s", dest)
	var firstTs int64
	startReal := time.Now()
	count := 0

	for _, rec := range parser.Records {
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
		if _, err := conn.Write(rec.Payload); err != nil {
			log.Printf("write error: %v", err)
		}
		count++
	}
	fmt.Printf("sent %d records\n", count)
	return nil
}

func summarize(parser *binlog.Parser) {
	counts := map[uint16]int{}
	for _, rec := range parser.Records {
		counts[rec.Flag]++
	}
	names := []struct {
		flag uint16
		name string
	}{
		{binlog.FlagRanging, "ranging"},
		{binlog.FlagWifi, "wifi"},
		{binlog.FlagMotion, "motion"},
		{binlog.FlagEstimate, "estimate"},
	}
	fmt.Printf("%d records\n", len(parser.Records))
	for _, n := range names {
		fmt.Printf("  %-9s %d\n", n.name, counts[n.flag])
	}
	if len(parser.Records) > 0 {
		first := parser.EarliestTs()
		last := parser.Records[len(parser.Records)-1].AtMs
		fmt.Printf("  span      %.1fs\n", float64(last-first)/1000.0)
	}
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// compareWithRef aligns the produced track with a reference CSV by trying
// row shifts in both directions and reports the best RMSE.
func compareWithRef(predPath, refPath string, maxShift int) (float64, int, error) {
	pred, err := readXY(predPath)
	if err != nil {
		return 0, 0, err
	}
	ref, err := readXY(refPath)
	if err != nil {
		return 0, 0, err
	}
	bestShift := 0
	bestRmse := math.MaxFloat64
	for shift := -maxShift; shift <= maxShift; shift++ {
		var n int
		var sum float64
		if shift >= 0 {
			n = min(len(pred)-shift, len(ref))
			if n <= 0 {
				continue
			}
			for i := 0; i < n; i++ {
				dx := pred[i+shift][0] - ref[i][0]
				dy := pred[i+shift][1] - ref[i][1]
				sum += dx*dx + dy*dy
			}
		} else {
			s := -shift
			n = min(len(ref)-s, len(pred))
			if n <= 0 {
				continue
			}
			for i := 0; i < n; i++ {
				dx := pred[i][0] - ref[i+s][0]
				dy := pred[i][1] - ref[i+s][1]
				sum += dx*dx + dy*dy
			}
		}
		rmse := math.Sqrt(sum / float64(n))
		if rmse < bestRmse {
			bestRmse = rmse
			bestShift = shift
		}
	}
	return bestRmse, bestShift, nil
}

func readXY(path string) ([][2]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(recs) <= 1 {
		return nil, fmt.Errorf("no rows")
	}
	header := recs[0]
	pairs := [][2]string{
		{"x_m", "y_m"},
		{"fused_x_m", "fused_y_m"},
		{"x", "y"},
	}
	idxX, idxY := -1, -1
	for _, p := range pairs {
		ix := indexOf(header, p[0])
		iy := indexOf(header, p[1])
		if ix >= 0 && iy >= 0 {
			idxX, idxY = ix, iy
			break
		}
	}
	if idxX < 0 || idxY < 0 {
		return nil, fmt.Errorf("columns not found")
	}
	out := make([][2]float64, 0, len(recs)-1)
	for _, row := range recs[1:] {
		if len(row) <= idxX || len(row) <= idxY {
			continue
		}
		x, _ := strconv.ParseFloat(row[idxX], 64)
		y, _ := strconv.ParseFloat(row[idxY], 64)
		out = append(out, [2]float64{x, y})
	}
	return out, nil
}

func indexOf(arr []string, key string) int {
	for i, v := range arr {
		if strings.EqualFold(v, key) {
			return i
		}
	}
	return -1
}
