package fusion

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
)

// Floor is one storey of the building.
type Floor struct {
	Index int
	Name  string
}

// Building holds the site survey: floors, fixed emitters and recorded
// fingerprints. It implements FingerprintSource.
type Building struct {
	Name   string
	Floors []Floor

	ble  map[EmitterID]Emitter
	wifi map[EmitterID]Emitter
	fps  map[int][]Fingerprint
}

func NewBuilding(name string) *Building {
	return &Building{
		Name: name,
		ble:  map[EmitterID]Emitter{},
		wifi: map[EmitterID]Emitter{},
		fps:  map[int][]Fingerprint{},
	}
}

func (b *Building) AddFloor(f Floor) {
	b.Floors = append(b.Floors, f)
}

func (b *Building) AddEmitter(e Emitter) {
	if e.Channel == ChannelWifi {
		b.wifi[e.ID] = e
		return
	}
	b.ble[e.ID] = e
}

func (b *Building) AddFingerprint(fp Fingerprint) {
	b.fps[fp.Pos.Floor] = append(b.fps[fp.Pos.Floor], fp)
}

// Emitters returns the survey for one radio channel. The map is shared, not
// copied; callers must not mutate it.
func (b *Building) Emitters(ch Channel) map[EmitterID]Emitter {
	if ch == ChannelWifi {
		return b.wifi
	}
	return b.ble
}

func (b *Building) Emitter(id EmitterID) (Emitter, bool) {
	if e, ok := b.ble[id]; ok {
		return e, true
	}
	e, ok := b.wifi[id]
	return e, ok
}

func (b *Building) FloorIndexes() []int {
	idx := make([]int, 0, len(b.Floors))
	for _, f := range b.Floors {
		idx = append(idx, f.Index)
	}
	sort.Ints(idx)
	return idx
}

// FingerprintSource implementation.

func (b *Building) FingerprintFloors() []int {
	idx := make([]int, 0, len(b.fps))
	for f := range b.fps {
		idx = append(idx, f)
	}
	sort.Ints(idx)
	return idx
}

func (b *Building) FingerprintsForFloor(floor int) ([]Fingerprint, error) {
	return b.fps[floor], nil
}

// ParseBuilding reads a building survey file:
//
//	<building name="hq">
//	  <floor index="0" name="ground">
//	    <emitter id="aa:01" kind="ble" x="0.0" y="0.0" ref="-59"/>
//	    <fingerprint x="3.0" y="4.0">
//	      <signal id="aa:01" kind="ble" rssi="-62.5"/>
//	    </fingerprint>
//	  </floor>
//	</building>
//
// Coordinates are metres. Malformed elements are skipped; file-level
// problems are errors.
func ParseBuilding(path string) (*Building, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open building file: %w", err)
	}
	defer f.Close()
	b, err := parseBuildingXML(xml.NewDecoder(f))
	if err != nil {
		return nil, fmt.Errorf("parse building file %s: %w", path, err)
	}
	return b, nil
}

func parseBuildingXML(dec *xml.Decoder) (*Building, error) {
	b := NewBuilding("")
	floor := 0
	inFloor := false
	var fp *Fingerprint
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "building":
				if name, ok := attrValue(t, "name"); ok {
					b.Name = name
				}
			case "floor":
				idx, ok := parseIntAttr(t, "index")
				if !ok {
					continue
				}
				floor = idx
				inFloor = true
				name, _ := attrValue(t, "name")
				b.AddFloor(Floor{Index: idx, Name: name})
			case "emitter":
				if !inFloor {
					continue
				}
				e, ok := parseEmitterElem(t, floor)
				if !ok {
					continue
				}
				b.AddEmitter(e)
			case "fingerprint":
				if !inFloor {
					continue
				}
				x, okx := parseFloatAttr(t, "x")
				y, oky := parseFloatAttr(t, "y")
				if !okx || !oky {
					continue
				}
				fp = &Fingerprint{
					Pos:  Position{X: x, Y: y, Floor: floor},
					BLE:  map[EmitterID]float64{},
					Wifi: map[EmitterID]float64{},
				}
			case "signal":
				if fp == nil {
					continue
				}
				idStr, ok := attrValue(t, "id")
				if !ok {
					continue
				}
				id, err := ParseEmitterID(idStr)
				if err != nil {
					continue
				}
				rssi, ok := parseFloatAttr(t, "rssi")
				if !ok {
					continue
				}
				if kind, _ := attrValue(t, "kind"); kind == "wifi" {
					fp.Wifi[id] = rssi
				} else {
					fp.BLE[id] = rssi
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "floor":
				inFloor = false
			case "fingerprint":
				if fp != nil && (len(fp.BLE) > 0 || len(fp.Wifi) > 0) {
					b.AddFingerprint(*fp)
				}
				fp = nil
			}
		}
	}
	if len(b.Floors) == 0 {
		return nil, fmt.Errorf("no floors declared")
	}
	return b, nil
}

func parseEmitterElem(t xml.StartElement, floor int) (Emitter, bool) {
	idStr, ok := attrValue(t, "id")
	if !ok {
		return Emitter{}, false
	}
	id, err := ParseEmitterID(idStr)
	if err != nil {
		return Emitter{}, false
	}
	x, okx := parseFloatAttr(t, "x")
	y, oky := parseFloatAttr(t, "y")
	if !okx || !oky {
		return Emitter{}, false
	}
	ch := ChannelBLE
	if kind, _ := attrValue(t, "kind"); kind == "wifi" {
		ch = ChannelWifi
	}
	ref, _ := parseFloatAttr(t, "ref")
	return Emitter{
		ID:      id,
		Channel: ch,
		Pos:     Position{X: x, Y: y, Floor: floor},
		RefRSSI: ref,
	}, true
}

func attrValue(start xml.StartElement, name string) (string, bool) {
	for _, a := range start.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func parseFloatAttr(start xml.StartElement, name string) (float64, bool) {
	if v, ok := attrValue(start, name); ok {
		val, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return val, true
		}
	}
	return 0, false
}

func parseIntAttr(start xml.StartElement, name string) (int, bool) {
	if v, ok := attrValue(start, name); ok {
		val, err := strconv.Atoi(v)
		if err == nil {
			return val, true
		}
	}
	return 0, false
}
