package geo

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"regexp"
	"strconv"
	"strings"

	"tripplanner/internal/model"
)

var (
	hexPattern = regexp.MustCompile(`^[0-9A-Fa-f]+$`)
	wktPoint   = regexp.MustCompile(`(?i)^\s*(?:SRID=\d+;)?\s*POINT\s*\(\s*(\S+)\s+(\S+)\s*\)\s*$`)
)

// ParseLocation normalises a stored geometry value into a point.
//
// Accepted shapes, in order: a hex string longer than 20 characters (WKB or
// EWKB point), an object carrying a GeoJSON style coordinates array
// ([lng, lat]), and WKT "POINT(lng lat)". Anything else yields nil; the
// failure is logged and the caller keeps the record without coordinates.
func ParseLocation(v any) *model.GeoPoint {
	switch t := v.(type) {
	case nil:
		return nil
	case model.GeoPoint:
		return checked(t, "point")
	case *model.GeoPoint:
		if t == nil {
			return nil
		}
		return checked(*t, "point")
	case []byte:
		return ParseLocation(string(t))
	case string:
		return parseString(t)
	case map[string]any:
		return parseObject(t)
	}
	log.Printf("[geo] unsupported geometry type %T", v)
	return nil
}

func parseString(s string) *model.GeoPoint {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if len(s) > 20 && hexPattern.MatchString(s) {
		p, err := decodeWKBHex(s)
		if err != nil {
			log.Printf("[geo] wkb decode failed: %v", err)
			return nil
		}
		return checked(p, "wkb")
	}
	if strings.HasPrefix(s, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			log.Printf("[geo] geojson decode failed: %v", err)
			return nil
		}
		return parseObject(obj)
	}
	if m := wktPoint.FindStringSubmatch(s); m != nil {
		lng, err1 := strconv.ParseFloat(m[1], 64)
		lat, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil {
			log.Printf("[geo] bad wkt point %q", s)
			return nil
		}
		return checked(model.GeoPoint{Lat: lat, Lng: lng}, "wkt")
	}
	log.Printf("[geo] unrecognised geometry %q", truncate(s, 40))
	return nil
}

func parseObject(obj map[string]any) *model.GeoPoint {
	raw, ok := obj["coordinates"].([]any)
	if !ok || len(raw) < 2 {
		log.Printf("[geo] geometry object without coordinates")
		return nil
	}
	lng, ok1 := number(raw[0])
	lat, ok2 := number(raw[1])
	if !ok1 || !ok2 {
		log.Printf("[geo] non-numeric coordinates %v", raw)
		return nil
	}
	return checked(model.GeoPoint{Lat: lat, Lng: lng}, "geojson")
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func checked(p model.GeoPoint, src string) *model.GeoPoint {
	if !ValidPoint(p) {
		log.Printf("[geo] %s point out of range: %v,%v", src, p.Lat, p.Lng)
		return nil
	}
	return &p
}

const (
	wkbPoint     = 1
	ewkbSRIDFlag = 0x20000000
	ewkbZFlag    = 0x80000000
	ewkbMFlag    = 0x40000000
)

var errNotPoint = errors.New("geometry is not a point")

// decodeWKBHex reads a 2D point from hex encoded WKB, ISO WKB or PostGIS EWKB.
// Z and M ordinates are ignored.
func decodeWKBHex(s string) (model.GeoPoint, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return model.GeoPoint{}, err
	}
	if len(b) < 5 {
		return model.GeoPoint{}, fmt.Errorf("wkb too short: %d bytes", len(b))
	}
	var order binary.ByteOrder
	switch b[0] {
	case 0:
		order = binary.BigEndian
	case 1:
		order = binary.LittleEndian
	default:
		return model.GeoPoint{}, fmt.Errorf("bad byte order marker %d", b[0])
	}
	typ := order.Uint32(b[1:5])
	off := 5
	if typ&ewkbSRIDFlag != 0 {
		off += 4
	}
	base := typ &^ (ewkbSRIDFlag | ewkbZFlag | ewkbMFlag)
	if base%1000 != wkbPoint {
		return model.GeoPoint{}, errNotPoint
	}
	if len(b) < off+16 {
		return model.GeoPoint{}, fmt.Errorf("wkb point truncated: %d bytes", len(b))
	}
	x := math.Float64frombits(order.Uint64(b[off : off+8]))
	y := math.Float64frombits(order.Uint64(b[off+8 : off+16]))
	return model.GeoPoint{Lat: y, Lng: x}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
