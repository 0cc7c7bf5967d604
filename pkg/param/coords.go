package param

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Angle is an angle in micro-arcseconds. On the wire it is always written
// with its unit, as {"uas": n}.
type Angle int64

const (
	Microarcsecond Angle = 1
	Milliarcsecond       = 1000 * Microarcsecond
	Arcsecond            = 1000 * Milliarcsecond
	Arcminute            = 60 * Arcsecond
	AngleDegree          = 60 * Arcminute
	AngleHour            = 15 * AngleDegree
)

// AngleFromDegrees rounds d degrees to the nearest micro-arcsecond.
func AngleFromDegrees(d float64) Angle {
	return Angle(math.Round(d * float64(AngleDegree)))
}

// AngleFromHours rounds h hours of right ascension to the nearest micro-arcsecond.
func AngleFromHours(h float64) Angle {
	return Angle(math.Round(h * float64(AngleHour)))
}

func (a Angle) Degrees() float64 { return float64(a) / float64(AngleDegree) }
func (a Angle) Hours() float64 { return float64(a) / float64(AngleHour) }

// ParseHMS parses a sexagesimal right ascension such as "12:13:14.15" (hours).
func ParseHMS(s string) (Angle, error) {
	return parseSexagesimal(s, AngleHour)
}

// ParseDMS parses a sexagesimal declination such as "-30:31:32.3" (degrees).
func ParseDMS(s string) (Angle, error) {
	return parseSexagesimal(s, AngleDegree)
}

func parseSexagesimal(s string, unit Angle) (Angle, error) {
	raw := strings.TrimSpace(s)
	sign := 1.0
	switch {
	case strings.HasPrefix(raw, "-"):
		sign = -1
		raw = raw[1:]
	case strings.HasPrefix(raw, "+"):
		raw = raw[1:]
	}
	parts := strings.Split(raw, ":")
	if raw == "" || len(parts) > 3 {
		return 0, fmt.Errorf("param: invalid sexagesimal angle %q", s)
	}
	total := 0.0
	scale := 1.0
	for i, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v < 0 || (i > 0 && v >= 60) {
			return 0, fmt.Errorf("param: invalid sexagesimal angle %q", s)
		}
		total += v / scale
		scale *= 60
	}
	return Angle(math.Round(sign * total * float64(unit))), nil
}

// EqFrame is the reference frame of an equatorial coordinate.
type EqFrame string

const (
	ICRS EqFrame = "ICRS"
	FK5  EqFrame = "FK5"
)

func (f EqFrame) valid() bool { return f == ICRS || f == FK5 }

// ProperMotion is in milliarcseconds per year.
type ProperMotion struct {
	PMx float64 `json:"pmx"`
	PMy float64 `json:"pmy"`
}

// EqCoord is an equatorial position. PM is optional.
type EqCoord struct {
	Tag         string
	RA          Angle
	Dec         Angle
	Frame       EqFrame
	CatalogName string
	PM          *ProperMotion
}

// NewEqCoord returns an ICRS coordinate with catalog name "none".
func NewEqCoord(tag string, ra, dec Angle) EqCoord {
	return EqCoord{Tag: tag, RA: ra, Dec: dec, Frame: ICRS, CatalogName: "none"}
}

// WithProperMotion returns a copy of c carrying pm.
func (c EqCoord) WithProperMotion(pmx, pmy float64) EqCoord {
	c.PM = &ProperMotion{PMx: pmx, PMy: pmy}
	return c
}

type angleWire struct {
	UAS *int64 `json:"uas"`
}

func wireAngle(a Angle) *angleWire {
	v := int64(a)
	return &angleWire{UAS: &v}
}

func (w *angleWire) angle(where, name string) (Angle, error) {
	if w == nil || w.UAS == nil {
		return 0, missingField(where, name)
	}
	return Angle(*w.UAS), nil
}

type eqCoordWire struct {
	Tag         *string       `json:"tag"`
	RA          *angleWire    `json:"ra"`
	Dec         *angleWire    `json:"dec"`
	Frame       *EqFrame      `json:"frame"`
	CatalogName string        `json:"catalogName,omitempty"`
	PM          *ProperMotion `json:"pm,omitempty"`
}

func (c EqCoord) wire() eqCoordWire {
	return eqCoordWire{
		Tag:         &c.Tag,
		RA:          wireAngle(c.RA),
		Dec:         wireAngle(c.Dec),
		Frame:       &c.Frame,
		CatalogName: c.CatalogName,
		PM:          c.PM,
	}
}

func (c *EqCoord) fromWire(w eqCoordWire) error {
	if w.Tag == nil {
		return missingField("EqCoord", "tag")
	}
	ra, err := w.RA.angle("EqCoord", "ra")
	if err != nil {
		return err
	}
	dec, err := w.Dec.angle("EqCoord", "dec")
	if err != nil {
		return err
	}
	if w.Frame == nil {
		return missingField("EqCoord", "frame")
	}
	if !w.Frame.valid() {
		return fmt.Errorf("%w: %q", ErrBadFrame, *w.Frame)
	}
	*c = EqCoord{
		Tag:         *w.Tag,
		RA:          ra,
		Dec:         dec,
		Frame:       *w.Frame,
		CatalogName: w.CatalogName,
		PM:          w.PM,
	}
	return nil
}

func (c EqCoord) MarshalJSON() ([]byte, error) { return json.Marshal(c.wire()) }
func (c EqCoord) MarshalCBOR() ([]byte, error) { return cbor.Marshal(c.wire()) }

func (c *EqCoord) UnmarshalJSON(data []byte) error {
	var w eqCoordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: EqCoord: %v", ErrValueType, err)
	}
	return c.fromWire(w)
}

func (c *EqCoord) UnmarshalCBOR(data []byte) error {
	var w eqCoordWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: EqCoord: %v", ErrValueType, err)
	}
	return c.fromWire(w)
}

// AltAzCoord is a horizontal (altitude/azimuth) position.
type AltAzCoord struct {
	Tag string
	Alt Angle
	Az  Angle
}

type altAzCoordWire struct {
	Tag *string    `json:"tag"`
	Alt *angleWire `json:"alt"`
	Az  *angleWire `json:"az"`
}

func (c AltAzCoord) wire() altAzCoordWire {
	return altAzCoordWire{Tag: &c.Tag, Alt: wireAngle(c.Alt), Az: wireAngle(c.Az)}
}

func (c *AltAzCoord) fromWire(w altAzCoordWire) error {
	if w.Tag == nil {
		return missingField("AltAzCoord", "tag")
	}
	alt, err := w.Alt.angle("AltAzCoord", "alt")
	if err != nil {
		return err
	}
	az, err := w.Az.angle("AltAzCoord", "az")
	if err != nil {
		return err
	}
	*c = AltAzCoord{Tag: *w.Tag, Alt: alt, Az: az}
	return nil
}

func (c AltAzCoord) MarshalJSON() ([]byte, error) { return json.Marshal(c.wire()) }
func (c AltAzCoord) MarshalCBOR() ([]byte, error) { return cbor.Marshal(c.wire()) }

func (c *AltAzCoord) UnmarshalJSON(data []byte) error {
	var w altAzCoordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: AltAzCoord: %v", ErrValueType, err)
	}
	return c.fromWire(w)
}

func (c *AltAzCoord) UnmarshalCBOR(data []byte) error {
	var w altAzCoordWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: AltAzCoord: %v", ErrValueType, err)
	}
	return c.fromWire(w)
}
