package model

import "math"

// PlaceholderVolume is stored when a provider returns a bar without volume.
// Candles carrying it have VolumeMissing set so volume-based indicators can be
// audited.
const PlaceholderVolume = 1000.0

// Provenance records where a candle came from.
type Provenance string

const (
	ProvenanceReal      Provenance = "real"
	ProvenanceCached    Provenance = "cached"    // real bars served from the response cache
	ProvenanceSynthetic Provenance = "synthetic" // fallback random-walk bars
)

// Candle is one OHLC bar for a time bucket. Time is unix seconds.
type Candle struct {
	Time          int64      `json:"time"`
	Open          float64    `json:"open"`
	High          float64    `json:"high"`
	Low           float64    `json:"low"`
	Close         float64    `json:"close"`
	Volume        float64    `json:"volume"`
	VolumeMissing bool       `json:"volume_missing,omitempty"`
	Provenance    Provenance `json:"provenance,omitempty"`
}

// Valid reports whether the candle has a usable timestamp and finite prices.
func (c Candle) Valid() bool {
	if c.Time <= 0 {
		return false
	}
	for _, v := range [4]float64{c.Open, c.High, c.Low, c.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Up reports whether the bar closed at or above its open.
func (c Candle) Up() bool { return c.Close >= c.Open }

// TypicalPrice returns (high+low+close)/3.
func (c Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3
}
