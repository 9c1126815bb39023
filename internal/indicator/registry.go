package indicator

import (
	"fmt"
	"sort"
	"strings"
)

// ID identifies an indicator selectable in the terminal.
type ID string

const (
	IDSMA20      ID = "sma20"
	IDSMA50      ID = "sma50"
	IDEMA20      ID = "ema20"
	IDEMA50      ID = "ema50"
	IDBollinger  ID = "bollinger"
	IDVWAP       ID = "vwap"
	IDSAR        ID = "sar"
	IDRSI        ID = "rsi"
	IDMACD       ID = "macd"
	IDATR        ID = "atr"
	IDStochastic ID = "stochastic"
	IDCCI        ID = "cci"
	IDROC        ID = "roc"
	IDWilliamsR  ID = "williams"
	IDOBV        ID = "obv"
	IDVolume     ID = "volume"
)

// Placement says where an indicator is drawn. It is fixed per ID.
type Placement int

const (
	// Overlay indicators share the primary pane and its price scale.
	Overlay Placement = iota
	// Pane indicators get their own pane with an independent value scale.
	Pane
)

func (p Placement) String() string {
	switch p {
	case Overlay:
		return "overlay"
	case Pane:
		return "pane"
	default:
		return "unknown"
	}
}

// MarshalText encodes the placement by name.
func (p Placement) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Kind is the sink series type used to render an indicator.
type Kind string

const (
	KindLine      Kind = "line"
	KindHistogram Kind = "histogram"
)

// Spec is a dispatch-table entry.
type Spec struct {
	ID        ID        `json:"id"`
	Name      string    `json:"name"`
	Placement Placement `json:"placement"`
	Kind      Kind      `json:"kind"`
	Color     string    `json:"color"`
	// RefLines are horizontal guide levels drawn in the indicator's pane.
	RefLines []float64 `json:"ref_lines,omitempty"`
	Compute  Func      `json:"-"`
}

var table = map[ID]Spec{
	IDSMA20:      {ID: IDSMA20, Name: "SMA (20)", Placement: Overlay, Kind: KindLine, Color: "#2962FF", Compute: SMA(20)},
	IDSMA50:      {ID: IDSMA50, Name: "SMA (50)", Placement: Overlay, Kind: KindLine, Color: "#FF6D00", Compute: SMA(50)},
	IDEMA20:      {ID: IDEMA20, Name: "EMA (20)", Placement: Overlay, Kind: KindLine, Color: "#AB47BC", Compute: EMA(20)},
	IDEMA50:      {ID: IDEMA50, Name: "EMA (50)", Placement: Overlay, Kind: KindLine, Color: "#26A69A", Compute: EMA(50)},
	IDBollinger:  {ID: IDBollinger, Name: "Bollinger Bands (20, 2)", Placement: Overlay, Kind: KindLine, Color: "#7E57C2", Compute: Bollinger(20, 2)},
	IDVWAP:       {ID: IDVWAP, Name: "VWAP", Placement: Overlay, Kind: KindLine, Color: "#FFB300", Compute: VWAP()},
	IDSAR:        {ID: IDSAR, Name: "Parabolic SAR", Placement: Overlay, Kind: KindLine, Color: "#EC407A", Compute: ParabolicSAR(0.02, 0.2)},
	IDRSI:        {ID: IDRSI, Name: "RSI (14)", Placement: Pane, Kind: KindLine, Color: "#7B1FA2", RefLines: []float64{30, 70}, Compute: RSI(14)},
	IDMACD:       {ID: IDMACD, Name: "MACD (12, 26, 9)", Placement: Pane, Kind: KindLine, Color: "#2196F3", Compute: MACD(12, 26, 9)},
	IDATR:        {ID: IDATR, Name: "ATR (14)", Placement: Pane, Kind: KindLine, Color: "#F57C00", Compute: ATR(14)},
	IDStochastic: {ID: IDStochastic, Name: "Stochastic %K (14)", Placement: Pane, Kind: KindLine, Color: "#00897B", RefLines: []float64{20, 80}, Compute: Stochastic(14)},
	IDCCI:        {ID: IDCCI, Name: "CCI (20)", Placement: Pane, Kind: KindLine, Color: "#5C6BC0", RefLines: []float64{-100, 100}, Compute: CCI(20)},
	IDROC:        {ID: IDROC, Name: "ROC (12)", Placement: Pane, Kind: KindLine, Color: "#8D6E63", Compute: ROC(12)},
	IDWilliamsR:  {ID: IDWilliamsR, Name: "Williams %R (14)", Placement: Pane, Kind: KindLine, Color: "#D81B60", RefLines: []float64{-80, -20}, Compute: WilliamsR(14)},
	IDOBV:        {ID: IDOBV, Name: "On-Balance Volume", Placement: Pane, Kind: KindHistogram, Color: "#00D09C", Compute: OBV()},
	IDVolume:     {ID: IDVolume, Name: "Volume", Placement: Pane, Kind: KindHistogram, Color: "#00D09C", Compute: Volume()},
}

// Lookup returns the dispatch entry for id.
func Lookup(id ID) (Spec, bool) {
	s, ok := table[id]
	return s, ok
}

// All returns every registered indicator sorted by ID.
func All() []Spec {
	out := make([]Spec, 0, len(table))
	for _, s := range table {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ParseID normalizes and validates an indicator identifier.
func ParseID(s string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := table[id]; !ok {
		return "", fmt.Errorf("unknown indicator %q", s)
	}
	return id, nil
}

// Set is an unordered set of active indicators.
type Set map[ID]struct{}

// NewSet builds a set from ids, silently skipping unknown ones.
func NewSet(ids ...ID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		if _, ok := table[id]; ok {
			s[id] = struct{}{}
		}
	}
	return s
}

// Has reports membership.
func (s Set) Has(id ID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ID order, giving panes a stable layout.
func (s Set) Sorted() []ID {
	out := make([]ID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Panes returns the pane-placed members in ID order.
func (s Set) Panes() []ID {
	var out []ID
	for _, id := range s.Sorted() {
		if table[id].Placement == Pane {
			out = append(out, id)
		}
	}
	return out
}
