package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"chartdesk/internal/model"
)

const finnhubBaseURL = "https://finnhub.io/api/v1"

// FinnhubProvider reads /stock/candle. Used for every symbol without an
// exchange suffix.
type FinnhubProvider struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewFinnhubProvider creates a provider authenticated with token.
func NewFinnhubProvider(token string) *FinnhubProvider {
	return &FinnhubProvider{
		BaseURL: finnhubBaseURL,
		Token:   token,
		Client:  newHTTPClient(),
	}
}

func (p *FinnhubProvider) Name() string { return "finnhub" }

// finnhubCandles is the columnar /stock/candle payload. S is "ok" or "no_data".
// Price columns may hold nulls for bars without trades.
type finnhubCandles struct {
	C []*float64 `json:"c"`
	H []*float64 `json:"h"`
	L []*float64 `json:"l"`
	O []*float64 `json:"o"`
	T []int64    `json:"t"`
	V []*float64 `json:"v"`
	S string     `json:"s"`
}

// finnhubSymbol strips the NSE suffix, which Finnhub does not use.
func finnhubSymbol(symbol string) string {
	if strings.HasSuffix(strings.ToUpper(symbol), ".NS") {
		return symbol[:len(symbol)-3]
	}
	return symbol
}

func (p *FinnhubProvider) Candles(ctx context.Context, symbol string, res Resolution, from, to int64) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("symbol", finnhubSymbol(symbol))
	q.Set("resolution", res.Finnhub)
	q.Set("from", strconv.FormatInt(from, 10))
	q.Set("to", strconv.FormatInt(to, 10))
	q.Set("token", p.Token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/stock/candle?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: finnhub request: %v", ErrFetchFailure, err)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: finnhub fetch: %v", ErrFetchFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: finnhub read body: %v", ErrFetchFailure, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: finnhub status %d", ErrFetchFailure, resp.StatusCode)
	}

	var data finnhubCandles
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: finnhub decode: %v", ErrFetchFailure, err)
	}
	switch data.S {
	case "ok":
	case "no_data":
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: finnhub status field %q", ErrFetchFailure, data.S)
	}

	n := minLen(len(data.T), len(data.O), len(data.H), len(data.L), len(data.C))
	candles := make([]model.Candle, 0, n)
	for i := 0; i < n; i++ {
		if data.O[i] == nil || data.H[i] == nil || data.L[i] == nil || data.C[i] == nil {
			continue
		}
		var vol *float64
		if i < len(data.V) {
			vol = data.V[i]
		}
		v, missing := volumeOrPlaceholder(vol)
		candles = append(candles, model.Candle{
			Time:          data.T[i],
			Open:          *data.O[i],
			High:          *data.H[i],
			Low:           *data.L[i],
			Close:         *data.C[i],
			Volume:        v,
			VolumeMissing: missing,
			Provenance:    model.ProvenanceReal,
		})
	}
	return candles, nil
}

func minLen(lens ...int) int {
	m := lens[0]
	for _, l := range lens[1:] {
		if l < m {
			m = l
		}
	}
	return m
}
