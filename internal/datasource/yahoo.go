package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"chartdesk/internal/model"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// YahooProvider reads the public v8 chart API. Used for NSE/BSE symbols.
type YahooProvider struct {
	BaseURL string
	Client  *http.Client
}

// NewYahooProvider creates a provider against the public endpoint.
func NewYahooProvider() *YahooProvider {
	return &YahooProvider{
		BaseURL: yahooBaseURL,
		Client:  newHTTPClient(),
	}
}

func (p *YahooProvider) Name() string { return "yahoo" }

// yahooChart is the response structure from the v8 chart API. Price columns
// hold null for bars without trades.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func at(col []*float64, i int) *float64 {
	if i < len(col) {
		return col[i]
	}
	return nil
}

func (p *YahooProvider) Candles(ctx context.Context, symbol string, res Resolution, from, to int64) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("period1", strconv.FormatInt(from, 10))
	q.Set("period2", strconv.FormatInt(to, 10))
	q.Set("interval", res.Yahoo)
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", p.BaseURL, url.PathEscape(symbol), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: yahoo request: %v", ErrFetchFailure, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: yahoo fetch: %v", ErrFetchFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: yahoo read body: %v", ErrFetchFailure, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: yahoo status %d", ErrFetchFailure, resp.StatusCode)
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("%w: yahoo decode: %v", ErrFetchFailure, err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("%w: yahoo api error: %s", ErrFetchFailure, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	candles := make([]model.Candle, 0, len(result.Timestamp))

	for i, ts := range result.Timestamp {
		o, h, l, c := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
		if o == nil || h == nil || l == nil || c == nil {
			continue // no trades in this bucket
		}
		v, missing := volumeOrPlaceholder(at(quote.Volume, i))
		candles = append(candles, model.Candle{
			Time:          ts,
			Open:          *o,
			High:          *h,
			Low:           *l,
			Close:         *c,
			Volume:        v,
			VolumeMissing: missing,
			Provenance:    model.ProvenanceReal,
		})
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Time < candles[j].Time })
	return candles, nil
}
