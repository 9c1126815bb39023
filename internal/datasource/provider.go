package datasource

import (
	"context"
	"net/http"
	"strings"
	"time"

	"chartdesk/internal/model"
)

// Provider fetches raw bars for a symbol over [from, to] (unix seconds).
// An empty slice with a nil error means the provider has no data for the
// window.
type Provider interface {
	Name() string
	Candles(ctx context.Context, symbol string, res Resolution, from, to int64) ([]model.Candle, error)
}

// exchangeSuffixes route a symbol to the Yahoo provider.
var exchangeSuffixes = []string{".NS", ".BO"}

// IsExchangeListed reports whether symbol carries an NSE or BSE suffix.
func IsExchangeListed(symbol string) bool {
	s := strings.ToUpper(symbol)
	for _, suf := range exchangeSuffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// volumeOrPlaceholder returns the provider volume or the placeholder when the
// field is absent.
func volumeOrPlaceholder(v *float64) (float64, bool) {
	if v == nil {
		return model.PlaceholderVolume, true
	}
	return *v, false
}
