// Package refresher periodically pulls the newest bars into live charts while
// their exchange is in session.
package refresher

import (
	"fmt"
	"log"
	"time"

	"chartdesk/internal/markethours"
	"chartdesk/internal/metrics"

	"github.com/robfig/cron/v3"
)

// DefaultSpec refreshes every 30 seconds.
const DefaultSpec = "*/30 * * * * *"

// Target is the set of live sessions.
type Target interface {
	RefreshWhere(keep func(symbol string) bool) int
}

// Refresher runs the refresh tick on a cron schedule.
type Refresher struct {
	Cron   *cron.Cron
	target Target
	prom   *metrics.Metrics
	now    func() time.Time

	// OnMarket, when set, receives the market state on every tick.
	OnMarket func(open bool)
}

// New registers the refresh tick under spec (six-field, seconds first, or a
// descriptor such as "@every 1m"). prom may be nil.
func New(spec string, target Target, prom *metrics.Metrics) (*Refresher, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	r := &Refresher{
		Cron:   cron.New(cron.WithSeconds()),
		target: target,
		prom:   prom,
		now:    time.Now,
	}
	if _, err := r.Cron.AddFunc(spec, func() { r.Tick() }); err != nil {
		return nil, fmt.Errorf("register refresh tick %q: %w", spec, err)
	}
	return r, nil
}

// Start starts the schedule.
func (r *Refresher) Start() {
	r.Cron.Start()
	log.Println("[refresher] started")
}

// Stop stops the schedule and waits for a running tick.
func (r *Refresher) Stop() {
	<-r.Cron.Stop().Done()
	log.Println("[refresher] stopped")
}

// Tick refreshes every session whose exchange is open and returns how many
// were asked.
func (r *Refresher) Tick() int {
	now := r.now()
	open := markethours.IsMarketOpen(now)
	if r.prom != nil {
		if open {
			r.prom.MarketState.Set(1)
		} else {
			r.prom.MarketState.Set(0)
		}
	}
	if r.OnMarket != nil {
		r.OnMarket(open)
	}
	if !open {
		return 0
	}

	n := r.target.RefreshWhere(func(symbol string) bool {
		return markethours.ForSymbol(symbol).IsOpen(now)
	})
	if r.prom != nil {
		r.prom.RefreshTicks.Inc()
	}
	if n > 0 {
		log.Printf("[refresher] refreshed %d session(s)", n)
	}
	return n
}
