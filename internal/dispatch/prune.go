package dispatch

import (
	"sort"
	"time"

	"github.com/cuongbtq/bulksend/internal/domain"
)

const (
	// Keep the live status map bounded; history lives in the store.
	defaultStatusMax = 200
	defaultStatusTTL = 24 * time.Hour
)

// pruneStatus drops finished jobs older than the TTL, then the oldest
// finished jobs until the map fits. Queued and running jobs are never
// dropped.
func (d *Dispatcher) pruneStatus(now time.Time) {
	max := d.cfg.StatusMax
	if max <= 0 {
		max = defaultStatusMax
	}
	ttl := d.cfg.StatusTTL
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for id, e := range d.jobs {
		if !domain.IsTerminalStatus(e.job.Status) {
			continue
		}
		if now.Sub(e.job.FinishedAt) > ttl {
			delete(d.jobs, id)
		}
	}

	if len(d.jobs) <= max {
		return
	}

	type kv struct {
		id string
		t  time.Time
	}

	items := make([]kv, 0, len(d.jobs))
	for id, e := range d.jobs {
		if domain.IsTerminalStatus(e.job.Status) {
			items = append(items, kv{id: id, t: e.job.FinishedAt})
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].t.Before(items[j].t) })

	excess := len(d.jobs) - max
	for i := 0; i < excess && i < len(items); i++ {
		delete(d.jobs, items[i].id)
	}
}
