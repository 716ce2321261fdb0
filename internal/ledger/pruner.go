package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/tulumbak/courierhook/internal/config"
)

// Pruner deletes delivery records past the retention window on a cron
// schedule.
type Pruner struct {
	store     *Store
	retention time.Duration
	cron      *cron.Cron
}

// NewPruner wires a pruner from config. Start must be called to schedule it.
func NewPruner(store *Store, cfg *config.LedgerConfig) (*Pruner, error) {
	p := &Pruner{
		store:     store,
		retention: cfg.Retention,
		cron:      cron.New(),
	}

	if _, err := p.cron.AddFunc(cfg.PruneSchedule, p.run); err != nil {
		return nil, fmt.Errorf("parsing prune schedule %q: %w", cfg.PruneSchedule, err)
	}

	return p, nil
}

// Start begins the schedule in a background goroutine.
func (p *Pruner) Start() {
	p.cron.Start()
	log.Info().
		Dur("retention", p.retention).
		Msg("Delivery ledger pruner started")
}

// Stop halts the schedule and waits for a running prune to finish.
func (p *Pruner) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
}

func (p *Pruner) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-p.retention)
	deleted, err := p.store.Prune(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("Delivery ledger prune failed")
		return
	}

	if deleted > 0 {
		log.Info().
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("Pruned delivery records")
	}
}
