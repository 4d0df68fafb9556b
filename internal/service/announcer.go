package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/freeeve/freecol/server/internal/model"
	"github.com/freeeve/freecol/server/internal/repository"
)

const defaultAnnounceInterval = 60 * time.Second

// Announcer keeps this server's entry in the meta-server directory fresh.
// It publishes on a fixed interval and whenever Kick is called, throttled
// so bursts of changes collapse into one update. Failures are logged and
// never affect the game.
type Announcer struct {
	dir      repository.Directory
	listing  func() model.ServerListing
	interval time.Duration
	limiter  *rate.Limiter
	kick     chan struct{}
}

// NewAnnouncer creates an Announcer. listing is called on every publish.
func NewAnnouncer(dir repository.Directory, listing func() model.ServerListing, interval time.Duration) *Announcer {
	if interval <= 0 {
		interval = defaultAnnounceInterval
	}
	return &Announcer{
		dir:      dir,
		listing:  listing,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		kick:     make(chan struct{}, 1),
	}
}

// Kick requests an update soon.
func (a *Announcer) Kick() {
	select {
	case a.kick <- struct{}{}:
	default:
	}
}

// Run publishes until ctx ends, then removes the entry.
func (a *Announcer) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", a.interval).Msg("Meta-server announcer started")
	a.publish(ctx)
	for {
		select {
		case <-ctx.Done():
			a.remove()
			log.Info().Msg("Meta-server announcer stopped")
			return
		case <-ticker.C:
			a.publish(ctx)
		case <-a.kick:
			if err := a.limiter.Wait(ctx); err != nil {
				continue
			}
			a.publish(ctx)
		}
	}
}

func (a *Announcer) publish(ctx context.Context) {
	l := a.listing()
	l.UpdatedAt = time.Now().UTC()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.dir.Announce(ctx, l); err != nil {
		log.Warn().Err(err).Str("name", l.Name).Msg("Meta-server update failed")
	}
}

func (a *Announcer) remove() {
	name := a.listing().Name
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.dir.Remove(ctx, name); err != nil {
		log.Warn().Err(err).Str("name", name).Msg("Meta-server removal failed")
	}
}
