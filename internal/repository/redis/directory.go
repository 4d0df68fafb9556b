package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/freeeve/freecol/server/internal/model"
	"github.com/freeeve/freecol/server/internal/repository"
)

const indexKey = "freecol:servers"

func listingKey(name string) string { return "freecol:server:" + name }

// Directory stores one expiring key per announced server plus an index set.
// A server that stops announcing drops out once its key expires.
type Directory struct {
	c   *Client
	ttl time.Duration
}

var _ repository.Directory = (*Directory)(nil)

// NewDirectory creates a Directory whose entries live for ttl after each
// announcement.
func NewDirectory(c *Client, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	return &Directory{c: c, ttl: ttl}
}

// Announce publishes or refreshes a listing.
func (d *Directory) Announce(ctx context.Context, l model.ServerListing) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal listing: %w", err)
	}
	pipe := d.c.rdb.TxPipeline()
	pipe.Set(ctx, listingKey(l.Name), data, d.ttl)
	pipe.SAdd(ctx, indexKey, l.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("announce %s: %w", l.Name, err)
	}
	return nil
}

// Remove deletes a listing.
func (d *Directory) Remove(ctx context.Context, name string) error {
	pipe := d.c.rdb.TxPipeline()
	pipe.Del(ctx, listingKey(name))
	pipe.SRem(ctx, indexKey, name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// List returns the live listings sorted by name. Index entries whose key
// has expired are pruned.
func (d *Directory) List(ctx context.Context) ([]model.ServerListing, error) {
	names, err := d.c.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	sort.Strings(names)

	out := make([]model.ServerListing, 0, len(names))
	var stale []any
	for _, name := range names {
		data, err := d.c.rdb.Get(ctx, listingKey(name)).Bytes()
		if err == redis.Nil {
			stale = append(stale, name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get listing %s: %w", name, err)
		}
		var l model.ServerListing
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, fmt.Errorf("decode listing %s: %w", name, err)
		}
		out = append(out, l)
	}
	if len(stale) > 0 {
		d.c.rdb.SRem(ctx, indexKey, stale...)
	}
	return out, nil
}
