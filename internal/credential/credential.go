// Package credential resolves destination ids into collector credentials.
package credential

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"

	"sortie/internal/core"
)

// DefaultTTL is how long a resolved destination is reused.
const DefaultTTL = 5 * time.Minute

// Destination is the configuration form of one collector.
type Destination struct {
	ID         string `yaml:"id" json:"id"`
	URL        string `yaml:"url" json:"url"`
	Token      string `yaml:"token" json:"-"`
	AuthScheme string `yaml:"authScheme,omitempty" json:"authScheme,omitempty"`
}

// Validate checks the fields needed to send.
func (d Destination) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("destination id is required")
	}
	u, err := url.Parse(d.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("destination %q: invalid url %q", d.ID, d.URL)
	}
	if d.Token == "" {
		return fmt.Errorf("destination %q: token is required", d.ID)
	}
	return nil
}

// Static serves credentials from an in-memory table.
type Static struct {
	dests map[string]Destination
}

// NewStatic builds a store. Invalid destinations are kept and fail at
// resolve time, so one bad entry does not hide the others.
func NewStatic(dests ...Destination) *Static {
	s := &Static{dests: make(map[string]Destination, len(dests))}
	for _, d := range dests {
		s.dests[d.ID] = d
	}
	return s
}

func (s *Static) Resolve(_ context.Context, id string) (core.Credentials, error) {
	d, ok := s.dests[id]
	if !ok {
		return core.Credentials{}, fmt.Errorf("%w %q", core.ErrUnknownDestination, id)
	}
	if err := d.Validate(); err != nil {
		return core.Credentials{}, fmt.Errorf("%w: %v", core.ErrCredentials, err)
	}
	return core.Credentials{BaseURL: d.URL, Token: d.Token, Scheme: d.AuthScheme}, nil
}

// Cached memoizes successful resolutions of another store for a TTL.
// Failures are never cached.
type Cached struct {
	inner core.CredentialStore
	cache *cache.Cache
}

func NewCached(inner core.CredentialStore, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cached{inner: inner, cache: cache.New(ttl, 2*ttl)}
}

func (c *Cached) Resolve(ctx context.Context, id string) (core.Credentials, error) {
	if v, found := c.cache.Get(id); found {
		if creds, ok := v.(core.Credentials); ok {
			return creds, nil
		}
	}
	creds, err := c.inner.Resolve(ctx, id)
	if err != nil {
		return core.Credentials{}, err
	}
	c.cache.SetDefault(id, creds)
	return creds, nil
}

// Invalidate drops a cached destination, e.g. after its token was rotated.
func (c *Cached) Invalidate(id string) {
	c.cache.Delete(id)
}
