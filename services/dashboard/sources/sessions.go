package sources

import (
	"context"
	"time"

	"lenddash-backend/lib/scrapers/crm"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// sessionCache keeps logged-in portal clients around between
// refreshes so a hot dashboard does not re-authenticate every TTL
// cycle. Entries expire after 15 minutes and are evicted explicitly
// when a fetch through them fails.
type sessionCache struct {
	cache *expirable.LRU[string, *crm.Client]
}

func newSessionCache() *sessionCache {
	return &sessionCache{
		cache: expirable.NewLRU[string, *crm.Client](8, nil, time.Minute*15),
	}
}

// get returns a logged-in client for the source, reporting whether it
// came from the cache.
func (s *sessionCache) get(ctx context.Context, src *Source) (*crm.Client, bool, error) {
	if client, hit := s.cache.Get(src.Tag); hit {
		return client, true, nil
	}

	client, err := crm.NewClient(crm.ClientOptions{
		Label:    src.Tag,
		LoginURL: src.Config.LoginURL,
		DataURL:  src.Config.DataURL,
		Username: src.Config.Username,
		Password: src.Config.Password,
		Locator:  src.Locator,
	})
	if err != nil {
		return nil, false, err
	}
	err = client.Login(ctx)
	if err != nil {
		return nil, false, err
	}

	s.cache.Add(src.Tag, client)
	return client, false, nil
}

func (s *sessionCache) evict(tag string) {
	s.cache.Remove(tag)
}
