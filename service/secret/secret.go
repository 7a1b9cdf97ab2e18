// Package secret resolves archive download credentials.
package secret

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/viant/scy"
	"github.com/viant/scy/cred"
)

// ErrNotFound is returned when no credentials exist for a resource.
var ErrNotFound = errors.New("secret: credentials not found")

// Resolver returns basic-auth credentials stored at a resource URL.
type Resolver interface {
	Basic(ctx context.Context, resourceURL string) (user, password string, err error)
}

// Service resolves credentials with scy, decrypting with key.
type Service struct {
	scyService *scy.Service
	key        string
	mux        sync.RWMutex
	cache      map[string]*cred.Basic
}

var _ Resolver = (*Service)(nil)

// New creates a scy resolver; key is the scy decryption key, e.g. blowfish://default.
func New(key string) *Service {
	return &Service{scyService: scy.New(), key: key, cache: map[string]*cred.Basic{}}
}

func (s *Service) Basic(ctx context.Context, resourceURL string) (string, string, error) {
	if resourceURL == "" {
		return "", "", fmt.Errorf("%w: empty resource", ErrNotFound)
	}
	s.mux.RLock()
	basic, ok := s.cache[resourceURL]
	s.mux.RUnlock()
	if ok {
		return basic.Username, basic.Password, nil
	}
	target, err := cred.TargetType("basic")
	if err != nil {
		return "", "", err
	}
	loaded, err := s.scyService.Load(ctx, scy.NewResource(target, resourceURL, s.key))
	if err != nil {
		return "", "", fmt.Errorf("failed to load credentials from %s: %w", resourceURL, err)
	}
	basic, ok = loaded.Target.(*cred.Basic)
	if !ok || basic == nil {
		return "", "", fmt.Errorf("%w: %s holds %T", ErrNotFound, resourceURL, loaded.Target)
	}
	s.mux.Lock()
	s.cache[resourceURL] = basic
	s.mux.Unlock()
	return basic.Username, basic.Password, nil
}

// Static resolves credentials from a fixed map keyed by resource URL.
type Static map[string]cred.Basic

func (s Static) Basic(_ context.Context, resourceURL string) (string, string, error) {
	basic, ok := s[resourceURL]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrNotFound, resourceURL)
	}
	return basic.Username, basic.Password, nil
}
