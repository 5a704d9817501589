package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pageinbox/internal/constants"
	"pageinbox/internal/errors"
	"pageinbox/internal/i18n"
	"pageinbox/internal/privacy"
	"pageinbox/internal/validation"
)

// ContactServiceInterface resolves display names of external senders.
type ContactServiceInterface interface {
	GetContactDisplayName(ctx context.Context, pageID, senderID, accessToken string) string
	CleanupExpired() int
}

type cachedContact struct {
	name     string
	cachedAt time.Time
}

// ContactService caches sender names fetched from the Graph profile API.
// Entries are keyed by page and sender since sender ids are page-scoped.
type ContactService struct {
	graph    Graph
	tr       *i18n.Translator
	logger   *logrus.Logger
	ttl      time.Duration
	now      func() time.Time
	mu       sync.RWMutex
	contacts map[string]cachedContact
}

// NewContactService creates a contact cache with the default TTL.
func NewContactService(graph Graph, tr *i18n.Translator, logger *logrus.Logger) *ContactService {
	return NewContactServiceWithConfig(graph, tr, logger, constants.DefaultContactCacheHours)
}

// NewContactServiceWithConfig creates a contact cache with a custom TTL.
func NewContactServiceWithConfig(graph Graph, tr *i18n.Translator, logger *logrus.Logger, cacheValidHours int) *ContactService {
	if cacheValidHours <= 0 {
		cacheValidHours = constants.DefaultContactCacheHours
	}
	return &ContactService{
		graph:    graph,
		tr:       tr,
		logger:   logger,
		ttl:      time.Duration(cacheValidHours) * time.Hour,
		now:      time.Now,
		contacts: make(map[string]cachedContact),
	}
}

func contactKey(pageID, senderID string) string {
	return pageID + ":" + senderID
}

// GetContactDisplayName returns the cached name when fresh, otherwise asks
// Graph. A stale cached name is preferred over the guest placeholder when
// Graph is unreachable, but dropped when Graph refuses the profile with a
// 4xx. Failed lookups are not cached.
func (cs *ContactService) GetContactDisplayName(ctx context.Context, pageID, senderID, accessToken string) string {
	key := contactKey(pageID, senderID)

	cs.mu.RLock()
	cached, found := cs.contacts[key]
	cs.mu.RUnlock()

	if found && cs.now().Sub(cached.cachedAt) < cs.ttl {
		return cached.name
	}

	profile, err := cs.graph.GetProfile(ctx, senderID, accessToken)
	if err == nil && profile != nil {
		name := validation.Sanitize(strings.TrimSpace(profile.FirstName) + " " + strings.TrimSpace(profile.LastName))
		if name != "" {
			cs.mu.Lock()
			cs.contacts[key] = cachedContact{name: name, cachedAt: cs.now()}
			cs.mu.Unlock()
			return name
		}
	}

	if found && errors.Is(err, errors.KindUpstream) && !errors.IsRetryable(err) {
		cs.Invalidate(pageID, senderID)
		found = false
	}
	if found {
		return cached.name
	}

	cs.logger.WithFields(logrus.Fields{
		LogFieldPageID:   privacy.MaskExternalID(pageID),
		LogFieldSenderID: privacy.MaskExternalID(senderID),
	}).WithError(err).Warn("Failed to fetch sender profile, using guest name")
	return cs.tr.T(i18n.KeyGuest)
}

// Invalidate drops a cached name so the next lookup refetches it.
func (cs *ContactService) Invalidate(pageID, senderID string) {
	cs.mu.Lock()
	delete(cs.contacts, contactKey(pageID, senderID))
	cs.mu.Unlock()
}

// CleanupExpired removes expired entries and returns how many were dropped.
func (cs *ContactService) CleanupExpired() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	removed := 0
	for key, c := range cs.contacts {
		if cs.now().Sub(c.cachedAt) >= cs.ttl {
			delete(cs.contacts, key)
			removed++
		}
	}
	return removed
}
