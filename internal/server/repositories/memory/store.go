// Package memory keeps every record kind in process memory. It backs the
// "memory" storage mode and service tests; the data is gone on restart.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/certkeeper/internal/common"
	"github.com/dmitrijs2005/certkeeper/internal/fields"
	"github.com/dmitrijs2005/certkeeper/internal/server/models"
)

// Store is the shared state behind the repositories in this package.
type Store struct {
	mu          sync.RWMutex
	events      map[string]models.Event
	configs     map[string]models.TemplateConfig
	generations map[string]models.GenerationRecord
	tokens      map[string]models.VerificationToken
	stats       map[string]models.OrganizationStats

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		events:      make(map[string]models.Event),
		configs:     make(map[string]models.TemplateConfig),
		generations: make(map[string]models.GenerationRecord),
		tokens:      make(map[string]models.VerificationToken),
		stats:       make(map[string]models.OrganizationStats),
		now:         time.Now,
	}
}

// SetClock replaces the time source used for created/updated stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) Events() *EventRepository           { return &EventRepository{s} }
func (s *Store) Configs() *ConfigRepository         { return &ConfigRepository{s} }
func (s *Store) Generations() *GenerationRepository { return &GenerationRepository{s} }
func (s *Store) Tokens() *TokenRepository           { return &TokenRepository{s} }
func (s *Store) OrgStats() *OrgStatsRepository      { return &OrgStatsRepository{s} }

type EventRepository struct{ s *Store }

func (r *EventRepository) Create(_ context.Context, e *models.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.events[e.ID]; ok {
		return common.ErrorAlreadyExists
	}
	e.CreatedAt = r.s.now()
	r.s.events[e.ID] = *e
	return nil
}

func (r *EventRepository) GetByID(_ context.Context, id string) (*models.Event, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.events[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &e, nil
}

func (r *EventRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.events[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.events, id)
	return nil
}

type ConfigRepository struct{ s *Store }

func (r *ConfigRepository) Create(_ context.Context, c *models.TemplateConfig) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.configs[c.ID]; ok {
		return common.ErrorAlreadyExists
	}
	for _, other := range r.s.configs {
		if other.EventID == c.EventID {
			return common.ErrorAlreadyExists
		}
	}
	c.CreatedAt = r.s.now()
	c.UpdatedAt = c.CreatedAt
	stored := *c
	stored.Fields = cloneFields(c.Fields)
	stored.Event = nil
	r.s.configs[c.ID] = stored
	return nil
}

func (r *ConfigRepository) GetByID(_ context.Context, id string) (*models.TemplateConfig, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.configs[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c.Fields = cloneFields(c.Fields)
	return &c, nil
}

func (r *ConfigRepository) GetByEventID(_ context.Context, eventID string) (*models.TemplateConfig, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, c := range r.s.configs {
		if c.EventID == eventID {
			c.Fields = cloneFields(c.Fields)
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *ConfigRepository) Update(_ context.Context, c *models.TemplateConfig) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.configs[c.ID]
	if !ok {
		return common.ErrorNotFound
	}
	stored.ImagePath = c.ImagePath
	stored.Fields = cloneFields(c.Fields)
	stored.UpdatedAt = r.s.now()
	r.s.configs[c.ID] = stored

	c.EventID = stored.EventID
	c.CreatedAt = stored.CreatedAt
	c.UpdatedAt = stored.UpdatedAt
	return nil
}

// Delete is not part of the configs.Repository contract; tests use it to
// break a verification chain.
func (r *ConfigRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.configs[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.configs, id)
	return nil
}

func cloneFields(in fields.Set) fields.Set {
	if in == nil {
		return nil
	}
	out := make(fields.Set, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type GenerationRepository struct{ s *Store }

func (r *GenerationRepository) Create(_ context.Context, g *models.GenerationRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.generations[g.ID]; ok {
		return common.ErrorAlreadyExists
	}
	g.CreatedAt = r.s.now()
	stored := *g
	stored.EventName = ""
	r.s.generations[g.ID] = stored
	return nil
}

func (r *GenerationRepository) GetByID(_ context.Context, id string) (*models.GenerationRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	g, ok := r.s.generations[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	g.EventName = r.eventName(g.ConfigID)
	return &g, nil
}

func (r *GenerationRepository) List(ctx context.Context, q *models.GenerationQuery) ([]*models.GenerationRecord, int, error) {
	all, err := r.ListAll(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	p := models.Paginate(all, q)
	return p.Items, p.Total, nil
}

func (r *GenerationRepository) ListAll(_ context.Context, q *models.GenerationQuery) ([]*models.GenerationRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*models.GenerationRecord{}
	for _, g := range r.s.generations {
		if !q.Matches(&g) {
			continue
		}
		g.EventName = r.eventName(g.ConfigID)
		out = append(out, &g)
	}
	slices.SortFunc(out, func(a, b *models.GenerationRecord) int {
		switch {
		case q.Less(a, b):
			return -1
		case q.Less(b, a):
			return 1
		}
		return 0
	})
	return out, nil
}

func (r *GenerationRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.generations[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.generations, id)
	return nil
}

// eventName mirrors the LEFT JOIN of the SQL repository. Caller holds the lock.
func (r *GenerationRepository) eventName(configID string) string {
	c, ok := r.s.configs[configID]
	if !ok {
		return ""
	}
	return r.s.events[c.EventID].Name
}

type TokenRepository struct{ s *Store }

func (r *TokenRepository) Create(_ context.Context, t *models.VerificationToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tokens[t.UUID]; ok {
		return common.ErrorAlreadyExists
	}
	t.CreatedAt = r.s.now()
	r.s.tokens[t.UUID] = *t
	return nil
}

func (r *TokenRepository) GetByUUID(_ context.Context, uuid string) (*models.VerificationToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tokens[uuid]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &t, nil
}

func (r *TokenRepository) ListByGeneration(_ context.Context, generationID string) ([]*models.VerificationToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []*models.VerificationToken{}
	for _, t := range r.s.tokens {
		if t.GenerationID == generationID {
			out = append(out, &t)
		}
	}
	slices.SortFunc(out, func(a, b *models.VerificationToken) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.UUID, b.UUID)
	})
	return out, nil
}

type OrgStatsRepository struct{ s *Store }

func (r *OrgStatsRepository) Increment(_ context.Context, name string, recipients, events int64) (*models.OrganizationStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.stats[name]
	if !ok {
		st = models.OrganizationStats{Name: name}
	}
	st.RecipientCount += recipients
	st.EventsCreated += events
	st.UpdatedAt = r.s.now()
	r.s.stats[name] = st
	return &st, nil
}

func (r *OrgStatsRepository) Get(_ context.Context, name string) (*models.OrganizationStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st, ok := r.s.stats[name]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &st, nil
}

func (r *OrgStatsRepository) List(_ context.Context) ([]*models.OrganizationStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*models.OrganizationStats, 0, len(r.s.stats))
	for _, st := range r.s.stats {
		out = append(out, &st)
	}
	slices.SortFunc(out, func(a, b *models.OrganizationStats) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}
