package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/certkeeper/internal/common"
	"github.com/dmitrijs2005/certkeeper/internal/server/models"
)

// StatsService reads and increments per-organisation counters.
type StatsService struct {
	deps Deps
}

func NewStatsService(deps Deps) *StatsService {
	return &StatsService{deps: deps}
}

func (s *StatsService) Get(ctx context.Context, name string) (*models.OrganizationStats, error) {
	st, err := s.deps.RepoManager.OrgStats(s.deps.Runner.Conn()).Get(ctx, strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("stats for %q: %w", name, err)
	}
	return st, nil
}

func (s *StatsService) All(ctx context.Context) ([]*models.OrganizationStats, error) {
	return s.deps.RepoManager.OrgStats(s.deps.Runner.Conn()).List(ctx)
}

// IncrementRecipients adds count to the organisation's recipient total,
// creating the row with zero counters first when needed.
func (s *StatsService) IncrementRecipients(ctx context.Context, name string, count int64) (*models.OrganizationStats, error) {
	name = strings.TrimSpace(name)
	var details []string
	if name == "" {
		details = append(details, "orgName is required")
	}
	if count < 0 {
		details = append(details, "recipientCount must not be negative")
	}
	if len(details) > 0 {
		return nil, common.NewValidationError(details...)
	}

	st, err := s.deps.RepoManager.OrgStats(s.deps.Runner.Conn()).Increment(ctx, name, count, 0)
	if err != nil {
		return nil, fmt.Errorf("error updating stats for %q: %w", name, err)
	}
	return st, nil
}
