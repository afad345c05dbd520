package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"testing"
	"time"

	"github.com/dmitrijs2005/certkeeper/internal/compositor"
	"github.com/dmitrijs2005/certkeeper/internal/dbx"
	"github.com/dmitrijs2005/certkeeper/internal/logging"
	"github.com/dmitrijs2005/certkeeper/internal/server/models"
	"github.com/dmitrijs2005/certkeeper/internal/server/objectstore"
	"github.com/dmitrijs2005/certkeeper/internal/server/repositories/orgstats"
	"github.com/dmitrijs2005/certkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/certkeeper/internal/server/repositories/tokens"
	"github.com/stretchr/testify/require"
)

const templateKey = "templates/2024/6/1/template.png"

type fixture struct {
	rm    *repomanager.InMemoryRepositoryManager
	blobs *objectstore.MemoryStore

	events   *EventService
	configs  *ConfigService
	gen      *GenerationService
	verify   *VerificationService
	stats    *StatsService
	template *TemplateService

	caller Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, repomanager.NewInMemoryRepositoryManager(nil))
}

func newFixtureWith(t *testing.T, rm repomanager.RepositoryManager) *fixture {
	t.Helper()

	fb, err := compositor.NewFontBook()
	require.NoError(t, err)

	blobs := objectstore.NewMemoryStore()
	require.NoError(t, blobs.Put(context.Background(), templateKey, whitePNG(t, 400, 300), "image/png"))

	deps := Deps{Runner: dbx.NopRunner{}, RepoManager: rm, Logger: logging.Discard()}

	f := &fixture{
		blobs:    blobs,
		events:   NewEventService(deps),
		configs:  NewConfigService(deps),
		gen:      NewGenerationService(deps, objectstore.NewResolver(blobs, nil), compositor.New(fb), "https://certs.example.org/"),
		verify:   NewVerificationService(deps),
		stats:    NewStatsService(deps),
		template: NewTemplateService(blobs, logging.Discard()),
		caller:   Caller{UserID: "user-1", Organisation: "Acme"},
	}
	if m, ok := rm.(*repomanager.InMemoryRepositoryManager); ok {
		f.rm = m
	}
	return f
}

// seed creates an event and its config with the given validFields JSON.
func (f *fixture) seed(t *testing.T, validFields string) (*models.Event, *models.TemplateConfig) {
	t.Helper()
	ctx := context.Background()

	e, err := f.events.Create(ctx, f.caller, CreateEventRequest{
		Name:       "Go Conference",
		IssuerName: "Jane Doe",
		Date:       time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	cfg, err := f.configs.Create(ctx, CreateConfigRequest{
		EventID:     e.ID,
		ImagePath:   templateKey,
		ValidFields: json.RawMessage(validFields),
	})
	require.NoError(t, err)
	return e, cfg
}

// withResolver swaps the generation service's template source for one that
// may fetch from the given hosts through client.
func (f *fixture) withResolver(client *http.Client, hosts ...string) {
	fb, _ := compositor.NewFontBook()
	deps := Deps{Runner: dbx.NopRunner{}, RepoManager: f.rm, Logger: logging.Discard()}
	f.gen = NewGenerationService(deps, objectstore.NewResolver(f.blobs, client, hosts...), compositor.New(fb), "https://certs.example.org/")
}

func whitePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// flakyManager fails token creation for one uuid.
type flakyManager struct {
	*repomanager.InMemoryRepositoryManager
	failUUID string
}

func (m flakyManager) Tokens(db dbx.DBTX) tokens.Repository {
	return flakyTokens{Repository: m.InMemoryRepositoryManager.Tokens(db), failUUID: m.failUUID}
}

type flakyTokens struct {
	tokens.Repository
	failUUID string
}

func (f flakyTokens) Create(ctx context.Context, t *models.VerificationToken) error {
	if t.UUID == f.failUUID {
		return errors.New("connection reset")
	}
	return f.Repository.Create(ctx, t)
}

// brokenStatsManager fails every organisation counter update.
type brokenStatsManager struct {
	*repomanager.InMemoryRepositoryManager
}

func (m brokenStatsManager) OrgStats(db dbx.DBTX) orgstats.Repository {
	return brokenStats{Repository: m.InMemoryRepositoryManager.OrgStats(db)}
}

type brokenStats struct {
	orgstats.Repository
}

func (brokenStats) Increment(context.Context, string, int64, int64) (*models.OrganizationStats, error) {
	return nil, errors.New("stats table is locked")
}
