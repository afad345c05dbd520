package services

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dmitrijs2005/certkeeper/internal/common"
	"github.com/dmitrijs2005/certkeeper/internal/compositor"
	"github.com/dmitrijs2005/certkeeper/internal/cryptox"
	"github.com/dmitrijs2005/certkeeper/internal/fields"
	"github.com/dmitrijs2005/certkeeper/internal/server/models"
	"github.com/dmitrijs2005/certkeeper/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nameOnly = `{"recipientName":{"x":10,"y":10,"width":200,"height":40}}`

const nameAndRank = `{
	"recipientName":{"x":10,"y":10,"width":300,"height":60},
	"rank":{"x":10,"y":100,"width":100,"height":40},
	"certificateQR":{"x":300,"y":200,"width":80,"height":80}
}`

func TestStore_EndToEndVerify(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	event, cfg := f.seed(t, nameOnly)

	const id = "11111111-2222-3333-4444-555555555555"
	sum, err := f.gen.Store(ctx, f.caller, StoreRequest{
		CertificateID: cfg.ID,
		Recipients:    []models.Recipient{{Name: "Ada Lovelace", UUID: id}},
		Password:      "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.NoOfRecipient)
	assert.False(t, sum.Rank)
	assert.True(t, sum.Encrypted)
	assert.Equal(t, 1, sum.Tokens)

	res, err := f.verify.Verify(ctx, id)
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, StepComplete, res.Step)
	assert.Equal(t, event.Name, res.Data.EventName)
	assert.Equal(t, "Acme", res.Data.Organisation)
	assert.Equal(t, "Jane Doe", res.Data.IssuerName)
	assert.Equal(t, cfg.ID, res.Data.CertificateID)
	assert.Equal(t, sum.ID, res.Data.VerificationID)
	assert.True(t, res.Data.IsValid)
}

func TestStore_EncryptsRecipients(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, cfg := f.seed(t, nameOnly)

	sum, err := f.gen.Store(ctx, f.caller, StoreRequest{
		CertificateID: cfg.ID,
		Recipients:    []models.Recipient{{Name: " Ada Lovelace ", Email: "ADA@example.org", Rank: "1st"}},
		Password:      "secret1",
	})
	require.NoError(t, err)
	assert.False(t, sum.Rank, "config has no rank field")

	rec, err := f.rm.Store().Generations().GetByID(ctx, sum.ID)
	require.NoError(t, err)
	assert.NotContains(t, rec.Payload.Ciphertext, "Ada")

	var got []models.Recipient
	require.NoError(t, cryptox.Decrypt(&rec.Payload, "secret1", &got))
	assert.Equal(t, []models.Recipient{{Name: "Ada Lovelace", Email: "ada@example.org"}}, got)
}

func TestStore_KeepsRankWhenConfigHasRankField(t *testing.T) {
	f := newFixture(t)
	_, cfg := f.seed(t, nameAndRank)

	sum, err := f.gen.Store(context.Background(), f.caller, StoreRequest{
		CertificateID: cfg.ID,
		Recipients:    []models.Recipient{{Name: "Ada", Rank: "1st"}, {Name: "Bob"}},
		Password:      "secret1",
	})
	require.NoError(t, err)
	assert.True(t, sum.Rank)
}

func TestStore_PartialTokenFailure(t *testing.T) {
	ctx := context.Background()
	rm := repomanager.NewInMemoryRepositoryManager(nil)
	f := newFixtureWith(t, flakyManager{InMemoryRepositoryManager: rm, failUUID: "uuid-2"})
	_, cfg := f.seed(t, nameOnly)

	sum, err := f.gen.Store(ctx, f.caller, StoreRequest{
		CertificateID: cfg.ID,
		Recipients: []models.Recipient{
			{Name: "Ada", UUID: "uuid-1"},
			{Name: "Bob", UUID: "uuid-2"},
			{Name: "Eve", UUID: "uuid-3"},
		},
		Password: "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.NoOfRecipient)
	assert.Equal(t, 2, sum.Tokens)
	assert.Equal(t, 1, sum.FailedTokens)

	rec, err := rm.Store().Generations().GetByID(ctx, sum.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.RecipientCount)

	toks, err := rm.Store().Tokens().ListByGeneration(ctx, sum.ID)
	require.NoError(t, err)
	assert.Len(t, toks, 2)

	res, err := f.verify.Verify(ctx, "uuid-2")
	require.NoError(t, err)
	assert.Equal(t, StepUUIDLookup, res.Step)
}

func TestStore_StatsFailureDoesNotFailBatch(t *testing.T) {
	ctx := context.Background()
	rm := repomanager.NewInMemoryRepositoryManager(nil)
	f := newFixtureWith(t, brokenStatsManager{InMemoryRepositoryManager: rm})
	_, cfg := f.seed(t, nameOnly)

	sum, err := f.gen.Store(ctx, f.caller, StoreRequest{
		CertificateID: cfg.ID,
		Recipients:    []models.Recipient{{Name: "Ada", UUID: "uuid-1"}, {Name: "Bob", UUID: "uuid-2"}},
		Password:      "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Tokens)

	rec, err := rm.Store().Generations().GetByID(ctx, sum.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.RecipientCount)

	toks, err := rm.Store().Tokens().ListByGeneration(ctx, sum.ID)
	require.NoError(t, err)
	assert.Len(t, toks, 2)

	_, err = rm.Store().OrgStats().Get(ctx, "Acme")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestStore_DuplicateUUIDDoesNotFailBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, cfg := f.seed(t, nameOnly)

	req := StoreRequest{CertificateID: cfg.ID, Recipients: []models.Recipient{{Name: "Ada", UUID: "dup"}}, Password: "secret1"}
	_, err := f.gen.Store(ctx, f.caller, req)
	require.NoError(t, err)

	sum, err := f.gen.Store(ctx, f.caller, req)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Tokens)
	assert.Equal(t, 1, sum.FailedTokens)
}

func TestStore_UpdatesOrganisationStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, cfg := f.seed(t, nameOnly)

	_, err := f.gen.Store(ctx, f.caller, StoreRequest{
		CertificateID: cfg.ID,
		Recipients:    []models.Recipient{{Name: "Ada"}, {Name: "Bob"}},
		Password:      "secret1",
	})
	require.NoError(t, err)

	st, err := f.stats.Get(ctx, "Acme")
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.RecipientCount)
	assert.EqualValues(t, 1, st.EventsCreated)
}

func TestStore_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, cfg := f.seed(t, nameOnly)

	tests := []struct {
		name string
		req  StoreRequest
		want []string
	}{
		{
			name: "short password",
			req:  StoreRequest{CertificateID: cfg.ID, Recipients: []models.Recipient{{Name: "Ada"}}, Password: "12345"},
			want: []string{"password must be at least 6 characters"},
		},
		{
			name: "no recipients",
			req:  StoreRequest{CertificateID: cfg.ID, Password: "secret1"},
			want: []string{"at least one recipient is required"},
		},
		{
			name: "bad recipients",
			req: StoreRequest{CertificateID: cfg.ID, Password: "secret1",
				Recipients: []models.Recipient{{Name: ""}, {Name: "Bob", Email: "bob"}}},
			want: []string{"recipients[0]: name is required", `recipients[1]: invalid email "bob"`},
		},
		{
			name: "missing certificate",
			req:  StoreRequest{Recipients: []models.Recipient{{Name: "Ada"}}, Password: "secret1"},
			want: []string{"certificateId is required"},
		},
		{
			name: "foreign generatedBy",
			req:  StoreRequest{CertificateID: cfg.ID, GeneratedBy: "someone-else", Recipients: []models.Recipient{{Name: "Ada"}}, Password: "secret1"},
			want: []string{"generatedBy does not match the authenticated user"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.gen.Store(ctx, f.caller, tt.req)
			var ve *common.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.want, ve.Details)
		})
	}

	_, err := f.gen.Store(ctx, f.caller, StoreRequest{
		CertificateID: "missing", Recipients: []models.Recipient{{Name: "Ada"}}, Password: "secret1",
	})
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestList_RedactsAndFilters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, cfg := f.seed(t, nameAndRank)

	for _, rs := range [][]models.Recipient{
		{{Name: "Ada", Rank: "1st"}},
		{{Name: "Bob"}, {Name: "Eve"}},
	} {
		_, err := f.gen.Store(ctx, f.caller, StoreRequest{CertificateID: cfg.ID, Recipients: rs, Password: "secret1"})
		require.NoError(t, err)
	}

	res, err := f.gen.List(ctx, f.caller, models.GenerationQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	for _, it := range res.Items {
		assert.Empty(t, it.Recipients)
		assert.NotNil(t, it.Recipients)
		assert.Equal(t, "Go Conference", it.EventName)
	}

	res, err = f.gen.List(ctx, f.caller, models.GenerationQuery{Filter: models.FilterWithRank})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, 1, res.Items[0].NoOfRecipient)

	other, err := f.gen.List(ctx, Caller{UserID: "user-2"}, models.GenerationQuery{})
	require.NoError(t, err)
	assert.Zero(t, other.Total)

	_, err = f.gen.List(ctx, f.caller, models.GenerationQuery{Sort: "bogus"})
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestList_SearchRequiresDecryption(t *testing.T) {
	f := newFixture(t)
	_, cfg := f.seed(t, nameOnly)
	_, err := f.gen.Store(context.Background(), f.caller, StoreRequest{
		CertificateID: cfg.ID, Recipients: []models.Recipient{{Name: "Ada"}}, Password: "secret1",
	})
	require.NoError(t, err)

	res, err := f.gen.List(context.Background(), f.caller, models.GenerationQuery{Search: "ada"})
	require.NoError(t, err)
	assert.True(t, res.RequiresDecryption)
	assert.Empty(t, res.Items)
	assert.Zero(t, res.Total)
}

func TestDecryptSearch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, cfg := f.seed(t, nameOnly)

	store := func(password string, rs ...models.Recipient) {
		_, err := f.gen.Store(ctx, f.caller, StoreRequest{CertificateID: cfg.ID, Recipients: rs, Password: password})
		require.NoError(t, err)
	}
	store("secret1", models.Recipient{Name: "Ada Lovelace", Email: "ada@example.org"})
	store("secret1", models.Recipient{Name: "Charles Babbage"})
	store("other-pass", models.Recipient{Name: "Grace Hopper"})

	t.Run("search by name", func(t *testing.T) {
		res, err := f.gen.DecryptSearch(ctx, f.caller, "secret1", models.GenerationQuery{Search: "LOVELACE"})
		require.NoError(t, err)
		assert.Equal(t, DecryptionStats{Successful: 2, Failed: 1}, res.Decryption)
		require.Len(t, res.Items, 1)
		assert.Equal(t, "Ada Lovelace", res.Items[0].Recipients[0].Name)
	})

	t.Run("search by email", func(t *testing.T) {
		res, err := f.gen.DecryptSearch(ctx, f.caller, "secret1", models.GenerationQuery{Search: "example.org"})
		require.NoError(t, err)
		assert.Len(t, res.Items, 1)
	})

	t.Run("search by event name", func(t *testing.T) {
		res, err := f.gen.DecryptSearch(ctx, f.caller, "secret1", models.GenerationQuery{Search: "conference"})
		require.NoError(t, err)
		assert.Len(t, res.Items, 2)
	})

	t.Run("no search pages everything decrypted", func(t *testing.T) {
		res, err := f.gen.DecryptSearch(ctx, f.caller, "secret1", models.GenerationQuery{Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Total)
		assert.Equal(t, 2, res.TotalPages)
		assert.Len(t, res.Items, 1)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := f.gen.DecryptSearch(ctx, f.caller, "nope-nope", models.GenerationQuery{})
		assert.ErrorIs(t, err, common.ErrorUnauthorized)
		assert.ErrorIs(t, err, cryptox.ErrDecryption)
	})

	t.Run("missing password", func(t *testing.T) {
		_, err := f.gen.DecryptSearch(ctx, f.caller, "", models.GenerationQuery{})
		assert.ErrorIs(t, err, common.ErrorValidation)
	})
}

func TestGenerate_Archive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, cfg := f.seed(t, nameAndRank)

	res, err := f.gen.Generate(ctx, f.caller, GenerateRequest{
		CertificateID: cfg.ID,
		Recipients: []models.Recipient{
			{Name: "Ada Lovelace", Rank: "1st", UUID: "u-1"},
			{Name: "ada lovelace"},
			{Name: "Bob / Smith"},
		},
		Password: "secret1",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, []string{"Ada_Lovelace.png", "ada_lovelace-2.png", "Bob_Smith.png"}, res.Files)

	zr, err := zip.NewReader(bytes.NewReader(res.Archive), int64(len(res.Archive)))
	require.NoError(t, err)
	require.Len(t, zr.File, 3)
	for _, zf := range zr.File {
		rc, err := zf.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, rc.Close())
		require.NoError(t, err)
		tmpl, err := compositor.Load(data)
		require.NoError(t, err)
		assert.Equal(t, 400, tmpl.Bounds().Dx())
	}

	require.NotNil(t, res.Generation)
	assert.Equal(t, 3, res.Generation.NoOfRecipient)
	assert.True(t, res.Generation.Rank)

	v, err := f.verify.Verify(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, v.Success)
}

func TestGenerate_WithoutPasswordStoresNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, cfg := f.seed(t, nameOnly)

	res, err := f.gen.Generate(ctx, f.caller, GenerateRequest{
		CertificateID: cfg.ID,
		Recipients:    []models.Recipient{{Name: "Ada"}},
	})
	require.NoError(t, err)
	assert.Nil(t, res.Generation)

	list, err := f.gen.List(ctx, f.caller, models.GenerationQuery{})
	require.NoError(t, err)
	assert.Zero(t, list.Total)

	_, err = f.gen.Generate(ctx, f.caller, GenerateRequest{
		CertificateID: cfg.ID, Recipients: []models.Recipient{{Name: "Ada"}}, Password: "abc",
	})
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestGenerate_TemplateLoadFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, cfg := f.seed(t, nameOnly)
	corrupt := "\x89PNG\r\n\x1a\ntruncated IHDR"
	require.NoError(t, f.blobs.Put(ctx, templateKey, []byte(corrupt), "image/png"))

	req := GenerateRequest{CertificateID: cfg.ID, Recipients: []models.Recipient{{Name: "Ada"}, {Name: "Bob"}}}
	_, err := f.gen.Generate(ctx, f.caller, req)
	assert.ErrorIs(t, err, compositor.ErrTemplateLoad)

	req.FallbackToRaw = true
	res, err := f.gen.Generate(ctx, f.caller, req)
	require.NoError(t, err)
	assert.Equal(t, []string{FallbackWarning}, res.Warnings)
	assert.Equal(t, []string{"Ada.png", "Bob.png"}, res.Files)

	zr, err := zip.NewReader(bytes.NewReader(res.Archive), int64(len(res.Archive)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, corrupt, string(data))
}

func TestGenerate_FallbackRefusesNonImage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, cfg := f.seed(t, nameOnly)
	require.NoError(t, f.blobs.Put(ctx, templateKey, []byte("not an image"), "image/png"))

	res, err := f.gen.Generate(ctx, f.caller, GenerateRequest{
		CertificateID: cfg.ID, Recipients: []models.Recipient{{Name: "Ada"}}, FallbackToRaw: true,
	})
	assert.ErrorIs(t, err, compositor.ErrTemplateLoad)
	assert.Nil(t, res)
}

func TestGenerate_RemoteTemplateDoesNotLeak(t *testing.T) {
	ctx := context.Background()
	const secret = `{"AccessKeyId":"AKIA-INTERNAL-SECRET"}`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte(secret))
	}))
	defer ts.Close()

	tests := []struct {
		name  string
		hosts []string
	}{
		{name: "host not allowed"},
		{name: "host allowed, body not an image", hosts: []string{"127.0.0.1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.withResolver(ts.Client(), tt.hosts...)
			_, cfg := f.seed(t, nameOnly)
			_, err := f.configs.Update(ctx, cfg.ID, UpdateConfigRequest{ImagePath: ptr(ts.URL + "/latest/meta-data/creds.png")})
			require.NoError(t, err)

			res, err := f.gen.Generate(ctx, f.caller, GenerateRequest{
				CertificateID: cfg.ID, Recipients: []models.Recipient{{Name: "Ada"}}, FallbackToRaw: true,
			})
			require.ErrorIs(t, err, compositor.ErrTemplateLoad)
			assert.Nil(t, res)
			assert.NotContains(t, err.Error(), "AKIA")
		})
	}
}

func TestGenerate_MissingTemplateIsLoadError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, cfg := f.seed(t, nameOnly)
	_, err := f.configs.Update(ctx, cfg.ID, UpdateConfigRequest{ImagePath: ptr("templates/missing.png")})
	require.NoError(t, err)

	_, err = f.gen.Generate(ctx, f.caller, GenerateRequest{
		CertificateID: cfg.ID, Recipients: []models.Recipient{{Name: "Ada"}}, FallbackToRaw: true,
	})
	assert.ErrorIs(t, err, compositor.ErrTemplateLoad)
}

func TestSample(t *testing.T) {
	f := newFixture(t)
	_, cfg := f.seed(t, nameOnly)

	img, err := f.gen.Sample(context.Background(), f.caller, SampleRequest{
		CertificateID: cfg.ID,
		Recipient:     models.Recipient{Name: "Ada Lovelace"},
	})
	require.NoError(t, err)
	tmpl, err := compositor.Load(img)
	require.NoError(t, err)
	assert.Equal(t, "png", tmpl.Format())

	_, err = f.gen.Sample(context.Background(), f.caller, SampleRequest{CertificateID: cfg.ID})
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestTexts(t *testing.T) {
	f := newFixture(t)
	withRank := &models.TemplateConfig{Fields: fields.Set{fields.Rank: {Width: 1, Height: 1}}}
	without := &models.TemplateConfig{Fields: fields.Set{fields.RecipientName: {Width: 1, Height: 1}}}
	r := models.Recipient{Name: "Ada  Lovelace", Rank: "2nd"}

	got := f.gen.Texts(withRank, "Acme", r)
	assert.Equal(t, map[fields.Name]string{
		fields.RecipientName:    "Ada  Lovelace",
		fields.OrganisationName: "Acme",
		fields.CertificateLink:  "https://certs.example.org/certificate/ada-lovelace",
		fields.Rank:             "2nd",
	}, got)

	got = f.gen.Texts(without, "Acme", r)
	assert.NotContains(t, got, fields.Rank)
}

func TestListTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, cfg := f.seed(t, nameOnly)

	sum, err := f.gen.Store(ctx, f.caller, StoreRequest{
		CertificateID: cfg.ID,
		Recipients:    []models.Recipient{{Name: "Ada", UUID: "a"}, {Name: "Bob"}, {Name: "Eve", UUID: "e"}},
		Password:      "secret1",
	})
	require.NoError(t, err)

	toks, err := f.gen.ListTokens(ctx, f.caller, sum.ID)
	require.NoError(t, err)
	require.Len(t, toks, 2)
	assert.Equal(t, sum.ID, toks[0].GenerationID)

	_, err = f.gen.ListTokens(ctx, Caller{UserID: "intruder"}, sum.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = f.gen.ListTokens(ctx, f.caller, "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestCertificateLink(t *testing.T) {
	assert.Equal(t, "http://x/certificate/ada-lovelace", CertificateLink("http://x/", "  Ada   Lovelace "))
	assert.Equal(t, "http://x/certificate/j%C3%BCrgen", CertificateLink("http://x", "Jürgen"))
}

func ptr[T any](v T) *T { return &v }
