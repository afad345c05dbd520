package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/certkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsService_IncrementRecipients(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	st, err := f.stats.IncrementRecipients(ctx, "Acme", 5)
	require.NoError(t, err)
	assert.EqualValues(t, 5, st.RecipientCount)
	assert.EqualValues(t, 0, st.EventsCreated)

	st, err = f.stats.IncrementRecipients(ctx, "Acme", 3)
	require.NoError(t, err)
	assert.EqualValues(t, 8, st.RecipientCount)
	assert.EqualValues(t, 0, st.EventsCreated)

	got, err := f.stats.Get(ctx, "Acme")
	require.NoError(t, err)
	assert.EqualValues(t, 8, got.RecipientCount)
	assert.EqualValues(t, 0, got.EventsCreated)
}

func TestStatsService_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.stats.IncrementRecipients(context.Background(), " ", 1)
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = f.stats.IncrementRecipients(context.Background(), "Acme", -1)
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = f.stats.Get(context.Background(), "Nobody")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestStatsService_All(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, n := range []string{"Zeta", "Acme"} {
		_, err := f.stats.IncrementRecipients(ctx, n, 1)
		require.NoError(t, err)
	}

	all, err := f.stats.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Acme", all[0].Name)
	assert.Equal(t, "Zeta", all[1].Name)
}

func TestEventService_Create(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	e, err := f.events.Create(ctx, f.caller, CreateEventRequest{
		Name: "  Hackathon ", Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "Hackathon", e.Name)
	assert.Equal(t, "Acme", e.Organisation, "organisation defaults to the caller's")
	assert.Equal(t, "user-1", e.CreatedBy)

	got, err := f.events.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Name, got.Name)

	st, err := f.stats.Get(ctx, "Acme")
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.EventsCreated)
	assert.EqualValues(t, 0, st.RecipientCount)

	_, err = f.events.Create(ctx, Caller{UserID: "u"}, CreateEventRequest{})
	var ve *common.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"name is required", "organisation is required", "date is required"}, ve.Details)

	_, err = f.events.Get(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
