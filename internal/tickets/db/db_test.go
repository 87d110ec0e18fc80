package db_test

import (
	"context"
	"testing"

	"ms-registration/internal/database/testdb"
	"ms-registration/internal/models"
	"ms-registration/internal/tickets/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *db.DB {
	return &db.DB{Bun: testdb.New(t)}
}

func TestCreateAndGetTicket(t *testing.T) {
	ctx := context.Background()
	ticketDB := setupTestDB(t)

	ticket := &models.Ticket{Rate: "unwaged", Sun: true, Tue: true}
	require.NoError(t, ticketDB.CreateTicket(ctx, ticket))
	assert.NotZero(t, ticket.ID)

	got, err := ticketDB.GetTicketByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"sun", "tue"}, got.DayKeys())
	assert.Nil(t, got.OwnerID)

	_, err = ticketDB.GetTicketByID(ctx, ticket.ID+100)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestOwnerIsUnique(t *testing.T) {
	ctx := context.Background()
	ticketDB := setupTestDB(t)

	owner := "alice"
	require.NoError(t, ticketDB.CreateTicket(ctx, &models.Ticket{OwnerID: &owner, Rate: "individual", Sat: true}))

	err := ticketDB.CreateTicket(ctx, &models.Ticket{OwnerID: &owner, Rate: "individual", Sun: true})
	assert.ErrorIs(t, err, models.ErrUniqueViolation)

	unowned := &models.Ticket{Rate: "individual", Mon: true}
	require.NoError(t, ticketDB.CreateTicket(ctx, unowned))
	assert.ErrorIs(t, ticketDB.SetTicketOwner(ctx, unowned.ID, owner), models.ErrUniqueViolation)

	require.NoError(t, ticketDB.SetTicketOwner(ctx, unowned.ID, "bob"))
	// Already owned.
	assert.ErrorIs(t, ticketDB.SetTicketOwner(ctx, unowned.ID, "carol"), models.ErrNotFound)
}

func TestInvitations(t *testing.T) {
	ctx := context.Background()
	ticketDB := setupTestDB(t)

	ticket := &models.Ticket{Rate: "individual", Sat: true}
	require.NoError(t, ticketDB.CreateTicket(ctx, ticket))

	inv := &models.TicketInvitation{TicketID: ticket.ID, EmailAddr: "bob@example.com", Token: "abcdefghijkl", Status: models.InvitationUnclaimed}
	require.NoError(t, ticketDB.CreateInvitation(ctx, inv))

	dup := &models.TicketInvitation{TicketID: ticket.ID + 1, EmailAddr: "bob@example.com", Token: "mnopqrstuvwx", Status: models.InvitationUnclaimed}
	assert.ErrorIs(t, ticketDB.CreateInvitation(ctx, dup), models.ErrUniqueViolation)

	got, err := ticketDB.GetInvitationByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghijkl", got.Token)

	ok, err := ticketDB.MarkInvitationClaimed(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = ticketDB.MarkInvitationClaimed(ctx, inv.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, ticketDB.DeleteInvitationForTicket(ctx, ticket.ID))
	_, err = ticketDB.GetInvitationByEmail(ctx, "bob@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpsertUser(t *testing.T) {
	ctx := context.Background()
	ticketDB := setupTestDB(t)

	require.NoError(t, ticketDB.UpsertUser(ctx, &models.User{ID: "u1", Name: "Old", EmailAddr: "old@example.com"}))
	require.NoError(t, ticketDB.UpsertUser(ctx, &models.User{ID: "u1", Name: "New", EmailAddr: "new@example.com"}))

	user, err := ticketDB.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "New", user.Name)
	assert.Equal(t, "new@example.com", user.EmailAddr)
}
