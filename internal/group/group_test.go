package group

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkhayef/expensesplitter/internal/audit"
	"github.com/fkhayef/expensesplitter/internal/changefeed"
	"github.com/fkhayef/expensesplitter/internal/database"
	"github.com/fkhayef/expensesplitter/internal/database/dbtest"
	"github.com/fkhayef/expensesplitter/internal/money"
	"github.com/fkhayef/expensesplitter/internal/user"
	"github.com/fkhayef/expensesplitter/pkg/middleware"
)

func setup(t *testing.T, userIDs ...string) (*database.DB, *Service, *changefeed.Hub) {
	t.Helper()
	db := dbtest.New(t)
	users := user.NewRepository(db)
	for _, id := range userIDs {
		require.NoError(t, users.Create(context.Background(), &user.User{
			ID: id, Email: id + "@example.com", DisplayName: id, CreatedAt: time.Now().UTC(),
		}))
	}
	hub := changefeed.NewHub()
	return db, NewService(db, users, hub, audit.Discard, "INR"), hub
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	_, svc, _ := setup(t, "alice", "bob", "carol")

	group, err := svc.Create(ctx, "alice", &CreateGroupRequest{
		Name:      " <b>Goa</b> trip ",
		MemberIDs: []string{"bob", "carol", "bob", "alice"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Goa trip", group.Name)
	assert.Equal(t, "INR", group.Currency)
	assert.Equal(t, "alice", group.CreatedBy)

	_, members, err := svc.GetByIDWithMembers(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, members, 3)

	roles := map[string]MemberRole{}
	for _, m := range members {
		roles[m.MemberID] = m.Role
		assert.Equal(t, MemberStatusJoined, m.Status)
	}
	assert.Equal(t, MemberRoleAdmin, roles["alice"])
	assert.Equal(t, MemberRoleMember, roles["bob"])

	usd, err := svc.Create(ctx, "bob", &CreateGroupRequest{Name: "NYC", Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, "USD", usd.Currency)
}

func TestCreateIsAtomic(t *testing.T) {
	ctx := context.Background()
	_, svc, _ := setup(t, "alice")

	_, err := svc.Create(ctx, "alice", &CreateGroupRequest{Name: "Trip", MemberIDs: []string{"ghost"}})
	require.ErrorIs(t, err, ErrUserNotFound)

	groups, total, err := svc.ListByMemberID(ctx, "alice", 1, 20)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, groups)

	_, err = svc.Create(ctx, "alice", &CreateGroupRequest{Name: "Trip", Currency: "RUPEE"})
	assert.ErrorIs(t, err, money.ErrInvalidCurrency)
}

func TestMembership(t *testing.T) {
	ctx := context.Background()
	db, svc, hub := setup(t, "alice", "bob", "carol", "dave")

	group, err := svc.Create(ctx, "alice", &CreateGroupRequest{Name: "Flat", MemberIDs: []string{"bob"}})
	require.NoError(t, err)

	sub := hub.Subscribe(group.ID)
	defer sub.Close()

	member, err := svc.AddMember(ctx, group.ID, "bob", &AddMemberRequest{MemberID: "carol"})
	require.NoError(t, err)
	assert.Equal(t, MemberStatusInvited, member.Status)
	select {
	case <-sub.C:
	case <-time.After(time.Second):
		t.Fatal("adding a member must publish a change")
	}

	_, err = svc.AddMember(ctx, group.ID, "bob", &AddMemberRequest{MemberID: "carol"})
	assert.ErrorIs(t, err, ErrMemberAlreadyExists)
	_, err = svc.AddMember(ctx, group.ID, "dave", &AddMemberRequest{MemberID: "dave"})
	assert.ErrorIs(t, err, ErrNotAuthorized)
	_, err = svc.AddMember(ctx, group.ID, "bob", &AddMemberRequest{MemberID: "ghost"})
	assert.ErrorIs(t, err, ErrUserNotFound)

	accepted, err := svc.AcceptInvitation(ctx, group.ID, "carol")
	require.NoError(t, err)
	assert.Equal(t, MemberStatusJoined, accepted.Status)

	memberships, err := svc.Repository().Memberships(ctx, []string{group.ID, "missing"})
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	assert.Equal(t, []string{"alice", "bob", "carol"}, memberships[0].MemberIDs)
	assert.Equal(t, "Flat", memberships[0].Name)

	assert.ErrorIs(t, svc.RemoveMember(ctx, group.ID, "alice", "alice"), ErrCannotRemoveCreator)
	assert.ErrorIs(t, svc.RemoveMember(ctx, group.ID, "carol", "bob"), ErrNotAuthorized)

	dbtest.Exec(t, db, `INSERT INTO expenses (id, group_id, description, category, amount, currency, payer_id,
		split_type, status, expense_date, created_by, created_at, updated_at)
		VALUES ('e1', ?, 'Rent', 'GENERAL', '10.00', 'INR', 'carol', 'EQUAL', 'ACTIVE', ?, 'carol', ?, ?)`,
		group.ID, time.Now().UTC(), time.Now().UTC(), time.Now().UTC())
	assert.ErrorIs(t, svc.RemoveMember(ctx, group.ID, "carol", "carol"), ErrMemberHasActivity)

	dbtest.Exec(t, db, `UPDATE expenses SET status = 'DELETED' WHERE id = 'e1'`)
	require.NoError(t, svc.RemoveMember(ctx, group.ID, "carol", "carol"))
	assert.ErrorIs(t, svc.RemoveMember(ctx, group.ID, "carol", "alice"), ErrMemberNotFound)
}

func TestUpdateAndDeleteNeedAdmin(t *testing.T) {
	ctx := context.Background()
	_, svc, _ := setup(t, "alice", "bob")

	group, err := svc.Create(ctx, "alice", &CreateGroupRequest{Name: "Trip", MemberIDs: []string{"bob"}})
	require.NoError(t, err)

	name := "Road trip"
	_, err = svc.Update(ctx, group.ID, "bob", &UpdateGroupRequest{Name: &name})
	assert.ErrorIs(t, err, ErrNotAuthorized)

	updated, err := svc.Update(ctx, group.ID, "alice", &UpdateGroupRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Road trip", updated.Name)

	member := MemberRoleMember
	_, err = svc.UpdateMember(ctx, group.ID, "alice", "alice", &UpdateMemberRequest{Role: &member})
	assert.ErrorIs(t, err, ErrLastAdmin)

	assert.ErrorIs(t, svc.Delete(ctx, group.ID, "bob"), ErrNotAuthorized)
	require.NoError(t, svc.Delete(ctx, group.ID, "alice"))
	_, err = svc.GetByID(ctx, group.ID)
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestHandler(t *testing.T) {
	_, svc, _ := setup(t, "alice", "bob")
	routes := middleware.MemberMiddleware(NewHandler(svc).Routes())

	do := func(method, path, member, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		if member != "" {
			req.Header.Set(middleware.MemberHeader, member)
		}
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, do(http.MethodPost, "/", "", `{"name":"Trip"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/", "alice", `{"name":""}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/", "alice", `{"name":"Trip","currency":"EURO"}`).Code)

	rec := do(http.MethodPost, "/", "alice", `{"name":"Trip","member_ids":["bob"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Data GroupResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Len(t, created.Data.Members, 2)

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/"+created.Data.ID, "bob", "").Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/nope", "bob", "").Code)
	assert.Equal(t, http.StatusForbidden, do(http.MethodDelete, "/"+created.Data.ID, "bob", "").Code)
	assert.Equal(t, http.StatusConflict, do(http.MethodDelete, "/"+created.Data.ID+"/members/alice", "alice", "").Code)

	rec = do(http.MethodGet, "/", "bob", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
}
