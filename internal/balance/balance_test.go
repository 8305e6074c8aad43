package balance

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkhayef/expensesplitter/internal/audit"
	"github.com/fkhayef/expensesplitter/internal/changefeed"
	"github.com/fkhayef/expensesplitter/internal/database"
	"github.com/fkhayef/expensesplitter/internal/database/dbtest"
	"github.com/fkhayef/expensesplitter/internal/expense"
	"github.com/fkhayef/expensesplitter/internal/expense/split"
	"github.com/fkhayef/expensesplitter/internal/group"
	"github.com/fkhayef/expensesplitter/internal/ledger"
	"github.com/fkhayef/expensesplitter/internal/money"
	"github.com/fkhayef/expensesplitter/internal/settlement"
	"github.com/fkhayef/expensesplitter/internal/user"
	"github.com/fkhayef/expensesplitter/pkg/middleware"
)

type fixture struct {
	db          *database.DB
	svc         *Service
	hub         *changefeed.Hub
	expenses    *expense.Service
	settlements *settlement.Service
	groupID     string
	tripID      string
}

// setup creates a flat of alice, bob and carol (INR) and a trip of alice
// and dave (USD)
func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	db := dbtest.New(t)

	users := user.NewRepository(db)
	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		require.NoError(t, users.Create(ctx, &user.User{
			ID: id, Email: id + "@example.com", DisplayName: id, CreatedAt: time.Now().UTC(),
		}))
	}

	hub := changefeed.NewHub()
	groups := group.NewService(db, users, hub, audit.Discard, "INR")
	flat, err := groups.Create(ctx, "alice", &group.CreateGroupRequest{Name: "Flat", MemberIDs: []string{"bob", "carol"}})
	require.NoError(t, err)
	trip, err := groups.Create(ctx, "alice", &group.CreateGroupRequest{Name: "Trip", Currency: "USD", MemberIDs: []string{"dave"}})
	require.NoError(t, err)

	factory := split.NewSplitStrategyFactory()
	expenses := expense.NewService(db, groups.Repository(), factory, hub, audit.Discard, nil)
	settlements := settlement.NewService(db, groups.Repository(), expenses.Repository(), hub, audit.Discard, nil)

	loader := NewLoader(db, groups.Repository(), expenses.Repository(), settlements.Repository())
	svc := NewService(loader, ledger.NewEngine(factory), nil)

	return fixture{
		db:          db,
		svc:         svc,
		hub:         hub,
		expenses:    expenses,
		settlements: settlements,
		groupID:     flat.ID,
		tripID:      trip.ID,
	}
}

func (f fixture) spend(t *testing.T, groupID, payer, amount string, members ...string) *expense.ExpenseWithSplits {
	t.Helper()
	participants := make([]split.SplitInput, len(members))
	for i, m := range members {
		participants[i] = split.SplitInput{MemberID: m}
	}
	exp, err := f.expenses.CreateExpense(context.Background(), payer, &expense.CreateExpenseRequest{
		GroupID:      groupID,
		Description:  "Groceries",
		Amount:       decimal.RequireFromString(amount),
		SplitType:    split.SplitTypeEqual,
		Participants: participants,
	})
	require.NoError(t, err)
	return exp
}

func (f fixture) settle(t *testing.T, groupID, payer, payee, amount string) {
	t.Helper()
	_, err := f.settlements.CreateSettlement(context.Background(), payer, &settlement.CreateSettlementRequest{
		GroupID: groupID,
		PayeeID: payee,
		Amount:  decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
}

func net(t *testing.T, b *ledger.GroupBalances) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for id, m := range b.Net() {
		out[id] = m.Amount.StringFixed(2)
	}
	return out
}

func TestGroupBalances(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	f.spend(t, f.groupID, "alice", "90", "alice", "bob", "carol")
	f.settle(t, f.groupID, "bob", "alice", "30")

	balances, err := f.svc.GroupBalances(ctx, f.groupID, "carol", Query{})
	require.NoError(t, err)
	assert.Equal(t, "INR", balances.Currency)
	assert.Equal(t, map[string]string{"alice": "30.00", "bob": "0.00", "carol": "-30.00"}, net(t, balances))
	assert.True(t, balances.Total().IsZero())

	bob, err := f.svc.MemberBalance(ctx, f.groupID, "bob", "alice", Query{})
	require.NoError(t, err)
	assert.True(t, bob.IsZero())

	_, err = f.svc.MemberBalance(ctx, f.groupID, "dave", "alice", Query{})
	assert.ErrorIs(t, err, ledger.ErrMemberNotInGroup)

	_, err = f.svc.GroupBalances(ctx, f.groupID, "dave", Query{})
	assert.ErrorIs(t, err, ErrNotGroupMember)

	_, err = f.svc.GroupBalances(ctx, "missing", "alice", Query{})
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestSettledExpenses(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	exp := f.spend(t, f.groupID, "alice", "60", "alice", "bob")
	_, err := f.expenses.SettleExpense(ctx, exp.Expense.ID, "bob")
	require.NoError(t, err)

	include, exclude := true, false
	tests := []struct {
		name string
		q    Query
		want map[string]string
	}{
		{"default leaves settled out", Query{}, map[string]string{"alice": "0.00", "bob": "0.00", "carol": "0.00"}},
		{"explicitly left out", Query{IncludeSettled: &exclude}, map[string]string{"alice": "0.00", "bob": "0.00", "carol": "0.00"}},
		{"included on request", Query{IncludeSettled: &include}, map[string]string{"alice": "30.00", "bob": "-30.00", "carol": "0.00"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			balances, err := f.svc.GroupBalances(ctx, f.groupID, "alice", tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, net(t, balances))
		})
	}

	_, err = f.expenses.DeleteExpense(ctx, exp.Expense.ID, "alice")
	require.NoError(t, err)
	balances, err := f.svc.GroupBalances(ctx, f.groupID, "alice", Query{IncludeSettled: &include})
	require.NoError(t, err)
	assert.Equal(t, "0.00", net(t, balances)["alice"], "deleted expenses never count")
}

func TestInconsistentLedger(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	good := f.spend(t, f.groupID, "alice", "30", "alice", "bob", "carol")
	bad := f.spend(t, f.groupID, "bob", "10", "alice", "bob")
	dbtest.Exec(t, f.db, `UPDATE expense_splits SET owed_amount = ? WHERE expense_id = ? AND member_id = ?`,
		"1.00", bad.Expense.ID, "alice")

	_, err := f.svc.GroupBalances(ctx, f.groupID, "alice", Query{})
	var inconsistent *ledger.InconsistencyError
	require.ErrorAs(t, err, &inconsistent)
	assert.ErrorIs(t, err, ledger.ErrLedgerInconsistency)
	assert.Equal(t, bad.Expense.ID, inconsistent.EntityID)
	assert.Equal(t, ledger.EntityExpense, inconsistent.EntityType)

	balances, err := f.svc.GroupBalances(ctx, f.groupID, "alice", Query{SkipInconsistent: true})
	require.NoError(t, err)
	require.Len(t, balances.Excluded, 1)
	assert.Equal(t, bad.Expense.ID, balances.Excluded[0].EntityID)
	assert.Equal(t, map[string]string{"alice": "20.00", "bob": "-10.00", "carol": "-10.00"}, net(t, balances),
		"only %s counts", good.Expense.ID)
}

func TestDebts(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	f.spend(t, f.groupID, "alice", "90", "alice", "bob", "carol")
	f.settle(t, f.groupID, "bob", "alice", "30")

	transfers, err := f.svc.Debts(ctx, f.groupID, "bob", Query{})
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "carol", transfers[0].From)
	assert.Equal(t, "alice", transfers[0].To)
	assert.True(t, transfers[0].Amount.Equal(money.MustParse("30", "INR")))

	f.settle(t, f.groupID, "carol", "alice", "30")
	transfers, err = f.svc.Debts(ctx, f.groupID, "bob", Query{})
	require.NoError(t, err)
	assert.Empty(t, transfers)
}

func TestMemberSummary(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	f.spend(t, f.groupID, "bob", "30", "alice", "bob", "carol")
	f.spend(t, f.tripID, "alice", "50", "alice", "dave")

	summary, err := f.svc.MemberSummary(ctx, "alice", Query{})
	require.NoError(t, err)
	assert.Equal(t, "alice", summary.MemberID)
	require.Len(t, summary.Groups, 2)

	totals := make(map[string]string)
	for _, total := range summary.Totals {
		totals[total.Currency] = total.Amount.StringFixed(2)
	}
	assert.Equal(t, map[string]string{"INR": "-10.00", "USD": "25.00"}, totals)

	summary, err = f.svc.MemberSummary(ctx, "carol", Query{})
	require.NoError(t, err)
	require.Len(t, summary.Groups, 1)
	assert.Equal(t, "Flat", summary.Groups[0].GroupName)
}

func TestHandler(t *testing.T) {
	f := setup(t)
	f.spend(t, f.groupID, "alice", "90", "alice", "bob", "carol")
	routes := middleware.MemberMiddleware(NewHandler(f.svc, f.hub, nil, 10*time.Millisecond).Routes())

	get := func(path, member string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if member != "" {
			req.Header.Set(middleware.MemberHeader, member)
		}
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, req)
		return rec
	}

	rec := get("/groups/"+f.groupID, "bob")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var group struct {
		Data GroupBalancesResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &group))
	require.Len(t, group.Data.Members, 3)
	assert.Equal(t, "alice", group.Data.Members[0].MemberID)
	assert.Equal(t, "60.00", group.Data.Members[0].Net)

	tests := []struct {
		name   string
		path   string
		member string
		want   int
	}{
		{"no member header", "/groups/" + f.groupID, "", http.StatusUnauthorized},
		{"outsider", "/groups/" + f.groupID, "dave", http.StatusForbidden},
		{"unknown group", "/groups/missing", "alice", http.StatusNotFound},
		{"bad flag", "/groups/" + f.groupID + "?include_settled=maybe", "alice", http.StatusBadRequest},
		{"member balance", "/groups/" + f.groupID + "/members/carol", "alice", http.StatusOK},
		{"member outside group", "/groups/" + f.groupID + "/members/dave", "alice", http.StatusNotFound},
		{"debts", "/groups/" + f.groupID + "/debts", "alice", http.StatusOK},
		{"summary", "/me", "dave", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, get(tt.path, tt.member).Code)
		})
	}

	dbtest.Exec(t, f.db, `UPDATE expense_splits SET owed_amount = ? WHERE member_id = ?`, "0.00", "bob")
	assert.Equal(t, http.StatusUnprocessableEntity, get("/groups/"+f.groupID, "alice").Code)
	assert.Equal(t, http.StatusOK, get("/groups/"+f.groupID+"?skip_inconsistent=true", "alice").Code)
}

func TestStream(t *testing.T) {
	f := setup(t)
	srv := httptest.NewServer(middleware.MemberMiddleware(NewHandler(f.svc, f.hub, nil, 10*time.Millisecond).Routes()))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/groups/"+f.groupID+"/stream", nil)
	require.NoError(t, err)
	req.Header.Set(middleware.MemberHeader, "bob")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	next := func() (string, GroupBalancesResponse) {
		t.Helper()
		var event string
		var data GroupBalancesResponse
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &data))
			case line == "":
				return event, data
			}
		}
	}

	event, data := next()
	assert.Equal(t, "balances", event)
	assert.Equal(t, "0.00", data.Members[1].Net)

	f.spend(t, f.groupID, "alice", "30", "alice", "bob", "carol")

	event, data = next()
	assert.Equal(t, "balances", event)
	assert.Equal(t, "bob", data.Members[1].MemberID)
	assert.Equal(t, "-10.00", data.Members[1].Net)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/groups/"+f.groupID+"/stream", nil)
	r.Header.Set(middleware.MemberHeader, "dave")
	middleware.MemberMiddleware(NewHandler(f.svc, f.hub, nil, time.Millisecond).Routes()).ServeHTTP(rec, r)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
