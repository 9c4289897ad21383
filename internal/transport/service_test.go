package transport

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Nell373/linebot-ai/internal/command"
	"github.com/Nell373/linebot-ai/internal/entity"
	kerrors "github.com/Nell373/linebot-ai/internal/errors"
	"github.com/Nell373/linebot-ai/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	executed []command.Command
	err      error
}

func (f *fakeLedger) Execute(_ context.Context, cmd command.Command) (command.Receipt, error) {
	f.executed = append(f.executed, cmd)
	if f.err != nil {
		return command.Receipt{}, f.err
	}
	return command.Receipt{ID: 7, Message: "ok"}, nil
}

func (f *fakeLedger) Categories(_ context.Context, _ string, isExpense bool) ([]entity.Category, error) {
	return []entity.Category{{ID: 1, Name: "餐飲", Icon: "🍔", IsExpense: isExpense}}, nil
}

func (f *fakeLedger) Accounts(context.Context, string) ([]entity.Account, error) {
	return []entity.Account{{ID: 1, Name: entity.DefaultAccount}}, nil
}

func (f *fakeLedger) Transactions(context.Context, string, time.Time, time.Time) ([]entity.Transaction, error) {
	return nil, nil
}

func (f *fakeLedger) Transaction(_ context.Context, _ string, id int64) (entity.Transaction, error) {
	if id != 1 {
		return entity.Transaction{}, command.Reject("找不到該筆交易")
	}
	return entity.Transaction{ID: 1, Amount: decimal.NewFromInt(150), Category: "餐飲"}, nil
}

func (f *fakeLedger) Summary(_ context.Context, _ string, from, to time.Time) (entity.Summary, error) {
	return entity.Summary{From: from, To: to, Income: decimal.NewFromInt(10), Expense: decimal.NewFromInt(4)}, nil
}

func (f *fakeLedger) Tasks(context.Context, string) ([]entity.Task, error) {
	return []entity.Task{{ID: 3, Content: "開會"}}, nil
}

func (f *fakeLedger) Notes(_ context.Context, _ string, tag string) ([]entity.Note, error) {
	return []entity.Note{{ID: 4, Title: "會議", Tags: []string{tag}}}, nil
}

func (f *fakeLedger) Note(_ context.Context, _ string, id int64) (entity.Note, error) {
	if id != 4 {
		return entity.Note{}, command.Reject("找不到 ID 為 5 的筆記。")
	}
	return entity.Note{ID: 4, Title: "會議"}, nil
}

func TestService_Exec(t *testing.T) {
	fl := &fakeLedger{}
	svc := NewService(nil, "kimi.ledger", fl, 0)

	data, err := command.Marshal(command.CreateAccount{UserID: "u1", Name: "信用卡"})
	require.NoError(t, err)

	resp := svc.Exec(context.Background(), data)
	require.Equal(t, StatusOK, resp.Status)
	require.NotNil(t, resp.Receipt)
	assert.Equal(t, int64(7), resp.Receipt.ID)
	require.Len(t, fl.executed, 1)
	assert.Equal(t, command.CreateAccount{UserID: "u1", Name: "信用卡"}, fl.executed[0])
	assert.NoError(t, resp.Err())
}

func TestService_ExecFailures(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		err      error
		status   Status
		wantCode string
		userMsg  string
	}{
		{
			name:     "malformed envelope",
			data:     []byte("{"),
			status:   StatusError,
			wantCode: ErrorParse,
			userMsg:  command.GenericFailure,
		},
		{
			name:    "rejection travels verbatim",
			err:     command.Reject("帳戶「信用卡」已存在"),
			status:  StatusRejected,
			userMsg: "帳戶「信用卡」已存在",
		},
		{
			name:     "other errors are generic",
			err:      errors.New("disk full"),
			status:   StatusError,
			wantCode: ErrorFailed,
			userMsg:  command.GenericFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(nil, "kimi.ledger", &fakeLedger{err: tt.err}, 0)
			data := tt.data
			if data == nil {
				var err error
				data, err = command.Marshal(command.CreateAccount{UserID: "u1", Name: "信用卡"})
				require.NoError(t, err)
			}

			resp := svc.Exec(context.Background(), data)
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, tt.wantCode, resp.ErrorCode)
			assert.Equal(t, tt.userMsg, command.UserMessage(resp.Err()))
		})
	}
}

func TestService_Query(t *testing.T) {
	svc := NewService(nil, "kimi.ledger", &fakeLedger{}, 0)
	ctx := context.Background()

	run := func(q Query) Response {
		t.Helper()
		data, err := json.Marshal(q)
		require.NoError(t, err)
		return svc.Query(ctx, data)
	}

	resp := run(Query{Op: OpCategories, UserID: "u1", IsExpense: true})
	require.Equal(t, StatusOK, resp.Status)
	var cats []entity.Category
	require.NoError(t, json.Unmarshal(resp.Result, &cats))
	require.Len(t, cats, 1)
	assert.True(t, cats[0].IsExpense)

	resp = run(Query{Op: OpSummary, UserID: "u1"})
	require.Equal(t, StatusOK, resp.Status)
	var sum entity.Summary
	require.NoError(t, json.Unmarshal(resp.Result, &sum))
	assert.True(t, sum.Balance().Equal(decimal.NewFromInt(6)))

	resp = run(Query{Op: OpTransaction, UserID: "u1", ID: 2})
	assert.Equal(t, StatusRejected, resp.Status)
	assert.Equal(t, "找不到該筆交易", resp.Reason)

	resp = run(Query{Op: OpNotes, UserID: "u1", Tag: "工作"})
	require.Equal(t, StatusOK, resp.Status)
	var notes []entity.Note
	require.NoError(t, json.Unmarshal(resp.Result, &notes))
	require.Len(t, notes, 1)
	assert.Equal(t, []string{"工作"}, notes[0].Tags)

	resp = run(Query{Op: OpNote, UserID: "u1", ID: 5})
	assert.Equal(t, StatusRejected, resp.Status)
	assert.Equal(t, "找不到 ID 為 5 的筆記。", resp.Reason)

	resp = run(Query{Op: "balance_sheet", UserID: "u1"})
	assert.Equal(t, StatusError, resp.Status)
	assert.True(t, kerrors.IsCategory(resp.Err(), kerrors.ErrInternal))

	resp = svc.Query(ctx, []byte("nope"))
	assert.Equal(t, ErrorParse, resp.ErrorCode)
}

func TestResponse_UnknownStatus(t *testing.T) {
	assert.Error(t, Response{Status: "weird"}.Err())
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "kimi.ledger.exec", ExecSubject("kimi.ledger"))
	assert.Equal(t, "kimi.ledger.query", QuerySubject("kimi.ledger"))
}

// Runs against a real server when KIMI_TEST_NATS_URL is set.
func TestNATSRoundTrip(t *testing.T) {
	url := os.Getenv("KIMI_TEST_NATS_URL")
	if url == "" {
		t.Skip("KIMI_TEST_NATS_URL not set")
	}
	ctx := context.Background()

	store, err := ledger.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	subject := "kimi.test." + t.Name()

	serverConn, err := Connect(url, "kimi-test-service", 2*time.Second)
	require.NoError(t, err)
	defer serverConn.Close()
	svc := NewService(serverConn, subject, store, time.Second)
	require.NoError(t, svc.Start())
	defer func() { _ = svc.Close() }()

	clientConn, err := Connect(url, "kimi-test-client", 2*time.Second)
	require.NoError(t, err)
	exec := NewNATSExecutor(clientConn, subject, 2*time.Second)
	defer func() { _ = exec.Close() }()

	r, err := exec.Execute(ctx, command.AddTransaction{UserID: "u1", Amount: decimal.NewFromInt(150), Category: "餐飲", IsExpense: true})
	require.NoError(t, err)
	assert.Equal(t, "已記錄支出：🍔 餐飲 $150", r.Message)

	tx, err := exec.Transaction(ctx, "u1", r.ID)
	require.NoError(t, err)
	assert.Equal(t, "餐飲", tx.Category)

	_, err = exec.Transaction(ctx, "u1", r.ID+100)
	assert.Equal(t, "找不到該筆交易", command.UserMessage(err))

	accounts, err := exec.Accounts(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}
