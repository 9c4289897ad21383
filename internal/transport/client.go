package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Nell373/linebot-ai/internal/command"
	"github.com/Nell373/linebot-ai/internal/entity"
	kerrors "github.com/Nell373/linebot-ai/internal/errors"
	"github.com/nats-io/nats.go"
)

// Connect dials NATS with infinite reconnects.
func Connect(url, name string, timeout time.Duration) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(timeout),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	slog.Info("Connected to NATS", "component", "transport", "url", url)
	return conn, nil
}

// NATSExecutor sends commands and reads to a remote Service. It satisfies
// both dispatcher.Executor and dispatcher.Reader.
type NATSExecutor struct {
	conn    *nats.Conn
	subject string
	timeout time.Duration
	mapper  kerrors.ErrorMapper
}

func NewNATSExecutor(conn *nats.Conn, subject string, timeout time.Duration) *NATSExecutor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NATSExecutor{
		conn:    conn,
		subject: subject,
		timeout: timeout,
		mapper:  kerrors.NewDefaultErrorMapper(),
	}
}

func (e *NATSExecutor) request(ctx context.Context, subject string, data []byte) (Response, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	msg, err := e.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return Response{}, fmt.Errorf("request %s: %w", subject, e.mapper.MapError(err))
	}

	var resp Response
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return Response{}, kerrors.Internal(fmt.Sprintf("malformed ledger response: %v", err))
	}
	return resp, resp.Err()
}

func (e *NATSExecutor) Execute(ctx context.Context, cmd command.Command) (command.Receipt, error) {
	data, err := command.Marshal(cmd)
	if err != nil {
		return command.Receipt{}, fmt.Errorf("failed to marshal command: %w", err)
	}
	resp, err := e.request(ctx, ExecSubject(e.subject), data)
	if err != nil {
		return command.Receipt{}, err
	}
	if resp.Receipt == nil {
		return command.Receipt{}, kerrors.Internal("ledger response without receipt")
	}
	return *resp.Receipt, nil
}

func query[T any](ctx context.Context, e *NATSExecutor, q Query) (T, error) {
	var out T
	data, err := json.Marshal(q)
	if err != nil {
		return out, fmt.Errorf("failed to marshal query: %w", err)
	}
	resp, err := e.request(ctx, QuerySubject(e.subject), data)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(resp.Result, &out); err != nil {
		return out, kerrors.Internal(fmt.Sprintf("malformed %s result: %v", q.Op, err))
	}
	return out, nil
}

func (e *NATSExecutor) Categories(ctx context.Context, userID string, isExpense bool) ([]entity.Category, error) {
	return query[[]entity.Category](ctx, e, Query{Op: OpCategories, UserID: userID, IsExpense: isExpense})
}

func (e *NATSExecutor) Accounts(ctx context.Context, userID string) ([]entity.Account, error) {
	return query[[]entity.Account](ctx, e, Query{Op: OpAccounts, UserID: userID})
}

func (e *NATSExecutor) Transactions(ctx context.Context, userID string, from, to time.Time) ([]entity.Transaction, error) {
	return query[[]entity.Transaction](ctx, e, Query{Op: OpTransactions, UserID: userID, From: from, To: to})
}

func (e *NATSExecutor) Transaction(ctx context.Context, userID string, id int64) (entity.Transaction, error) {
	return query[entity.Transaction](ctx, e, Query{Op: OpTransaction, UserID: userID, ID: id})
}

func (e *NATSExecutor) Summary(ctx context.Context, userID string, from, to time.Time) (entity.Summary, error) {
	return query[entity.Summary](ctx, e, Query{Op: OpSummary, UserID: userID, From: from, To: to})
}

func (e *NATSExecutor) Tasks(ctx context.Context, userID string) ([]entity.Task, error) {
	return query[[]entity.Task](ctx, e, Query{Op: OpTasks, UserID: userID})
}

func (e *NATSExecutor) Notes(ctx context.Context, userID, tag string) ([]entity.Note, error) {
	return query[[]entity.Note](ctx, e, Query{Op: OpNotes, UserID: userID, Tag: tag})
}

func (e *NATSExecutor) Note(ctx context.Context, userID string, id int64) (entity.Note, error) {
	return query[entity.Note](ctx, e, Query{Op: OpNote, UserID: userID, ID: id})
}

// Close closes the connection. The executor owns it once constructed.
func (e *NATSExecutor) Close() error {
	if e.conn != nil {
		e.conn.Close()
	}
	return nil
}

// Ping reports whether the connection is currently up. NATS reconnects on
// its own, so a down connection is transient.
func (e *NATSExecutor) Ping(ctx context.Context) error {
	if e.conn == nil || !e.conn.IsConnected() {
		return kerrors.Transient("nats connection down")
	}
	return nil
}
