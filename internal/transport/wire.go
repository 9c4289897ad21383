// Package transport carries ledger commands and queries over NATS
// request/reply, so the dispatcher can run apart from the ledger.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Nell373/linebot-ai/internal/command"
	"github.com/Nell373/linebot-ai/internal/entity"
	kerrors "github.com/Nell373/linebot-ai/internal/errors"
)

// Ledger is what a Service answers for and what NATSExecutor stands in for.
type Ledger interface {
	Execute(ctx context.Context, cmd command.Command) (command.Receipt, error)
	Categories(ctx context.Context, userID string, isExpense bool) ([]entity.Category, error)
	Accounts(ctx context.Context, userID string) ([]entity.Account, error)
	Transactions(ctx context.Context, userID string, from, to time.Time) ([]entity.Transaction, error)
	Transaction(ctx context.Context, userID string, id int64) (entity.Transaction, error)
	Summary(ctx context.Context, userID string, from, to time.Time) (entity.Summary, error)
	Tasks(ctx context.Context, userID string) ([]entity.Task, error)
	Notes(ctx context.Context, userID, tag string) ([]entity.Note, error)
	Note(ctx context.Context, userID string, id int64) (entity.Note, error)
}

func ExecSubject(base string) string  { return base + ".exec" }
func QuerySubject(base string) string { return base + ".query" }

type Status string

const (
	StatusOK       Status = "ok"
	StatusRejected Status = "rejected"
	StatusError    Status = "error"
)

const (
	ErrorParse  = "parse_error"
	ErrorFailed = "failed"
)

type Response struct {
	Status       Status           `json:"status"`
	Receipt      *command.Receipt `json:"receipt,omitempty"`
	Result       json.RawMessage  `json:"result,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	ErrorCode    string           `json:"error_code,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// failure turns a handler error into a response. Rejection reasons travel
// as is so the caller can show them.
func failure(code string, err error) Response {
	var rej *command.Rejection
	if errors.As(err, &rej) {
		return Response{Status: StatusRejected, Reason: rej.Reason}
	}
	return Response{Status: StatusError, ErrorCode: code, ErrorMessage: err.Error()}
}

// Err is the error a response stands for, or nil when it succeeded.
func (r Response) Err() error {
	switch r.Status {
	case StatusOK:
		return nil
	case StatusRejected:
		return command.Reject(r.Reason)
	case StatusError:
		return kerrors.Internal(fmt.Sprintf("ledger %s: %s", r.ErrorCode, r.ErrorMessage))
	default:
		return kerrors.Internal(fmt.Sprintf("unknown response status %q", r.Status))
	}
}

type QueryOp string

const (
	OpCategories   QueryOp = "categories"
	OpAccounts     QueryOp = "accounts"
	OpTransactions QueryOp = "transactions"
	OpTransaction  QueryOp = "transaction"
	OpSummary      QueryOp = "summary"
	OpTasks        QueryOp = "tasks"
	OpNotes        QueryOp = "notes"
	OpNote         QueryOp = "note"
)

type Query struct {
	Op        QueryOp   `json:"op"`
	UserID    string    `json:"user_id"`
	IsExpense bool      `json:"is_expense,omitempty"`
	From      time.Time `json:"from,omitempty"`
	To        time.Time `json:"to,omitempty"`
	ID        int64     `json:"id,omitempty"`
	Tag       string    `json:"tag,omitempty"`
}

// Answer runs q against l and returns the JSON result.
func Answer(ctx context.Context, l Ledger, q Query) (any, error) {
	switch q.Op {
	case OpCategories:
		return l.Categories(ctx, q.UserID, q.IsExpense)
	case OpAccounts:
		return l.Accounts(ctx, q.UserID)
	case OpTransactions:
		return l.Transactions(ctx, q.UserID, q.From, q.To)
	case OpTransaction:
		return l.Transaction(ctx, q.UserID, q.ID)
	case OpSummary:
		return l.Summary(ctx, q.UserID, q.From, q.To)
	case OpTasks:
		return l.Tasks(ctx, q.UserID)
	case OpNotes:
		return l.Notes(ctx, q.UserID, q.Tag)
	case OpNote:
		return l.Note(ctx, q.UserID, q.ID)
	default:
		return nil, kerrors.InvalidInput(fmt.Sprintf("unknown query %q", q.Op))
	}
}
