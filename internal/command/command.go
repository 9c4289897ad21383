// Package command defines the finalized requests a conversation produces.
// Executors apply them; the conversation layer never reads back rows.
package command

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Nell373/linebot-ai/internal/tasktime"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindAddTransaction    Kind = "add_transaction"
	KindUpdateTransaction Kind = "update_transaction"
	KindDeleteTransaction Kind = "delete_transaction"
	KindCreateCategory    Kind = "create_category"
	KindCreateAccount     Kind = "create_account"
	KindCreateTask        Kind = "create_task"
	KindInitializeUser    Kind = "initialize_user"
	KindCompleteTask      Kind = "complete_task"
	KindSnoozeTask        Kind = "snooze_task"
	KindDeleteTask        Kind = "delete_task"
	KindTransfer          Kind = "transfer"
	KindCreateNote        Kind = "create_note"
	KindUpdateNote        Kind = "update_note"
	KindDeleteNote        Kind = "delete_note"
)

// Command is one of the types in this package.
type Command interface {
	Kind() Kind
	Owner() string
}

type AddTransaction struct {
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Category  string          `json:"category"`
	Account   string          `json:"account"`
	Note      *string         `json:"note,omitempty"`
	IsExpense bool            `json:"is_expense"`
}

// TransactionFields lists the columns an update touches. Nil fields are
// left as they are.
type TransactionFields struct {
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	CategoryID *int64           `json:"category_id,omitempty"`
	AccountID  *int64           `json:"account_id,omitempty"`
	Note       *string          `json:"note,omitempty"`
}

func (f TransactionFields) Empty() bool {
	return f.Amount == nil && f.CategoryID == nil && f.AccountID == nil && f.Note == nil
}

type UpdateTransaction struct {
	ID     int64             `json:"id"`
	UserID string            `json:"user_id"`
	Fields TransactionFields `json:"fields"`
}

type DeleteTransaction struct {
	ID     int64  `json:"id"`
	UserID string `json:"user_id"`
}

type CreateCategory struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	IsExpense bool   `json:"is_expense"`
}

type CreateAccount struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

type CreateTask struct {
	UserID  string          `json:"user_id"`
	Content string          `json:"content"`
	DueAt   *time.Time      `json:"due_at,omitempty"`
	Repeat  tasktime.Repeat `json:"repeat,omitempty"`
}

// InitializeUser creates the default categories and account.
type InitializeUser struct {
	UserID string `json:"user_id"`
}

type CompleteTask struct {
	UserID string `json:"user_id"`
	TaskID int64  `json:"task_id"`
}

type SnoozeTask struct {
	UserID string        `json:"user_id"`
	TaskID int64         `json:"task_id"`
	By     time.Duration `json:"by"`
}

type DeleteTask struct {
	UserID string `json:"user_id"`
	TaskID int64  `json:"task_id"`
}

// Transfer moves Amount from one account's balance to another's. It is
// not a transaction and does not show up in summaries.
type Transfer struct {
	UserID string          `json:"user_id"`
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note,omitempty"`
}

type CreateNote struct {
	UserID  string   `json:"user_id"`
	Title   string   `json:"title"`
	Content string   `json:"content,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// UpdateNote always sets the title. An empty Content keeps the old content
// and a nil Tags keeps the old tags.
type UpdateNote struct {
	UserID  string   `json:"user_id"`
	NoteID  int64    `json:"note_id"`
	Title   string   `json:"title"`
	Content string   `json:"content,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

type DeleteNote struct {
	UserID string `json:"user_id"`
	NoteID int64  `json:"note_id"`
}

func (AddTransaction) Kind() Kind    { return KindAddTransaction }
func (UpdateTransaction) Kind() Kind { return KindUpdateTransaction }
func (DeleteTransaction) Kind() Kind { return KindDeleteTransaction }
func (CreateCategory) Kind() Kind    { return KindCreateCategory }
func (CreateAccount) Kind() Kind     { return KindCreateAccount }
func (CreateTask) Kind() Kind        { return KindCreateTask }
func (InitializeUser) Kind() Kind    { return KindInitializeUser }
func (CompleteTask) Kind() Kind      { return KindCompleteTask }
func (SnoozeTask) Kind() Kind        { return KindSnoozeTask }
func (DeleteTask) Kind() Kind        { return KindDeleteTask }
func (Transfer) Kind() Kind          { return KindTransfer }
func (CreateNote) Kind() Kind        { return KindCreateNote }
func (UpdateNote) Kind() Kind        { return KindUpdateNote }
func (DeleteNote) Kind() Kind        { return KindDeleteNote }

func (c AddTransaction) Owner() string    { return c.UserID }
func (c UpdateTransaction) Owner() string { return c.UserID }
func (c DeleteTransaction) Owner() string { return c.UserID }
func (c CreateCategory) Owner() string    { return c.UserID }
func (c CreateAccount) Owner() string     { return c.UserID }
func (c CreateTask) Owner() string        { return c.UserID }
func (c InitializeUser) Owner() string    { return c.UserID }
func (c CompleteTask) Owner() string      { return c.UserID }
func (c SnoozeTask) Owner() string        { return c.UserID }
func (c DeleteTask) Owner() string        { return c.UserID }
func (c Transfer) Owner() string          { return c.UserID }
func (c CreateNote) Owner() string        { return c.UserID }
func (c UpdateNote) Owner() string        { return c.UserID }
func (c DeleteNote) Owner() string        { return c.UserID }

// Envelope is the wire form of a Command.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func Marshal(cmd Command) ([]byte, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Kind: cmd.Kind(), Payload: payload})
}

func Unmarshal(data []byte) (Command, error) {
	var env Envelope
	if jsonErr := json.Unmarshal(data, &env); jsonErr != nil {
		return nil, fmt.Errorf("failed to parse command envelope: %w", jsonErr)
	}

	var (
		cmd Command
		err error
	)
	switch env.Kind {
	case KindAddTransaction:
		cmd = decode[AddTransaction](env.Payload, &err)
	case KindUpdateTransaction:
		cmd = decode[UpdateTransaction](env.Payload, &err)
	case KindDeleteTransaction:
		cmd = decode[DeleteTransaction](env.Payload, &err)
	case KindCreateCategory:
		cmd = decode[CreateCategory](env.Payload, &err)
	case KindCreateAccount:
		cmd = decode[CreateAccount](env.Payload, &err)
	case KindCreateTask:
		cmd = decode[CreateTask](env.Payload, &err)
	case KindInitializeUser:
		cmd = decode[InitializeUser](env.Payload, &err)
	case KindCompleteTask:
		cmd = decode[CompleteTask](env.Payload, &err)
	case KindSnoozeTask:
		cmd = decode[SnoozeTask](env.Payload, &err)
	case KindDeleteTask:
		cmd = decode[DeleteTask](env.Payload, &err)
	case KindTransfer:
		cmd = decode[Transfer](env.Payload, &err)
	case KindCreateNote:
		cmd = decode[CreateNote](env.Payload, &err)
	case KindUpdateNote:
		cmd = decode[UpdateNote](env.Payload, &err)
	case KindDeleteNote:
		cmd = decode[DeleteNote](env.Payload, &err)
	default:
		return nil, fmt.Errorf("unknown command kind %q", env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s command: %w", env.Kind, err)
	}
	return cmd, nil
}

func decode[T Command](raw json.RawMessage, errOut *error) Command {
	var v T
	*errOut = json.Unmarshal(raw, &v)
	return v
}
