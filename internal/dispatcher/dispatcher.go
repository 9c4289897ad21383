// Package dispatcher turns one inbound chat event into a reply and, at the
// end of a flow, a command.
//
// Each user is at most one step into a flow (see package conversation).
// Text either answers the open question of that step or, when the user is
// idle, is treated as a keyword or a grammar intent. Button callbacks are
// filtered by the dedup guard and routed through a table keyed by
// postback.Action.
package dispatcher

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"github.com/Nell373/linebot-ai/internal/command"
	"github.com/Nell373/linebot-ai/internal/conversation"
	"github.com/Nell373/linebot-ai/internal/entity"
	"github.com/Nell373/linebot-ai/internal/logger"
	"github.com/Nell373/linebot-ai/internal/postback"
	"github.com/Nell373/linebot-ai/internal/reply"
)

// Executor applies a finalized command.
type Executor interface {
	Execute(ctx context.Context, cmd command.Command) (command.Receipt, error)
}

// Reader serves the read-only views shown in cards.
type Reader interface {
	Categories(ctx context.Context, userID string, isExpense bool) ([]entity.Category, error)
	Accounts(ctx context.Context, userID string) ([]entity.Account, error)
	Transactions(ctx context.Context, userID string, from, to time.Time) ([]entity.Transaction, error)
	Transaction(ctx context.Context, userID string, id int64) (entity.Transaction, error)
	Summary(ctx context.Context, userID string, from, to time.Time) (entity.Summary, error)
	Tasks(ctx context.Context, userID string) ([]entity.Task, error)
	Notes(ctx context.Context, userID, tag string) ([]entity.Note, error)
	Note(ctx context.Context, userID string, id int64) (entity.Note, error)
}

// Deduper is satisfied by *idempotency.Guard.
type Deduper interface {
	ShouldProcess(userID, payload string) bool
}

// Result is the outcome of one turn. Dropped turns carry nothing else.
type Result struct {
	Reply   *reply.Reply
	Command command.Command
	Dropped bool
}

const (
	msgUnknownAction  = "無法識別的操作"
	msgInvalidPayload = "操作資料不完整，請重新開始。"
	msgCancelled      = "已取消操作"
)

// SnoozeDuration is how far task_snooze pushes a reminder.
const SnoozeDuration = 30 * time.Minute

type Dispatcher struct {
	store    conversation.Store
	guard    Deduper
	executor Executor
	reader   Reader

	now      func() time.Time
	loc      *time.Location
	none     map[string]bool
	handlers map[postback.Action]postbackHandler
}

type Option func(*Dispatcher)

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithLocation sets the zone used for day, week and month boundaries.
func WithLocation(loc *time.Location) Option {
	return func(d *Dispatcher) {
		if loc != nil {
			d.loc = loc
		}
	}
}

// WithNoneSentinels replaces the answers that mean "no note".
func WithNoneSentinels(words []string) Option {
	return func(d *Dispatcher) {
		if len(words) == 0 {
			return
		}
		d.none = make(map[string]bool, len(words))
		for _, w := range words {
			d.none[strings.ToLower(strings.TrimSpace(w))] = true
		}
	}
}

func New(store conversation.Store, guard Deduper, executor Executor, reader Reader, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		guard:    guard,
		executor: executor,
		reader:   reader,
		now:      time.Now,
		loc:      time.Local,
		none:     map[string]bool{"無": true},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.handlers = d.postbackTable()
	return d
}

// HandleTextMessage processes one free-text message from userID.
func (d *Dispatcher) HandleTextMessage(ctx context.Context, userID, text string) (res Result) {
	ctx = logger.WithUserID(ctx, userID)
	defer d.recoverTurn(ctx, &res)

	text = strings.TrimSpace(text)

	st, ok, err := d.store.Get(ctx, userID)
	if err != nil {
		logger.From(ctx).Error("Failed to load conversation state", "error", err)
		return Result{Reply: reply.Text(command.GenericFailure)}
	}

	if isCancel(text) {
		return d.cancel(ctx, userID)
	}

	if ok && !conversation.IsIdle(st) {
		return d.answer(ctx, userID, st, text)
	}

	if res, handled := d.keyword(ctx, userID, text); handled {
		return res
	}

	return d.intent(ctx, userID, text)
}

// HandlePostback processes one button callback. Repeats of the same
// payload inside the dedup window are dropped without touching state.
func (d *Dispatcher) HandlePostback(ctx context.Context, userID, payload string) (res Result) {
	ctx = logger.WithUserID(ctx, userID)
	defer d.recoverTurn(ctx, &res)

	if !d.guard.ShouldProcess(userID, payload) {
		logger.From(ctx).Debug("Duplicate postback dropped", "payload", payload)
		return Result{Dropped: true}
	}

	p := postback.Parse(payload)
	logger.From(ctx).Debug("Postback received", "action", p.Action.String())

	h, ok := d.handlers[p.Action]
	if !ok {
		h = d.unknownAction
	}
	return h(ctx, userID, p)
}

func (d *Dispatcher) recoverTurn(ctx context.Context, res *Result) {
	if r := recover(); r != nil {
		logger.From(ctx).Error("Panic recovered in turn", "panic", r, "stack", string(debug.Stack()))
		*res = Result{Reply: reply.Text(command.GenericFailure)}
	}
}

// execute runs cmd and returns the text to show. ok is false when the
// executor failed.
func (d *Dispatcher) execute(ctx context.Context, cmd command.Command) (command.Receipt, string, bool) {
	receipt, err := d.executor.Execute(ctx, cmd)
	if err != nil {
		msg := command.UserMessage(err)
		if msg == command.GenericFailure {
			logger.From(ctx).Error("Command failed", "kind", cmd.Kind(), "error", err)
		} else {
			logger.From(ctx).Info("Command rejected", "kind", cmd.Kind(), "reason", msg)
		}
		return command.Receipt{}, msg, false
	}
	logger.From(ctx).Info("Command executed", "kind", cmd.Kind(), "id", receipt.ID)
	return receipt, receipt.Message, true
}

// finish ends the flow: state is cleared whether or not cmd succeeds.
func (d *Dispatcher) finish(ctx context.Context, userID string, cmd command.Command) Result {
	d.clear(ctx, userID)
	_, msg, _ := d.execute(ctx, cmd)
	return Result{Reply: reply.Text(msg), Command: cmd}
}

func (d *Dispatcher) put(ctx context.Context, userID string, st conversation.State) error {
	if err := d.store.Put(ctx, userID, st); err != nil {
		logger.From(ctx).Error("Failed to save conversation state", "error", err)
		return err
	}
	return nil
}

func (d *Dispatcher) clear(ctx context.Context, userID string) {
	if err := d.store.Clear(ctx, userID); err != nil {
		logger.From(ctx).Warn("Failed to clear conversation state", "error", err)
	}
}

// advance stores st and replies with r.
func (d *Dispatcher) advance(ctx context.Context, userID string, st conversation.State, r *reply.Reply) Result {
	if err := d.put(ctx, userID, st); err != nil {
		return Result{Reply: reply.Text(command.GenericFailure)}
	}
	return Result{Reply: r}
}

func (d *Dispatcher) cancel(ctx context.Context, userID string) Result {
	d.clear(ctx, userID)
	return Result{Reply: reply.Text(msgCancelled)}
}

func (d *Dispatcher) isNone(note string) bool {
	return d.none[strings.ToLower(strings.TrimSpace(note))]
}

// noteOf maps an answer to an optional note.
func (d *Dispatcher) noteOf(text string) *string {
	text = strings.TrimSpace(text)
	if text == "" || d.isNone(text) {
		return nil
	}
	return &text
}

func (d *Dispatcher) clock() time.Time {
	return d.now().In(d.loc)
}

func (d *Dispatcher) readFailed(ctx context.Context, what string, err error) Result {
	logger.From(ctx).Error("Failed to read "+what, "error", err)
	return Result{Reply: reply.Text(command.GenericFailure)}
}
