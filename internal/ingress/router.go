package ingress

import (
	"context"
	"strings"
	"sync"

	"github.com/google/shlex"
)

type DestinationType int

const (
	DestPipeline DestinationType = iota // Continue to Resolver -> Queue
	DestCommand                         // Handle as direct command
	DestDrop                            // Drop the event
)

type Destination struct {
	Type    DestinationType
	Handler func(context.Context, *Event) error // For DestCommand
}

// Router determines the destination of an event.
type Router interface {
	Route(ctx context.Context, event *Event) Destination
}

// Alias rewrites the arguments of a slash command into the event it stands
// for. ok=false leaves the event untouched.
type Alias func(args []string) (kind Kind, content string, ok bool)

type StandardRouter struct {
	commands map[string]func(context.Context, *Event) error
	aliases  map[string]Alias
	// aliasSources lists the sources whose text may be rewritten. Chat
	// platforms deliver what the user typed, which the dispatcher reads
	// as an answer to any open flow.
	aliasSources map[string]bool
	mu           sync.RWMutex
}

// NewStandardRouter registers the default slash aliases:
//
//	/expense 午餐 120 麥當勞   -> 午餐120 麥當勞
//	/income 薪資 5000          -> 薪資+5000
//	/remind 開會 明天 15:00    -> 提醒 開會 明天 15:00
//	/report 2024-5             -> 月報2024-5
//	/postback action=main_menu -> postback event
//
// Aliases apply to events from the cli and http sources only.
func NewStandardRouter() *StandardRouter {
	r := &StandardRouter{
		commands:     make(map[string]func(context.Context, *Event) error),
		aliases:      make(map[string]Alias),
		aliasSources: map[string]bool{"cli": true, "http": true},
	}
	r.RegisterAlias("/expense", amountAlias(""))
	r.RegisterAlias("/income", amountAlias("+"))
	r.RegisterAlias("/remind", func(args []string) (Kind, string, bool) {
		if len(args) == 0 {
			return "", "", false
		}
		return KindText, "提醒 " + strings.Join(args, " "), true
	})
	r.RegisterAlias("/report", func(args []string) (Kind, string, bool) {
		return KindText, "月報" + strings.Join(args, ""), true
	})
	r.RegisterAlias("/postback", func(args []string) (Kind, string, bool) {
		if len(args) != 1 {
			return "", "", false
		}
		return KindPostback, args[0], true
	})
	return r
}

// amountAlias joins "<category> <amount> [note...]" into the chat grammar.
func amountAlias(sep string) Alias {
	return func(args []string) (Kind, string, bool) {
		if len(args) < 2 {
			return "", "", false
		}
		content := args[0] + sep + args[1]
		if len(args) > 2 {
			content += " " + strings.Join(args[2:], " ")
		}
		return KindText, content, true
	}
}

func (r *StandardRouter) Route(ctx context.Context, event *Event) Destination {
	if strings.TrimSpace(event.Content) == "" {
		return Destination{Type: DestDrop}
	}
	if event.Kind != KindText || !strings.HasPrefix(event.Content, "/") {
		return Destination{Type: DestPipeline}
	}

	parts, err := shlex.Split(event.Content)
	if err != nil || len(parts) == 0 {
		return Destination{Type: DestPipeline}
	}

	cmd := strings.ToLower(parts[0])

	r.mu.RLock()
	handler, isCommand := r.commands[cmd]
	alias, isAlias := r.aliases[cmd]
	isAlias = isAlias && r.aliasSources[event.Source]
	r.mu.RUnlock()

	if isCommand {
		return Destination{
			Type:    DestCommand,
			Handler: handler,
		}
	}

	if isAlias {
		if kind, content, ok := alias(parts[1:]); ok {
			event.Kind = kind
			event.Content = content
		}
	}

	// Unknown slash commands such as /menu reach the dispatcher, which
	// strips the slash when matching keywords.
	return Destination{Type: DestPipeline}
}

func (r *StandardRouter) RegisterCommand(name string, handler func(context.Context, *Event) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[strings.ToLower(name)] = handler
}

func (r *StandardRouter) RegisterAlias(name string, alias Alias) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[strings.ToLower(name)] = alias
}
