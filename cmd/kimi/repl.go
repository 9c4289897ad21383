package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Nell373/linebot-ai/internal/adapter"
	"github.com/Nell373/linebot-ai/internal/dispatcher"
	"github.com/Nell373/linebot-ai/internal/ingress"
	"github.com/Nell373/linebot-ai/internal/worker"
)

const cliSource = "cli"

var errQuit = errors.New("quit")

// REPL drives the dispatcher from a terminal. A typed number presses the
// matching button of the last card; slash aliases work as in chat.
type REPL struct {
	handler  worker.Handler
	terminal *adapter.TerminalAdapter
	router   *ingress.StandardRouter
	reader   *bufio.Reader
	out      io.Writer
	user     string
}

func NewREPL(handler worker.Handler, in io.Reader, out io.Writer, user string) *REPL {
	r := &REPL{
		handler:  handler,
		terminal: adapter.NewTerminalAdapter(out),
		router:   ingress.NewStandardRouter(),
		reader:   bufio.NewReader(in),
		out:      out,
		user:     user,
	}
	quit := func(context.Context, *ingress.Event) error { return errQuit }
	r.router.RegisterCommand("/quit", quit)
	r.router.RegisterCommand("/exit", quit)
	return r
}

func (r *REPL) userID() string {
	return cliSource + ":" + r.user
}

func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintf(r.out, "Kimi chat as %s. Type 選單 for the menu, a number to press a button, /quit to leave.\n", r.user)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Fprint(r.out, "> ")
		line, err := r.reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				return nil
			}
			return err
		}

		if err := r.Turn(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
	}
}

// Turn handles one input line.
func (r *REPL) Turn(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var res dispatcher.Result
	if payload, ok := r.terminal.Press(r.user, line); ok {
		res = r.handler.HandlePostback(ctx, r.userID(), payload)
	} else {
		evt := ingress.NewEvent(cliSource, ingress.KindText, r.userID(), "", line, nil)
		dest := r.router.Route(ctx, &evt)
		switch dest.Type {
		case ingress.DestDrop:
			return nil
		case ingress.DestCommand:
			return dest.Handler(ctx, &evt)
		}
		if evt.Kind == ingress.KindPostback {
			res = r.handler.HandlePostback(ctx, r.userID(), evt.Content)
		} else {
			res = r.handler.HandleTextMessage(ctx, r.userID(), evt.Content)
		}
	}

	if res.Dropped || res.Reply == nil {
		return nil
	}
	return r.terminal.Send(ctx, adapter.Target{UserID: r.user}, res.Reply)
}
