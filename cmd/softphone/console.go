package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/arzzra/web_phone/pkg/phone"
	"github.com/arzzra/web_phone/pkg/signal"
)

// controller операции менеджера, доступные из консоли
type controller interface {
	StartCall(number string) error
	EndCall()
	AnswerCall() error
	RejectCall() error
	ClearHistory()
	State() phone.State
}

var _ controller = (*phone.Manager)(nil)

const helpText = `commands:
  call <number>   start outgoing call
  dial <number>   request call through the start-call signal
  hangup          end current call
  answer          answer incoming call
  reject          reject incoming call
  status          show phone state
  history         show call history
  clear           clear call history
  quit            exit`

// console построчно выполняет команды из r до quit, EOF или отмены ctx
type console struct {
	phone controller
	hub   *signal.Hub
	out   io.Writer
}

func (c *console) run(ctx context.Context, r io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line := <-lines:
			if quit := c.exec(line); quit {
				return nil
			}
		}
	}
}

// exec выполняет одну команду. Возвращает true для quit.
func (c *console) exec(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	arg := ""
	if len(fields) > 1 {
		arg = strings.Join(fields[1:], " ")
	}

	switch strings.ToLower(fields[0]) {
	case "call":
		if err := c.phone.StartCall(arg); err != nil {
			c.printf("call refused: %v\n", err)
		}
	case "dial":
		if n := c.hub.RequestStartCall(arg); n == 0 {
			c.printf("nobody is listening for start-call\n")
		}
	case "hangup":
		c.phone.EndCall()
	case "answer":
		if err := c.phone.AnswerCall(); err != nil {
			c.printf("answer: %v\n", err)
		}
	case "reject":
		if err := c.phone.RejectCall(); err != nil {
			c.printf("reject: %v\n", err)
		}
	case "status":
		st := c.phone.State()
		c.printf("status=%s connection=%s ready=%t number=%q duration=%ds\n",
			st.Status, st.ConnectionStatus, st.IsReady, st.CallNumber, st.CurrentCallDuration)
	case "history":
		entries := c.phone.State().CallHistory
		if len(entries) == 0 {
			c.printf("history is empty\n")
		}
		for _, e := range entries {
			c.printf("%s  %-16s %-9s %3ds\n",
				time.UnixMilli(e.Timestamp).Format(time.DateTime), e.Number, e.Status, e.Duration)
		}
	case "clear":
		c.phone.ClearHistory()
	case "help", "?":
		c.printf("%s\n", helpText)
	case "quit", "exit":
		return true
	default:
		c.printf("unknown command %q, type help\n", fields[0])
	}
	return false
}

func (c *console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}
