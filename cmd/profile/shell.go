package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/planpage/server/internal/client/profile"
)

const helpText = `commands:
  view              show the page
  refresh           reload the subscription status
  select <plan>     choose a plan interval, e.g. "select yearly"
  change            submit the selected plan
  unsubscribe       cancel the subscription
  help              show this help
  quit              exit
`

// shell drives a profile.Controller from line-oriented input.
type shell struct {
	controller *profile.Controller
	in         *bufio.Scanner
	out        io.Writer

	mu       sync.Mutex
	leftPage string
}

func newShell(in io.Reader, out io.Writer) *shell {
	return &shell{in: bufio.NewScanner(in), out: out}
}

// Notify prints a toast.
func (s *shell) Notify(t profile.Toast) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "[%s] %s\n", t.Kind, t.Message)
}

// Navigate records that the page was left.
func (s *shell) Navigate(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leftPage = path
	fmt.Fprintf(s.out, "-> %s\n", path)
}

func (s *shell) navigatedAway() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leftPage != ""
}

// Run mounts the controller and processes commands until input ends, the
// user quits or the page navigates away.
func (s *shell) Run(ctx context.Context) error {
	defer s.controller.Unmount()

	// Fetch errors are part of the rendered view.
	_ = s.controller.Mount(ctx)
	s.print(s.controller.View().String())

	for !s.navigatedAway() {
		s.print("> ")
		if !s.in.Scan() {
			return s.in.Err()
		}
		fields := strings.Fields(s.in.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "view", "v":
			s.print(s.controller.View().String())
		case "refresh", "r":
			_ = s.controller.Refetch(ctx)
			s.print(s.controller.View().String())
		case "select", "s":
			if len(fields) < 2 {
				s.print("usage: select <plan>\n")
				continue
			}
			s.controller.SelectPlan(fields[1])
		case "change", "c":
			s.changePlan(ctx)
		case "unsubscribe", "u":
			if err := s.unsubscribe(ctx); err != nil {
				return err
			}
		case "help", "h", "?":
			s.print(helpText)
		case "quit", "q", "exit":
			return nil
		default:
			s.print(fmt.Sprintf("unknown command %q\n", fields[0]))
		}
	}
	return nil
}

func (s *shell) changePlan(ctx context.Context) {
	done, ok := s.controller.SubmitPlanChange(ctx)
	if !ok {
		s.print("select a plan first\n")
		return
	}
	s.print(s.controller.View().String())
	<-done
	s.print(s.controller.View().String())
}

func (s *shell) unsubscribe(ctx context.Context) error {
	confirmation := s.controller.RequestUnsubscribe()
	s.print(confirmation.Prompt + " [y/N] ")
	if !s.in.Scan() {
		s.controller.DeclineUnsubscribe(confirmation.Token)
		return s.in.Err()
	}

	switch strings.ToLower(strings.TrimSpace(s.in.Text())) {
	case "y", "yes":
		if _, err := s.controller.ConfirmUnsubscribe(ctx, confirmation.Token); err != nil {
			s.print(s.controller.View().String())
		}
	default:
		s.controller.DeclineUnsubscribe(confirmation.Token)
	}
	return nil
}

func (s *shell) print(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprint(s.out, text)
}
