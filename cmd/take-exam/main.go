package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/proctor/client"
	"github.com/stemsi/exstem-proctor/internal/proctor/session"
	"github.com/stemsi/exstem-proctor/internal/proctor/timer"
	"golang.org/x/term"
)

// take-exam runs an attempt from a terminal against a local server. A
// terminal has no focus or clipboard events, so the attempt is unproctored;
// the countdown and the submission protocol are the real ones.
func main() {
	var (
		server string
		token  string
		examID string
		entry  string
	)
	flag.StringVar(&server, "server", "http://localhost:8080", "Exam server base URL")
	flag.StringVar(&token, "token", os.Getenv("EXSTEM_TOKEN"), "Student bearer token (see issue-token)")
	flag.StringVar(&examID, "exam", "", "Exam ID")
	flag.StringVar(&entry, "entry", "", "Entry token (prompted when omitted)")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if entry == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("Enter Entry Token: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			fmt.Println("Error reading entry token")
			os.Exit(1)
		}
		entry = strings.TrimSpace(string(raw))
	}

	id, err := uuid.Parse(examID)
	if err != nil || token == "" || entry == "" {
		flag.Usage()
		os.Exit(2)
	}

	api := client.New(server, token, client.WithLogger(log))
	ctrl := session.New(id, api, api,
		session.WithReporter(api),
		session.WithMaxViolations(cfg.MaxViolations),
		session.WithSubmitTimeout(cfg.SubmitTimeout),
		session.WithRetries(cfg.SubmitRetries),
		session.WithLogger(log),
	)
	defer ctrl.Close()

	outcomes := make(chan session.Outcome, 1)
	ctrl.OnOutcome(func(o session.Outcome) {
		select {
		case outcomes <- o:
		default:
		}
	})
	ctrl.OnTick(func(remaining time.Duration) {
		if b := timer.BandOf(remaining); b != timer.BandNormal && remaining%time.Minute == 0 {
			fmt.Printf("\n[%s] %s left\n", b, timer.Format(remaining))
		}
	})

	ctx := context.Background()
	if err := ctrl.Start(ctx, entry); err != nil {
		if errors.Is(err, session.ErrNoContent) {
			fmt.Println("This exam has no questions yet.")
			return
		}
		log.Fatal().Err(err).Msg("Failed to start exam")
	}

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	printHelp()
	show(ctrl)

	for {
		select {
		case o := <-outcomes:
			finish(ctx, ctrl, o, lines)
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if done := handle(ctx, ctrl, strings.TrimSpace(line)); done {
				finish(ctx, ctrl, <-outcomes, lines)
				return
			}
		}
	}
}

// handle applies one command and reports whether the attempt was submitted.
func handle(ctx context.Context, ctrl *session.Controller, cmd string) bool {
	a := ctrl.Attempt()
	switch {
	case cmd == "n":
		ctrl.Navigate(a.Current + 1)
	case cmd == "p":
		ctrl.Navigate(a.Current - 1)
	case cmd == "f":
		if _, err := ctrl.ToggleFlag(); err != nil {
			fmt.Println(err)
		}
	case cmd == "s":
		fmt.Printf("Submitting %d/%d answered...\n", ctrl.AnsweredCount(), a.Total)
		_, _ = ctrl.Submit(ctx, session.TriggerStudent)
		return true
	case strings.HasPrefix(cmd, "g "):
		n, err := strconv.Atoi(strings.TrimSpace(cmd[2:]))
		if err != nil {
			fmt.Println("usage: g <number>")
			return false
		}
		ctrl.Navigate(n - 1)
	case len(cmd) == 1 && cmd[0] >= 'a' && cmd[0] <= 'z':
		if err := ctrl.SelectOption(int(cmd[0] - 'a')); err != nil {
			fmt.Println(err)
		}
	default:
		printHelp()
		return false
	}
	show(ctrl)
	return false
}

func show(ctrl *session.Controller) {
	q, idx, err := ctrl.Question()
	if err != nil {
		return
	}
	a := ctrl.Attempt()
	marker := ""
	if a.Flagged[idx] {
		marker = " [flagged]"
	}
	fmt.Printf("\n(%d/%d)%s  %s left\n%s\n", idx+1, a.Total, marker, timer.Format(a.Remaining), q.QuestionText)
	for i, opt := range q.Options {
		mark := " "
		if sel, ok := a.Answers[idx]; ok && sel == i {
			mark = "*"
		}
		fmt.Printf(" %s %c) %s\n", mark, 'a'+i, opt)
	}
}

func finish(ctx context.Context, ctrl *session.Controller, o session.Outcome, lines <-chan string) {
	for !o.Confirmed() {
		fmt.Printf("Submission (%s) failed: %v\nPress Enter to retry.\n", o.Trigger, o.Err)
		if _, ok := <-lines; !ok {
			return
		}
		s, err := ctrl.Retry(ctx)
		o = session.Outcome{Trigger: o.Trigger, Summary: s, Err: err}
	}
	s := o.Summary
	fmt.Printf("\nSubmitted (%s). Score %d (%d/%d correct).\n", o.Trigger, s.Score, s.Correct, s.Total)
}

func printHelp() {
	fmt.Println("Commands: a-z select option, n next, p previous, g <n> go to, f flag, s submit")
}
