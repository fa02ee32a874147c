package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"studyguide-quiz/internal/app"
	"studyguide-quiz/internal/auth"
	"studyguide-quiz/internal/config"
	"studyguide-quiz/internal/domain"
	"studyguide-quiz/internal/logging"
)

// NewPlayCmd runs a quiz in the terminal against the configured provider.
func NewPlayCmd(configPath *string) *cobra.Command {
	var (
		file  string
		user  string
		token string
		count int
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Take a quiz in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if errors.Is(err, fs.ErrNotExist) {
				cfg, err = config.Config{}, nil
			}
			if err != nil {
				return err
			}
			if cfg.Log.Level == "" {
				cfg.Log.Level = "warn"
			}
			log, err := logging.New(cfg.Log.Level, cfg.Log.File)
			if err != nil {
				return err
			}
			defer log.Sync()

			service, closeDeps, err := newService(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer closeDeps()

			creds, err := auth.NewVerifier(cfg.Auth.JWTSecret).Parse(token)
			if err != nil {
				if user == "" {
					return fmt.Errorf("token carries no subject and --user is empty: %w", err)
				}
				creds = auth.Credentials{Token: token, Subject: user}
			}
			return play(cmd.Context(), service, creds, file, count, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	defaultToken := os.Getenv("QUIZ_TOKEN")
	if defaultToken == "" {
		defaultToken = "local"
	}
	cmd.Flags().StringVar(&file, "file", "", "document to build the quiz from")
	cmd.Flags().StringVar(&user, "user", os.Getenv("USER"), "subject the attempt is recorded for when the token has none")
	cmd.Flags().StringVar(&token, "token", defaultToken, "bearer token for the quiz provider")
	cmd.Flags().IntVar(&count, "count", 0, "number of questions (0 uses the configured default)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

type player struct {
	service *app.QuizService
	creds   auth.Credentials
	in      *bufio.Scanner
	out     io.Writer
}

func play(ctx context.Context, service *app.QuizService, creds auth.Credentials, filename string, count int, in io.Reader, out io.Writer) error {
	p := &player{service: service, creds: creds, in: bufio.NewScanner(in), out: out}

	view, ok := p.load(ctx, "", filename, count)
	if !ok {
		return nil
	}
	defer func() {
		_ = service.Discard(context.Background(), creds, view.ID)
	}()

	for {
		p.render(view)
		line, ok := p.prompt()
		if !ok || line == "q" {
			return nil
		}

		var err error
		next := view
		switch line {
		case "n":
			next, err = service.Advance(ctx, creds, view.ID)
		case "p":
			next, err = service.Retreat(ctx, creds, view.ID)
		case "s":
			next, err = service.Finalize(ctx, creds, view.ID)
		case "r":
			reloaded, ok := p.load(ctx, view.ID, filename, count)
			if !ok {
				return nil
			}
			next = reloaded
		default:
			choice, convErr := strconv.Atoi(line)
			if convErr != nil || choice < 1 || choice > len(view.Current.Options) {
				fmt.Fprintln(p.out, "! unknown command")
				continue
			}
			next, err = service.Answer(ctx, creds, view.ID, view.Current.ID, view.Current.Options[choice-1])
		}
		if err != nil {
			fmt.Fprintf(p.out, "! %s\n", app.ErrorMessage(err))
			continue
		}
		view = next
	}
}

// load fetches a quiz, offering a retry while the failure is retryable.
// An empty id starts a new session, otherwise the session is regenerated.
func (p *player) load(ctx context.Context, id, filename string, count int) (app.SessionView, bool) {
	for {
		p.status(app.Pending[app.SessionView](), filename)

		var (
			view app.SessionView
			err  error
		)
		if id == "" {
			view, err = p.service.Start(ctx, p.creds, filename, count)
		} else {
			view, err = p.service.Regenerate(ctx, p.creds, id)
		}
		if err == nil {
			p.status(app.Succeeded(view), filename)
			return view, true
		}

		p.status(app.Failed[app.SessionView](err), filename)
		if !domain.IsRetryable(err) {
			return app.SessionView{}, false
		}
		fmt.Fprintln(p.out, "r) retry  q) quit")
		line, ok := p.prompt()
		if !ok || line != "r" {
			return app.SessionView{}, false
		}
	}
}

func (p *player) status(state app.RequestState[app.SessionView], filename string) {
	switch state.Status() {
	case app.StatusPending:
		fmt.Fprintf(p.out, "Generating quiz from %s...\n", filename)
	case app.StatusSucceeded:
		view, _ := state.Value()
		fmt.Fprintf(p.out, "Quiz ready: %d questions\n", view.Total)
	case app.StatusFailed:
		fmt.Fprintf(p.out, "Error: %s\n", app.ErrorMessage(state.Err()))
	}
}

func (p *player) render(view app.SessionView) {
	if view.State == domain.StateCompleted && view.Score != nil {
		fmt.Fprintf(p.out, "\nQuiz complete! Score: %d/%d (%.0f%%)\n", view.Score.Correct, view.Score.Total, view.Score.Percentage)
		for i, item := range view.Review {
			verdict := "correct"
			if !item.Correct {
				verdict = "wrong, answer: " + item.CorrectAnswer
			}
			fmt.Fprintf(p.out, "%d. %s\n   you chose %s (%s)\n", i+1, item.Prompt, item.Chosen, verdict)
		}
		fmt.Fprintln(p.out, "r) new quiz  q) quit")
		return
	}

	fmt.Fprintf(p.out, "\nQuestion %d/%d: %s\n", view.Cursor+1, view.Total, view.Current.Prompt)
	for i, opt := range view.Current.Options {
		marker := " "
		if opt == view.Selected {
			marker = "*"
		}
		fmt.Fprintf(p.out, " %s %d) %s\n", marker, i+1, opt)
	}

	commands := []string{fmt.Sprintf("1-%d) answer", len(view.Current.Options))}
	if view.CanRetreat {
		commands = append(commands, "p) previous")
	}
	if view.CanAdvance {
		commands = append(commands, "n) next")
	}
	if view.CanSubmit {
		commands = append(commands, "s) submit")
	}
	commands = append(commands, "r) new quiz", "q) quit")
	fmt.Fprintln(p.out, strings.Join(commands, "  "))
}

func (p *player) prompt() (string, bool) {
	fmt.Fprint(p.out, "> ")
	if !p.in.Scan() {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(p.in.Text())), true
}
