package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/designftw/graffiti-chat/internal/platform/logging"
	"github.com/designftw/graffiti-chat/internal/services/chat/app"
	"github.com/designftw/graffiti-chat/internal/services/chat/gateway"
	"github.com/designftw/graffiti-chat/internal/services/chat/object"
	"github.com/designftw/graffiti-chat/internal/services/chat/profile"
	"github.com/designftw/graffiti-chat/internal/services/shared/username"
)

// errQuit ends the shell loop.
var errQuit = errors.New("quit")

// ShellConfig wires a Shell.
type ShellConfig struct {
	Self     string
	Stream   gateway.ObjectStream
	Resolver gateway.IdentityResolver
	Claimer  gateway.NameClaimer
	Locale   string
	Logger   *slog.Logger
	Out      io.Writer
}

// Shell drives the chat view-model from text commands and prints the
// resulting screen after each one.
type Shell struct {
	self    string
	stream  gateway.ObjectStream
	logger  *slog.Logger
	view    *app.View
	profile *profile.Projection

	outMu sync.Mutex
	out   io.Writer
}

// NewShell builds a Shell. Call Start before Exec.
func NewShell(cfg ShellConfig) *Shell {
	logger := logging.OrDiscard(cfg.Logger)
	out := cfg.Out
	if out == nil {
		out = io.Discard
	}
	return &Shell{
		self:   cfg.Self,
		stream: cfg.Stream,
		logger: logger,
		out:    out,
		view: app.New(app.Config{
			Self:     cfg.Self,
			Stream:   cfg.Stream,
			Resolver: cfg.Resolver,
			Claimer:  cfg.Claimer,
			Locale:   cfg.Locale,
			Logger:   logger,
		}),
		profile: profile.New(profile.Config{
			Self:   cfg.Self,
			Actor:  cfg.Self,
			Stream: cfg.Stream,
			Logger: logger,
		}),
	}
}

// Start opens the default channel and the local profile.
func (s *Shell) Start(ctx context.Context) error {
	if err := s.view.Start(ctx); err != nil {
		return fmt.Errorf("start chat: %w", err)
	}
	if err := s.profile.Start(ctx); err != nil {
		return fmt.Errorf("start profile: %w", err)
	}
	return nil
}

// Close releases the subscriptions.
func (s *Shell) Close() error {
	return errors.Join(s.profile.Close(), s.view.Close())
}

// View exposes the underlying view-model.
func (s *Shell) View() *app.View { return s.view }

// Loop executes one command per input line until EOF, /quit or ctx ends.
func (s *Shell) Loop(ctx context.Context, in io.Reader) error {
	s.printf("chatting as %s (%s). /help lists commands.\n", s.profile.DisplayName(), s.self)
	s.render()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case line := <-lines:
			if err := s.Exec(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				s.printf("! %s\n", s.view.Describe(err))
			}
			s.render()
		}
	}
}

// Exec runs one command line. Plain text is sent as a message.
func (s *Shell) Exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return s.view.Send(ctx, line)
	}

	command, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch command {
	case "help":
		s.printf("%s", helpText)
		return nil
	case "quit", "exit":
		return errQuit
	case "channel":
		return s.view.SetChannel(ctx, arg)
	case "private":
		return s.view.SetPrivate(ctx, true)
	case "public":
		return s.view.SetPrivate(ctx, false)
	case "search":
		s.view.SetSearchPrefix(arg)
		return nil
	case "to":
		result, err := s.view.SearchForActor(ctx, arg).Wait(ctx)
		if err != nil {
			return err
		}
		s.printf("%s\n", result.Message)
		return nil
	case "claim":
		result, err := s.view.ClaimUsername(ctx, arg).Wait(ctx)
		if err != nil {
			return err
		}
		s.printf("%s\n", result.Message)
		return nil
	case "edit":
		position, text, _ := strings.Cut(arg, " ")
		note, err := s.message(position)
		if err != nil {
			return err
		}
		s.view.BeginEdit(note)
		return s.view.CommitEdit(ctx, note, text)
	case "rm":
		note, err := s.message(arg)
		if err != nil {
			return err
		}
		return s.view.Remove(ctx, note)
	case "read":
		return s.view.MarkAllRead(ctx).Err
	case "name":
		return s.profile.SetName(ctx, arg)
	case "whois":
		return s.whois(ctx, arg)
	default:
		return fmt.Errorf("unknown command /%s", command)
	}
}

// message returns the note shown at the 1-based position.
func (s *Shell) message(position string) (object.Note, error) {
	n, err := strconv.Atoi(strings.TrimSpace(position))
	messages := s.view.Snapshot().Messages
	if err != nil || n < 1 || n > len(messages) {
		return object.Note{}, fmt.Errorf("no message %q", position)
	}
	return messages[n-1], nil
}

func (s *Shell) whois(ctx context.Context, actor string) error {
	if actor == "" {
		return errors.New("actor is required")
	}
	p := profile.New(profile.Config{Self: s.self, Actor: actor, Stream: s.stream, Logger: s.logger})
	if err := p.Start(ctx); err != nil {
		return err
	}
	defer p.Close()
	snapshot := p.Snapshot()
	s.printf("%s is %s (@%s)\n", actor, snapshot.DisplayName, snapshot.Username)
	return nil
}

func (s *Shell) render() {
	snapshot := s.view.Snapshot()
	var b strings.Builder
	if snapshot.Private {
		recipient := snapshot.Recipient
		if recipient == "" {
			recipient = "(no recipient, use /to)"
		}
		fmt.Fprintf(&b, "== private with %s ==\n", recipient)
	} else {
		fmt.Fprintf(&b, "== #%s ==\n", snapshot.Channel)
	}
	for i, note := range snapshot.Messages {
		marker := " "
		if !note.Read {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s[%d] %s: %s\n", marker, i+1, username.FromActor(note.Actor), note.Content)
	}
	if snapshot.Unread {
		b.WriteString("(unread messages, /read to clear)\n")
	}
	if snapshot.Edit.Active() {
		fmt.Fprintf(&b, "(editing %s)\n", snapshot.Edit.ID)
	}
	if snapshot.SearchPrefix != "" {
		fmt.Fprintf(&b, "matches: %s\n", strings.Join(snapshot.FilteredUsernames, ", "))
	}
	if snapshot.SearchMessage != "" {
		fmt.Fprintf(&b, "search: %s\n", snapshot.SearchMessage)
	}
	if snapshot.ClaimMessage != "" {
		fmt.Fprintf(&b, "claim: %s\n", snapshot.ClaimMessage)
	}
	s.printf("%s", b.String())
}

func (s *Shell) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if _, err := fmt.Fprintf(s.out, format, args...); err != nil {
		s.logger.Debug("write shell output", "error", err)
	}
}

const helpText = `commands:
  <text>              send a message
  /channel <name>     switch channel
  /private, /public   toggle private messaging
  /search <prefix>    filter known usernames
  /to <username>      set the private recipient
  /claim <username>   claim a username
  /edit <n> <text>    edit message n
  /rm <n>             remove message n
  /read               mark all messages read
  /name <name>        set your display name
  /whois <actor>      show an actor's profile
  /quit
`
