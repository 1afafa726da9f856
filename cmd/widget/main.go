package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MegaGrindStone/chatbot-widget/internal/client"
	"github.com/MegaGrindStone/chatbot-widget/internal/tui"
	"github.com/MegaGrindStone/chatbot-widget/internal/widget"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type settings struct {
	url      string
	timeout  time.Duration
	lineMode bool
	verbose  bool

	position      string
	corners       string
	buttonCorners string
	opts          widget.Options
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	s := settings{opts: widget.DefaultOptions()}

	cmd := &cobra.Command{
		Use:          "chatbot-widget",
		Short:        "Chat with a chatbot server from the terminal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s.opts.Position = widget.Position(s.position)
			s.opts.RoundedCorners = widget.Corners(s.corners)
			s.opts.ButtonCorners = widget.Corners(s.buttonCorners)
			if err := s.opts.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, s)
		},
	}

	f := cmd.Flags()
	f.StringVar(&s.url, "url", "http://localhost:8080", "base URL of the chatbot server")
	f.DurationVar(&s.timeout, "timeout", 60*time.Second, "timeout of a single reply")
	f.BoolVar(&s.lineMode, "line", false, "use the line-oriented mode even on a terminal")
	f.BoolVarP(&s.verbose, "verbose", "v", false, "log debug messages to stderr")

	f.StringVar(&s.opts.InitialMessage, "greeting", s.opts.InitialMessage, "initial assistant message")
	f.StringVar(&s.opts.Title, "title", s.opts.Title, "widget title")
	f.StringVar(&s.opts.Description, "description", s.opts.Description, "widget description")
	f.StringVar(&s.opts.PlaceholderText, "placeholder", s.opts.PlaceholderText, "input placeholder")
	f.StringVar(&s.position, "position", string(s.opts.Position), "corner of the launcher: bottom-right, bottom-left, top-right or top-left")
	f.StringVar(&s.corners, "rounded-corners", string(s.opts.RoundedCorners), "panel corner style")
	f.StringVar(&s.buttonCorners, "button-rounded-corners", string(s.opts.ButtonCorners), "launcher corner style")
	f.BoolVar(&s.opts.ShowTimestamp, "show-timestamp", s.opts.ShowTimestamp, "show message timestamps")
	f.BoolVar(&s.opts.ShowAvatar, "show-avatar", s.opts.ShowAvatar, "show the assistant avatar")
	f.BoolVar(&s.opts.MobileFullScreen, "full-screen-narrow", s.opts.MobileFullScreen, "fill narrow terminals")
	f.BoolVar(&s.opts.Animated, "animated", s.opts.Animated, "animate scrolling")

	return cmd
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func run(ctx context.Context, s settings) error {
	logger := newLogger(s.verbose)

	s.opts.OnSendMessage = func(msg string) {
		logger.Debug().Int("length", len(msg)).Msg("Message sent")
	}
	s.opts.OnReceiveMessage = func(msg string) {
		logger.Debug().Int("length", len(msg)).Msg("Reply received")
	}

	c := client.New(s.url, &http.Client{Timeout: s.timeout})

	if s.lineMode || !isatty.IsTerminal(os.Stdout.Fd()) {
		return runLines(ctx, widget.NewSession(s.opts), c, os.Stdin, os.Stdout, logger)
	}

	session := widget.NewSession(s.opts, widget.WithScrollThreshold(tui.ScrollThreshold))
	session.Open()

	p := tea.NewProgram(
		tui.New(ctx, session, c),
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		logger.Error().Err(err).Msg("Terminal UI failed")
		return err
	}
	return nil
}
