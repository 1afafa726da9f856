package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"html/template"
	"iter"
	"net/http"
	"time"

	chatbotwidget "github.com/MegaGrindStone/chatbot-widget"
	"github.com/MegaGrindStone/chatbot-widget/internal/models"
	"github.com/MegaGrindStone/chatbot-widget/internal/widget"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
)

// LLM represents a large language model interface that provides chat functionality. It accepts a context
// and a sequence of messages, returning an iterator that yields response chunks and potential errors.
type LLM interface {
	Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error]
}

// Pinger is a dependency whose health can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the settings of Main.
type Config struct {
	// MaxDuration is the processing budget of a chat request. Zero means DefaultMaxDuration.
	MaxDuration time.Duration
	// Widget is the configuration served to widget front ends.
	Widget widget.Options
	// HealthChecks are the dependencies reported by HandleHealth, by name.
	HealthChecks map[string]Pinger
}

// Main serves the chat endpoint and the widget pages. It holds the LLM used to answer conversations and
// the HTML templates of the widget demo page.
type Main struct {
	templates *template.Template

	llm          LLM
	maxDuration  time.Duration
	widget       widget.Options
	greeting     template.HTML
	healthChecks map[string]Pinger

	logger zerolog.Logger
}

// DefaultMaxDuration is the processing budget of a chat request after which the provider call is
// aborted.
const DefaultMaxDuration = 30 * time.Second

// NewMain creates a new Main instance with the provided LLM. It parses the HTML templates from the
// embedded filesystem and renders the configured greeting from Markdown.
func NewMain(llm LLM, cfg Config, logger zerolog.Logger) (Main, error) {
	if llm == nil {
		return Main{}, errors.New("llm is required")
	}
	if err := cfg.Widget.Validate(); err != nil {
		return Main{}, errors.Wrap(err, "invalid widget options")
	}

	// We parse templates from two distinct directories to separate pages and partial views
	tmpl, err := template.ParseFS(
		chatbotwidget.TemplateFS,
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, errors.Wrap(err, "failed to parse templates")
	}

	md := goldmark.New(goldmark.WithExtensions(highlighting.Highlighting))
	var greeting bytes.Buffer
	if err := md.Convert([]byte(cfg.Widget.InitialMessage), &greeting); err != nil {
		return Main{}, errors.Wrap(err, "failed to render greeting")
	}

	maxDuration := cfg.MaxDuration
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}

	return Main{
		templates:    tmpl,
		llm:          llm,
		maxDuration:  maxDuration,
		widget:       cfg.Widget,
		greeting:     template.HTML(greeting.String()),
		healthChecks: cfg.HealthChecks,
		logger:       logger.With().Str("module", "handlers").Logger(),
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
