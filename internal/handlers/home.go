package handlers

import (
	"html/template"
	"net/http"
	"time"

	"github.com/MegaGrindStone/chatbot-widget/internal/widget"
)

const chatPath = "/api/chat"

type homePageData struct {
	Widget        widget.Options
	PositionClass string
	Greeting      messageView
	ChatPath      string
	MaxDuration   int
}

type messageView struct {
	ID         string
	Role       string
	HTML       template.HTML
	Time       string
	ShowAvatar bool
	BotIcon    string
}

// HandleHome renders the demo page hosting the browser widget. The page carries the widget options and
// the pre-rendered greeting; the chat itself runs client side against HandleChat.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	now := time.Now()
	data := homePageData{
		Widget:        m.widget,
		PositionClass: m.widget.PositionClass(),
		Greeting: messageView{
			ID:         widget.GreetingID,
			Role:       "assistant",
			HTML:       m.greeting,
			Time:       widget.FormatTimestamp(now, now),
			ShowAvatar: m.widget.ShowAvatar,
			BotIcon:    m.widget.BotIcon,
		},
		ChatPath:    chatPath,
		MaxDuration: int(m.maxDuration.Seconds()),
	}

	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		m.logger.Error().Err(err).Msg("Failed to render home page")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// HandleWidgetConfig serves the widget options as JSON for front ends that configure themselves from
// the server.
func (m Main) HandleWidgetConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, m.widget)
}
