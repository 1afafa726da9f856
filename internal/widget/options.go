package widget

import "github.com/pkg/errors"

// Position is the screen corner the widget is anchored to.
type Position string

// Corners is a corner-rounding style applied to the panel or to the launcher button.
type Corners string

const (
	PositionBottomRight Position = "bottom-right"
	PositionBottomLeft  Position = "bottom-left"
	PositionTopRight    Position = "top-right"
	PositionTopLeft     Position = "top-left"

	CornersNone Corners = "rounded-none"
	CornersSM   Corners = "rounded-sm"
	CornersMD   Corners = "rounded-md"
	CornersLG   Corners = "rounded-lg"
	CornersXL   Corners = "rounded-xl"
	CornersFull Corners = "rounded-full"
)

// Options is the construction-time configuration of a widget. Every field has a default, see
// DefaultOptions. The callbacks are notification hooks: OnSendMessage receives the raw text of every
// accepted submission and OnReceiveMessage the final text of every sealed assistant message.
type Options struct {
	InitialMessage   string            `yaml:"initialMessage" json:"initialMessage"`
	Title            string            `yaml:"title" json:"title"`
	Description      string            `yaml:"description" json:"description"`
	DescriptionIcon  string            `yaml:"descriptionIcon" json:"descriptionIcon"`
	BotIcon          string            `yaml:"botIcon" json:"botIcon"`
	ChatIcon         string            `yaml:"chatIcon" json:"chatIcon"`
	PlaceholderText  string            `yaml:"placeholderText" json:"placeholderText"`
	Position         Position          `yaml:"position" json:"position"`
	Width            string            `yaml:"width" json:"width"`
	Height           string            `yaml:"height" json:"height"`
	MobileFullScreen bool              `yaml:"mobileFullScreen" json:"mobileFullScreen"`
	ShowTimestamp    bool              `yaml:"showTimestamp" json:"showTimestamp"`
	ShowAvatar       bool              `yaml:"showAvatar" json:"showAvatar"`
	RoundedCorners   Corners           `yaml:"roundedCorners" json:"roundedCorners"`
	ButtonCorners    Corners           `yaml:"buttonRoundedCorners" json:"buttonRoundedCorners"`
	Animated         bool              `yaml:"animated" json:"animated"`
	CustomStyles     map[string]string `yaml:"customStyles" json:"customStyles,omitempty"`

	OnSendMessage    func(message string) `yaml:"-" json:"-"`
	OnReceiveMessage func(message string) `yaml:"-" json:"-"`
}

// DefaultOptions returns the options of a widget nobody configured.
func DefaultOptions() Options {
	return Options{
		InitialMessage:   "👋 Hey there! I'm an AI Chatbot.\n\nFeel free to ask me anything!",
		Title:            "AI Chatbot",
		Description:      "By druid/ui",
		DescriptionIcon:  "sparkles",
		BotIcon:          "bot",
		ChatIcon:         "message-circle",
		PlaceholderText:  "Ask a question...",
		Position:         PositionBottomRight,
		Width:            "400px",
		Height:           "600px",
		MobileFullScreen: true,
		ShowTimestamp:    true,
		ShowAvatar:       true,
		RoundedCorners:   CornersMD,
		ButtonCorners:    CornersFull,
		Animated:         true,
	}
}

// Validate reports the first option holding a value outside its allowed set.
func (o Options) Validate() error {
	switch o.Position {
	case PositionBottomRight, PositionBottomLeft, PositionTopRight, PositionTopLeft:
	default:
		return errors.Errorf("invalid position %q", o.Position)
	}
	if !o.RoundedCorners.valid() {
		return errors.Errorf("invalid roundedCorners %q", o.RoundedCorners)
	}
	if !o.ButtonCorners.valid() {
		return errors.Errorf("invalid buttonRoundedCorners %q", o.ButtonCorners)
	}
	return nil
}

// PositionClass returns the placement utility classes of the launcher for the configured corner.
func (o Options) PositionClass() string {
	return map[Position]string{
		PositionBottomRight: "bottom-6 right-6",
		PositionBottomLeft:  "bottom-6 left-6",
		PositionTopRight:    "top-6 right-6",
		PositionTopLeft:     "top-6 left-6",
	}[o.Position]
}

func (c Corners) valid() bool {
	switch c {
	case CornersNone, CornersSM, CornersMD, CornersLG, CornersXL, CornersFull:
		return true
	}
	return false
}
