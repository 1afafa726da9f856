package chatbotwidget

import "embed"

// TemplateFS contains the embedded HTML templates of the widget demo page, split into pages and
// partial views.
//
//go:embed templates/*
var TemplateFS embed.FS

// StaticFS contains the script and stylesheet of the browser widget.
//
//go:embed static/*
var StaticFS embed.FS
