package notification

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/Masterminds/sprig/v3"
)

// テンプレート名。アウトボックスのkindにもそのまま使う。
const (
	TemplateListingAlert     = "listing_alert"
	TemplateListingPublished = "listing_published"
	TemplateListingSubmitted = "listing_submitted"
	TemplateListingRejected  = "listing_rejected"
	TemplateListingResolved  = "listing_resolved"
	TemplateReportFiled      = "report_filed"
	TemplateContactRequest   = "contact_request"
	TemplateDirectMessage    = "direct_message"
)

var templateNames = []string{
	TemplateListingAlert,
	TemplateListingPublished,
	TemplateListingSubmitted,
	TemplateListingRejected,
	TemplateListingResolved,
	TemplateReportFiled,
	TemplateContactRequest,
	TemplateDirectMessage,
}

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// MailData はメールテンプレートに渡す値。使わないフィールドは空のままでよい。
type MailData struct {
	SiteURL      string
	ListingURL   string
	ListingTitle string
	// Category と Kind は表示名。
	Category string
	Kind     string
	// Country は国名。
	Country     string
	City        string
	EventDate   string
	Reason      string
	Details     string
	SenderName  string
	SenderEmail string
	SenderPhone string
	Title       string
	Message     string
}

// Rendered は描画済みのメール。
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// htmlPage はHTMLレイアウトに渡す値。
type htmlPage struct {
	MailData
	Subject string
}

// Renderer は埋め込みテンプレートからメールを描画する。
type Renderer struct {
	html map[string]*htmltemplate.Template
	text map[string]*texttemplate.Template
}

// NewRenderer は全テンプレートを読み込む。テンプレートが壊れている場合はエラーを返す。
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		html: make(map[string]*htmltemplate.Template, len(templateNames)),
		text: make(map[string]*texttemplate.Template, len(templateNames)),
	}
	for _, name := range templateNames {
		h, err := htmltemplate.New(name).
			Funcs(sprig.HtmlFuncMap()).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("HTMLテンプレート %s の読み込みに失敗: %w", name, err)
		}
		t, err := texttemplate.New(name).
			Funcs(sprig.TxtFuncMap()).
			ParseFS(templateFS, "templates/"+name+".txt")
		if err != nil {
			return nil, fmt.Errorf("テキストテンプレート %s の読み込みに失敗: %w", name, err)
		}
		r.html[name] = h
		r.text[name] = t
	}
	return r, nil
}

// Render は指定したテンプレートで件名・HTML本文・テキスト本文を描画する。
func (r *Renderer) Render(name string, data MailData) (Rendered, error) {
	h, ok := r.html[name]
	if !ok {
		return Rendered{}, fmt.Errorf("未知のテンプレート: %s", name)
	}
	t := r.text[name]

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "subject", data); err != nil {
		return Rendered{}, fmt.Errorf("件名の描画に失敗: %w", err)
	}
	// 件名は1行にまとめる
	subject := strings.Join(strings.Fields(buf.String()), " ")

	buf.Reset()
	if err := t.ExecuteTemplate(&buf, "body", data); err != nil {
		return Rendered{}, fmt.Errorf("テキスト本文の描画に失敗: %w", err)
	}
	text := strings.TrimSpace(buf.String()) + "\n"

	buf.Reset()
	if err := h.ExecuteTemplate(&buf, "layout", htmlPage{MailData: data, Subject: subject}); err != nil {
		return Rendered{}, fmt.Errorf("HTML本文の描画に失敗: %w", err)
	}

	return Rendered{Subject: subject, HTML: buf.String(), Text: text}, nil
}
