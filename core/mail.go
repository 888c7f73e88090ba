package core

import (
	"bytes"
	"log"
	"net/mail"
	"path/filepath"
	"strings"
	"sync"
	texttmpl "text/template"
)

var (
	emailTemplates map[string]*texttmpl.Template
	emailTmplInit  sync.Once
)

type (
	EmailMessage struct {
		To      []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
	}

	// ContextData is handed to email templates.
	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails.
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// Render resolves the message's TextContent from BodyStr or its template.
func (m *EmailMessage) Render(conf *Config) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	}
	if m.TemplateName == "" {
		return nil
	}

	emailTmplInit.Do(func() { parseEmailTemplates(conf) })

	tmpl, ok := emailTemplates[m.TemplateName]
	if !ok {
		return nil
	}
	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, ContextData{FrontendBaseURL: conf.FrontendBaseURL, Data: m.TemplateData}); err != nil {
		return err
	}
	m.TextContent = buff.String()
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return m.TextContent != "" }

func parseEmailTemplates(conf *Config) {
	emailTemplates = make(map[string]*texttmpl.Template)

	rp := filepath.Join(conf.WorkDir, "assets", "templates", "email")
	fps, err := filepath.Glob(filepath.Join(rp, "*.txt"))
	if err != nil {
		log.Printf("core.parseEmailTemplates: %v", err)
		return
	}
	for _, fp := range fps {
		fname := filepath.Base(fp)
		if strings.HasPrefix(fname, "_") {
			continue
		}
		tmpl, err := texttmpl.ParseFiles(fp)
		if err != nil {
			log.Printf("core.parseEmailTemplates: %v", err)
			continue
		}
		if conf.Debug || conf.TestMode {
			tmpl = tmpl.Option("missingkey=error")
		}
		emailTemplates[fname[:strings.LastIndex(fname, ".")]] = tmpl
	}
}
