package core

import (
	"bytes"
	"fmt"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"

	appfs "github.com/trezcool/colegio/fs"
)

const emailTemplatesDir = "assets/templates/email"

var (
	templates   tmplCache
	tmplInit    sync.Once
	tmplInitErr error
)

type (
	tmplCacheEntry map[string]interface{}    // {ext: *Template}
	tmplCache      map[string]tmplCacheEntry // {name: {tmplCacheEntry}}

	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		AppName         string
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

func (m *EmailMessage) getContextData(conf *Config) ContextData {
	return ContextData{
		AppName:         conf.AppName,
		FrontendBaseURL: conf.FrontendBaseURL,
		Data:            m.TemplateData,
	}
}

func (m *EmailMessage) getTemplate(ext string) (interface{}, bool) {
	cache, ok := templates[m.TemplateName]
	if !ok {
		return nil, ok
	}
	tmplEntry, ok := cache[ext]
	return tmplEntry, ok
}

func (m *EmailMessage) renderText(conf *Config) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	} else if m.TemplateName == "" {
		return nil
	}

	tmplEntry, ok := m.getTemplate(".txt")
	if !ok {
		return nil
	}
	tmpl, ok := tmplEntry.(*texttmpl.Template)
	if !ok {
		return nil
	}

	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, m.getContextData(conf)); err != nil {
		return err
	}
	m.TextContent = buff.String()
	return nil
}

func (m *EmailMessage) renderHTML(conf *Config) error {
	if m.TemplateName == "" {
		return nil
	}

	tmplEntry, ok := m.getTemplate(".gohtml")
	if !ok {
		return nil
	}
	tmpl, ok := tmplEntry.(*htmltmpl.Template)
	if !ok {
		return nil
	}

	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, m.getContextData(conf)); err != nil {
		return err
	}
	m.HTMLContent = buff.String()
	return nil
}

// Render fills TextContent and HTMLContent from the message template, if any.
func (m *EmailMessage) Render(conf *Config) error {
	if m.TemplateName != "" {
		if err := loadTemplates(conf); err != nil {
			return err
		}
	}
	if err := m.renderText(conf); err != nil {
		return err
	}
	return m.renderHTML(conf)
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

// ParseEmailTemplates parses the embedded email templates once. Errors are logged.
func ParseEmailTemplates(conf *Config, logger Logger) {
	if err := loadTemplates(conf); err != nil {
		logger.Error(fmt.Sprintf("parsing email templates: %v", err), err)
	}
}

func loadTemplates(conf *Config) error {
	tmplInit.Do(func() {
		templates, tmplInitErr = parseTemplates(appfs.FS, conf.Debug || conf.TestMode)
	})
	return tmplInitErr
}

func parseTemplates(fsys fs.FS, strict bool) (tmplCache, error) {
	cache := make(tmplCache)

	entries, err := fs.ReadDir(fsys, emailTemplatesDir)
	if err != nil {
		return cache, errors.Wrap(err, "reading templates dir")
	}

	for _, de := range entries {
		fname := de.Name()
		ext := path.Ext(fname)
		if de.IsDir() || strings.HasPrefix(fname, "_") || !(ext == ".txt" || ext == ".gohtml") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)
		entry, ok := cache[name]
		if !ok {
			entry = make(tmplCacheEntry)
			cache[name] = entry
		}

		base := path.Join(emailTemplatesDir, "_base"+ext)
		fp := path.Join(emailTemplatesDir, fname)
		if ext == ".txt" {
			tmpl, err := texttmpl.ParseFS(fsys, base, fp)
			if err != nil {
				return cache, errors.Wrapf(err, "parsing %s", fname)
			}
			if strict {
				tmpl = tmpl.Option("missingkey=error")
			}
			entry[ext] = tmpl
		} else {
			tmpl, err := htmltmpl.ParseFS(fsys, base, fp)
			if err != nil {
				return cache, errors.Wrapf(err, "parsing %s", fname)
			}
			if strict {
				tmpl = tmpl.Option("missingkey=error")
			}
			entry[ext] = tmpl
		}
	}
	return cache, nil
}
