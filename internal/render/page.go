package render

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/getmentor/confluence-alert-action/internal/models"
	apperrors "github.com/getmentor/confluence-alert-action/pkg/errors"
	"github.com/getmentor/confluence-alert-action/pkg/logger"
	"go.uber.org/zap"
)

// Placeholder tokens recognised in the page template
const (
	TimestampToken = "{{TIMESTAMP}}"
	TableToken     = "{{TABLE_HTML}}"
)

// TimestampLayout is the format of the "last updated" stamp
const TimestampLayout = "2006-01-02 15:04:05"

// PageRenderer turns result tables into a page body
type PageRenderer interface {
	RenderTable(table models.Table) string
	RenderPage(timestamp, tableHTML string) (string, error)
}

// Renderer renders tables through an Escaper and merges them into the page
// template at templatePath
type Renderer struct {
	escaper      Escaper
	templatePath string
}

// NewRenderer creates a renderer. A nil escaper selects HTMLEscaper.
func NewRenderer(templatePath string, escaper Escaper) *Renderer {
	if escaper == nil {
		escaper = HTMLEscaper{}
	}
	return &Renderer{
		escaper:      escaper,
		templatePath: templatePath,
	}
}

// RenderPage substitutes the timestamp and table into the template. A missing
// template file selects the inline fallback; any other read failure is
// returned as ErrTemplateRead.
func (r *Renderer) RenderPage(timestamp, tableHTML string) (string, error) {
	data, err := os.ReadFile(r.templatePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("Page template not found, using inline template",
				zap.String("template_path", r.templatePath))
			return fallbackPage(timestamp, tableHTML), nil
		}
		return "", apperrors.TemplateReadError(r.templatePath, err)
	}

	return Substitute(string(data), timestamp, tableHTML), nil
}

// Substitute replaces every occurrence of both placeholder tokens. Absent
// tokens are left alone.
func Substitute(template, timestamp, tableHTML string) string {
	replacer := strings.NewReplacer(
		TimestampToken, timestamp,
		TableToken, tableHTML,
	)
	return replacer.Replace(template)
}

func fallbackPage(timestamp, tableHTML string) string {
	return fmt.Sprintf(`<h1 style="color:#0052cc;">Splunk Alert Results</h1>
<p><strong>Last updated:</strong> %s</p>
%s
`, timestamp, tableHTML)
}
