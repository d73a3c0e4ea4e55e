// Package report renders the documents modules hand out as assets: vote
// protocols, meeting minutes and attendance reports.
package report

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/dkeye/opentalk/internal/assets"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/metrics"
)

//go:generate mockgen -source=report.go -destination=mock_generator.go -package=report

// Document is the input of a report. Sections are markdown.
type Document struct {
	Title    string
	Sections []Section
}

type Section struct {
	Heading  string
	Markdown string
}

// Generator turns a Document into a file. The content type and extension
// describe the produced bytes.
type Generator interface {
	Generate(ctx context.Context, doc Document) ([]byte, error)
	ContentType() string
	Extension() string
}

// HTMLGenerator renders standalone HTML pages with goldmark.
type HTMLGenerator struct {
	md goldmark.Markdown
}

var _ Generator = (*HTMLGenerator)(nil)

func NewHTMLGenerator() *HTMLGenerator {
	return &HTMLGenerator{md: goldmark.New(goldmark.WithExtensions(extension.Table))}
}

func (*HTMLGenerator) ContentType() string { return "text/html; charset=utf-8" }
func (*HTMLGenerator) Extension() string   { return "html" }

func (g *HTMLGenerator) Generate(ctx context.Context, doc Document) ([]byte, error) {
	var buf bytes.Buffer
	title := html.EscapeString(doc.Title)
	fmt.Fprintf(&buf, "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>%s</title></head><body>\n<h1>%s</h1>\n", title, title)
	for _, s := range doc.Sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.Heading != "" {
			fmt.Fprintf(&buf, "<h2>%s</h2>\n", html.EscapeString(s.Heading))
		}
		if err := g.md.Convert([]byte(s.Markdown), &buf); err != nil {
			return nil, fmt.Errorf("render section %q: %w", s.Heading, err)
		}
	}
	buf.WriteString("</body></html>\n")
	return buf.Bytes(), nil
}

// Table formats rows as a markdown table.
func Table(header []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString("| " + strings.Join(header, " | ") + " |\n|")
	for range header {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, r := range rows {
		cells := make([]string, len(r))
		for i, c := range r {
			cells[i] = strings.ReplaceAll(c, "|", "\\|")
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return b.String()
}

// Render generates doc and stores the result for room under name.
func Render(ctx context.Context, gen Generator, store assets.Store, room domain.RoomID, name string, doc Document) (assets.Meta, error) {
	data, err := gen.Generate(ctx, doc)
	if err != nil {
		metrics.ReportJobs.WithLabelValues("failed").Inc()
		return assets.Meta{}, fmt.Errorf("generate %s: %w", name, err)
	}
	meta, err := store.Put(ctx, room, name+"."+gen.Extension(), gen.ContentType(), data)
	if err != nil {
		metrics.ReportJobs.WithLabelValues("failed").Inc()
		return assets.Meta{}, fmt.Errorf("store %s: %w", name, err)
	}
	metrics.ReportJobs.WithLabelValues("ok").Inc()
	return meta, nil
}
