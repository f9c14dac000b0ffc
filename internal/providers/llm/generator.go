package llm

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"auditflow/internal/domain"
	"auditflow/internal/util"
)

//go:embed template.html
var templateHTML string

//go:embed report.css
var reportCSS string

const systemPrompt = `Você é um consultor de marketing digital especializado em Instagram.
A partir das respostas do diagnóstico, escreva o corpo de um relatório de auditoria de perfil em HTML.
Responda somente com HTML (seções, títulos, parágrafos e listas), sem tags <html>, <head> ou <body> e sem blocos de código.`

// questionOrder fixes the sequence answers appear in the prompt. Map
// iteration order would shuffle them between runs.
var questionOrder = []string{
	"name", "email", "instagram",
	"nicho", "objetivo", "publico", "oque_vende", "ticket_medio",
	"clientes_mes", "total_seguidores", "postagens_semana", "formato_conteudo",
	"media_reels", "taxa_conversao", "crescimento_redes", "tempo_insta",
	"meta_seguidores", "meta_faturamento_mensal", "faturamento_medio_atual",
}

// Generator produces the full printable report document for a set of survey
// answers: one completion for the analysis body, wrapped in the page template.
type Generator struct {
	Client *Client
}

func (g *Generator) ReportHTML(ctx context.Context, ans domain.Answers, now time.Time) (string, error) {
	body, err := g.Client.Complete(ctx, systemPrompt, buildPrompt(ans))
	if err != nil {
		return "", err
	}
	body = stripFences(body)

	return util.RenderTemplate(templateHTML, map[string]string{
		"css":     reportCSS,
		"name":    ans.Name,
		"date":    now.Format("02/01/2006"),
		"content": body,
	}), nil
}

func buildPrompt(ans domain.Answers) string {
	var b strings.Builder
	b.WriteString("Respostas do diagnóstico:\n\n")
	seen := make(map[string]bool)
	for _, field := range questionOrder {
		v, ok := ans.Fields[field]
		if !ok {
			continue
		}
		seen[field] = true
		b.WriteString(fmt.Sprintf("%s\n%v\n\n", labelFor(field), v))
	}
	// Unknown fields still reach the prompt, after the known ones.
	for field, v := range ans.Fields {
		if seen[field] {
			continue
		}
		b.WriteString(fmt.Sprintf("%s\n%v\n\n", labelFor(field), v))
	}
	return b.String()
}

func labelFor(field string) string {
	if label, ok := domain.QuestionLabels[field]; ok {
		return label
	}
	return field
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
