package domain

import "strings"

// The survey platform keys answers by opaque per-field identifiers. fieldAliases
// maps each semantic name to the identifiers observed for it; the semantic name
// itself is always accepted so re-shaped payloads keep working. Unknown keys are
// tolerated and passed through untouched by MapAnswers.
var fieldAliases = map[string][]string{
	"name":      {"name", "os30zscm7hd00tp6qkabp90q"},
	"email":     {"email", "kp5n1z4vi4b63q56xh29qucc"},
	"instagram": {"instagram", "qxuxu27rubvcq0ntvodpjm0d"},
}

var aliasToField = func() map[string]string {
	m := make(map[string]string)
	for field, aliases := range fieldAliases {
		for _, a := range aliases {
			m[a] = field
		}
	}
	return m
}()

// QuestionLabels maps semantic field names to the survey question wording,
// used when handing answers to the content generator.
var QuestionLabels = map[string]string{
	"name":                    "Qual o seu nome completo?",
	"email":                   "Seu melhor E-mail",
	"instagram":               "Seu @ do Instagram",
	"nicho":                   "1) Qual é o seu nicho principal?",
	"objetivo":                "2) Qual é o objetivo principal do seu perfil?",
	"publico":                 "3) Quem é o seu público ideal?",
	"oque_vende":              "4) O que você vende hoje?",
	"ticket_medio":            "5) Qual é o ticket médio do seu produto/serviço principal?",
	"clientes_mes":            "6) Quantos clientes você consegue atender por mês?",
	"total_seguidores":        "7) Quantos seguidores você tem hoje?",
	"postagens_semana":        "8) Quantas postagens você faz por semana?",
	"formato_conteudo":        "9) Qual é o seu formato principal de conteúdo?",
	"media_reels":             "10) Qual é sua média de visualizações nos Reels?",
	"taxa_conversao":          "11) Sua taxa aproximada de conversão (seguidores → clientes) é:",
	"crescimento_redes":       "12) Como você descreve seu crescimento atual nas redes sociais?",
	"tempo_insta":             "13) Quanto tempo você dedica ao Instagram por dia?",
	"meta_seguidores":         "14) Qual é sua meta de seguidores para os próximos 6 meses?",
	"meta_faturamento_mensal": "15) Qual é sua meta mensal de faturamento?",
	"faturamento_medio_atual": "16) Qual é o faturamento médio mensal atual?",
}

// Answers is the typed view over a raw survey payload.
type Answers struct {
	Name      string
	Email     string
	Instagram string
	// Fields holds every answer keyed by semantic name where one is known,
	// otherwise by the original opaque key.
	Fields map[string]any
}

// FirstName returns the first word of the customer name, or a fallback.
func (a Answers) FirstName() string {
	parts := strings.Fields(a.Name)
	if len(parts) == 0 {
		return "Cliente"
	}
	return parts[0]
}

// MapAnswers extracts the typed answer view from a raw webhook payload
// (the nested data.data mapping).
func MapAnswers(payload map[string]any) Answers {
	raw := innerData(payload)

	out := Answers{Fields: make(map[string]any, len(raw))}
	for k, v := range raw {
		field, known := aliasToField[k]
		if !known {
			field = k
		}
		out.Fields[field] = v
	}

	out.Name = stringField(out.Fields, "name")
	out.Email = stringField(out.Fields, "email")
	out.Instagram = normalizeHandle(stringField(out.Fields, "instagram"))
	if out.Instagram != "" {
		out.Fields["instagram"] = out.Instagram
	}
	return out
}

func innerData(payload map[string]any) map[string]any {
	outer, ok := payload["data"].(map[string]any)
	if !ok {
		return nil
	}
	inner, ok := outer["data"].(map[string]any)
	if !ok {
		return nil
	}
	return inner
}

func stringField(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func normalizeHandle(h string) string {
	h = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(h), "@"))
	return strings.ReplaceAll(h, " ", "_")
}
