// nexor/chatbot/resolver.go
package chatbot

import (
	"math/rand/v2"
	"strings"
)

// Rule maps a lowercase keyword to its canned reply.
type Rule struct {
	Keyword string
	Reply   string
}

// intent is a pattern-based reply tried after the keyword rules.
type intent struct {
	name     string
	triggers []string
	reply    string
}

// Rules are scanned in order and the first substring hit wins.
var Rules = []Rule{
	{"como jogar", "Para começar a jogar, você pode baixar nossos jogos na seção de Downloads. Temos tutoriais completos para iniciantes! 🎮"},
	{"suporte", "Para suporte técnico, visite nossa seção de Suporte ou acesse o fórum. Nossa equipe está sempre pronta para ajudar! 🛠️"},
	{"eventos", "Confira nossa seção de Competições & Eventos no fórum para participar de torneios e ganhar prêmios incríveis! 🏆"},
	{"forum", "Nosso fórum é o lugar perfeito para interagir com a comunidade, fazer perguntas e compartilhar experiências! 💬"},
	{"download", "Você pode baixar nossos jogos na seção principal do site. Todos os downloads são gratuitos e seguros! ⬇️"},
	{"conta", "Para criar uma conta, clique em \"Criar Conta\" no fórum. É rápido e gratuito! 👤"},
	{"requisitos", "Os requisitos mínimos variam por jogo. Confira a seção de cada jogo para mais detalhes sobre compatibilidade. 💻"},
	{"comunidade", "Nossa comunidade é ativa no fórum, Discord e redes sociais. Junte-se a nós! 🌟"},
	{"atualizações", "Acompanhe as últimas atualizações na seção Desenvolvimento & Feedback do fórum! 🔄"},
	{"bug", "Para reportar bugs, use a seção de Suporte Técnico no fórum. Inclua detalhes e screenshots se possível! 🐛"},
}

var intents = []intent{
	{"greeting", []string{"olá", "oi", "hello"}, "Olá! 👋 Como posso ajudar você hoje? Posso responder sobre nossos jogos, suporte, eventos e muito mais!"},
	{"thanks", []string{"obrigado", "valeu"}, "De nada! 😊 Estou sempre aqui para ajudar. Se tiver mais dúvidas, é só perguntar!"},
	{"farewell", []string{"tchau", "bye"}, "Até logo! 👋 Volte sempre que precisar de ajuda. Bons jogos! 🎮"},
	{"question", []string{"?"}, "Essa é uma ótima pergunta! Para informações mais específicas, recomendo visitar nosso fórum ou seção de suporte. Posso ajudar com navegação no site, informações gerais sobre jogos, eventos e suporte. 🤔"},
}

// DefaultReplies is the pool used when nothing else matches.
var DefaultReplies = []string{
	"Interessante! Para mais informações detalhadas, confira nosso fórum ou seção de suporte. 🔍",
	"Posso ajudar você a navegar pelo site! Tente perguntar sobre jogos, eventos, suporte ou fórum. 🎯",
	"Não tenho certeza sobre isso, mas nossa comunidade no fórum pode ter a resposta! 💭",
	"Para informações específicas, recomendo visitar as seções relevantes do site ou contatar nosso suporte. 📞",
}

// QuickActions are the canned prompts offered as one-click buttons.
var QuickActions = []string{
	"Como jogar?",
	"Suporte técnico",
	"Próximos eventos",
	"Como criar conta?",
}

// Resolver picks a reply for a user message. It is safe for concurrent use
// as long as Intn is.
type Resolver struct {
	rules    []Rule
	defaults []string
	// Intn returns a value in [0, n). Tests pin it to make defaults deterministic.
	Intn func(n int) int
}

// NewResolver returns a resolver over the built-in rule set.
func NewResolver() *Resolver {
	return &Resolver{rules: Rules, defaults: DefaultReplies, Intn: rand.IntN}
}

// Resolve never fails: every input yields some reply.
func (r *Resolver) Resolve(input string) string {
	lower := strings.ToLower(input)

	for _, rule := range r.rules {
		if strings.Contains(lower, rule.Keyword) {
			return rule.Reply
		}
	}

	for _, in := range intents {
		for _, trigger := range in.triggers {
			if strings.Contains(lower, trigger) {
				return in.reply
			}
		}
	}

	return r.defaults[r.Intn(len(r.defaults))]
}
