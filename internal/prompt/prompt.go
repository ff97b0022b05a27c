// Package prompt assembles a bounded, provider-agnostic conversational
// context from a character profile and the trailing message history. It is
// a pure transformation: no storage or network access.
package prompt

import (
	"fmt"
	"strings"

	"github.com/michael7nightingale/ai-girls/internal/models"
)

// Turn is one prior conversation message, ordered oldest to newest.
type Turn struct {
	Content       string
	IsUserMessage bool
}

// Variant selects the context window and labeling rules.
type Variant int

const (
	// VariantGeneric keeps the last 10 turns and labels the assistant with a
	// generic pronoun.
	VariantGeneric Variant = iota
	// VariantCharacter keeps the last 8 turns and labels the assistant with
	// the character's literal name.
	VariantCharacter
)

const (
	genericWindow   = 10
	characterWindow = 8

	userLabel        = "Пользователь"
	genericSelfLabel = "Ты"
)

// Line is one labeled turn of the canonical context.
type Line struct {
	Speaker  string
	Text     string
	FromUser bool
}

// Prompt is the canonical generation request content: one system prompt, the
// bounded labeled history, and the new utterance to answer.
type Prompt struct {
	System      string
	Lines       []Line
	UserText    string
	UserLabel   string
	AnswerLabel string
}

const genericSystemTemplate = `Ты %s

Твоя личность: %s

Ты должна отвечать от первого лица, как будто ты действительно этот персонаж.
Будь естественной, игривой и немного кокетливой. Отвечай на русском языке.
Не используй формальный тон, будь дружелюбной и интимной.
Максимальная длина ответа - 200 слов.`

const characterSystemTemplate = `Ты %s - %s

Твоя личность: %s

ВАЖНЫЕ ПРАВИЛА:
1. Отвечай от первого лица, как будто ты действительно этот персонаж
2. Будь естественной, игривой и кокетливой
3. Отвечай на русском языке
4. Не используй формальный тон, будь дружелюбной и интимной
5. Можешь быть немного игривой и флиртовать
6. Максимальная длина ответа - 200 слов
7. Сохраняй консистентность характера
8. Реагируй на эмоции пользователя
9. Задавай вопросы и проявляй интерес к собеседнику
10. Используй эмодзи для выражения эмоций`

// Build produces the canonical prompt for one turn. Only the most recent
// window of history is retained; older turns are discarded without summary,
// so callers must not assume unlimited memory.
func Build(character *models.Character, history []Turn, userText string, variant Variant) Prompt {
	window := genericWindow
	selfLabel := genericSelfLabel
	system := fmt.Sprintf(genericSystemTemplate, character.Description, character.Personality)
	if variant == VariantCharacter {
		window = characterWindow
		selfLabel = character.Name
		system = fmt.Sprintf(characterSystemTemplate, character.Name, character.Description, character.Personality)
	}

	if len(history) > window {
		history = history[len(history)-window:]
	}
	lines := make([]Line, 0, len(history))
	for _, turn := range history {
		speaker := selfLabel
		if turn.IsUserMessage {
			speaker = userLabel
		}
		lines = append(lines, Line{Speaker: speaker, Text: turn.Content, FromUser: turn.IsUserMessage})
	}

	return Prompt{
		System:      system,
		Lines:       lines,
		UserText:    userText,
		UserLabel:   userLabel,
		AnswerLabel: selfLabel,
	}
}

// Flatten renders the context as a single speaker-prefixed text block ending
// with an open line for the assistant's answer.
func (p Prompt) Flatten() string {
	var b strings.Builder
	for _, line := range p.Lines {
		b.WriteString(line.Speaker)
		b.WriteString(": ")
		b.WriteString(line.Text)
		b.WriteString("\n")
	}
	b.WriteString(p.UserLabel)
	b.WriteString(": ")
	b.WriteString(p.UserText)
	b.WriteString("\n")
	b.WriteString(p.AnswerLabel)
	b.WriteString(":")
	return b.String()
}

// TurnsFromMessages converts stored messages into context turns.
func TurnsFromMessages(messages []*models.Message) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		turns = append(turns, Turn{Content: msg.Content, IsUserMessage: msg.IsUserMessage})
	}
	return turns
}
