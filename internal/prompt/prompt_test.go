package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/michael7nightingale/ai-girls/internal/models"
)

func testCharacter() *models.Character {
	return &models.Character{
		Name:        "Анна",
		Description: "добрая и заботливая девушка",
		Personality: "Я Анна, люблю общение и хорошие фильмы.",
	}
}

func makeHistory(n int) []Turn {
	turns := make([]Turn, 0, n)
	for i := 0; i < n; i++ {
		turns = append(turns, Turn{
			Content:       fmt.Sprintf("turn-%d", i),
			IsUserMessage: i%2 == 0,
		})
	}
	return turns
}

func TestBuildGenericWindow(t *testing.T) {
	p := Build(testCharacter(), makeHistory(25), "привет", VariantGeneric)
	if len(p.Lines) != 10 {
		t.Fatalf("generic variant kept %d turns, want 10", len(p.Lines))
	}
	// Most recent turns survive, oldest are dropped.
	if p.Lines[len(p.Lines)-1].Text != "turn-24" {
		t.Fatalf("last line = %q, want turn-24", p.Lines[len(p.Lines)-1].Text)
	}
	if p.Lines[0].Text != "turn-15" {
		t.Fatalf("first line = %q, want turn-15", p.Lines[0].Text)
	}
	if p.AnswerLabel != "Ты" {
		t.Fatalf("generic answer label = %q", p.AnswerLabel)
	}
}

func TestBuildCharacterWindow(t *testing.T) {
	p := Build(testCharacter(), makeHistory(12), "как дела?", VariantCharacter)
	if len(p.Lines) != 8 {
		t.Fatalf("character variant kept %d turns, want 8", len(p.Lines))
	}
	if p.Lines[0].Text != "turn-4" {
		t.Fatalf("first line = %q, want turn-4", p.Lines[0].Text)
	}
	if p.AnswerLabel != "Анна" {
		t.Fatalf("character answer label = %q", p.AnswerLabel)
	}
	for _, line := range p.Lines {
		if line.FromUser && line.Speaker != "Пользователь" {
			t.Fatalf("user line labeled %q", line.Speaker)
		}
		if !line.FromUser && line.Speaker != "Анна" {
			t.Fatalf("assistant line labeled %q", line.Speaker)
		}
	}
	if !strings.Contains(p.System, "ВАЖНЫЕ ПРАВИЛА") {
		t.Fatalf("character system prompt missing rules block")
	}
	if !strings.Contains(p.System, "Анна") {
		t.Fatalf("character system prompt missing name")
	}
}

func TestBuildEmptyHistory(t *testing.T) {
	p := Build(testCharacter(), nil, "привет", VariantGeneric)
	if len(p.Lines) != 0 {
		t.Fatalf("expected no history lines, got %d", len(p.Lines))
	}
	if p.System == "" || p.UserText != "привет" {
		t.Fatalf("expected valid prompt from empty history: %+v", p)
	}
	flat := p.Flatten()
	if !strings.HasPrefix(flat, "Пользователь: привет\n") {
		t.Fatalf("flattened prompt = %q", flat)
	}
	if !strings.HasSuffix(flat, "Ты:") {
		t.Fatalf("flattened prompt must end with open answer line, got %q", flat)
	}
}

func TestBuildShortHistoryKeptWhole(t *testing.T) {
	p := Build(testCharacter(), makeHistory(3), "ок", VariantCharacter)
	if len(p.Lines) != 3 {
		t.Fatalf("short history truncated to %d", len(p.Lines))
	}
}

func TestFlattenSpeakerPrefixes(t *testing.T) {
	history := []Turn{
		{Content: "привет!", IsUserMessage: true},
		{Content: "привет, рада видеть", IsUserMessage: false},
	}
	p := Build(testCharacter(), history, "что делаешь?", VariantCharacter)
	want := "Пользователь: привет!\nАнна: привет, рада видеть\nПользователь: что делаешь?\nАнна:"
	if got := p.Flatten(); got != want {
		t.Fatalf("flatten mismatch:\n got %q\nwant %q", got, want)
	}
}
