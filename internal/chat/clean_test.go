package chat

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCleanTrimsAndDedupes(t *testing.T) {
	raw := "  Привет! 😊\nПривет! 😊\nКак дела?  \n\nКак дела?\n"
	got := Clean(raw, "Анна")
	want := "Привет! 😊\nКак дела?"
	if got != want {
		t.Fatalf("clean = %q, want %q", got, want)
	}
}

func TestCleanDedupeIsCaseSensitive(t *testing.T) {
	got := Clean("Привет 😊\nпривет 😊", "Анна")
	if got != "Привет 😊\nпривет 😊" {
		t.Fatalf("case-differing lines must both survive, got %q", got)
	}
}

func TestCleanTruncates(t *testing.T) {
	long := strings.Repeat("а", 900) + " 😊"
	got := Clean(long, "Анна")
	if runes := utf8.RuneCountInString(got); runes > maxReplyRunes+len([]rune(truncationMark))+len([]rune(defaultMark)) {
		t.Fatalf("cleaned reply too long: %d runes", runes)
	}
	if !strings.Contains(got, truncationMark) {
		t.Fatalf("expected truncation marker in %q", got[:50])
	}
}

func TestCleanGuaranteesExpressiveMark(t *testing.T) {
	inputs := []string{
		"Просто текст без эмодзи",
		"",
		"   ",
		strings.Repeat("б", 600),
		"строка\nстрока\nдругая",
	}
	for _, in := range inputs {
		got := Clean(in, "Анна")
		if !containsExpressiveMark(got) {
			t.Fatalf("no expressive mark in %q (input %q)", got, in)
		}
	}
}

func TestCleanKeepsExistingMark(t *testing.T) {
	got := Clean("Рада тебя видеть 💕", "Анна")
	if got != "Рада тебя видеть 💕" {
		t.Fatalf("clean = %q", got)
	}
}

func TestCleanIdempotent(t *testing.T) {
	inputs := []string{
		"Привет! 😊",
		"  с пробелами  ",
		"повтор\nповтор\nуникальная",
		strings.Repeat("в", 700),
		strings.Repeat("г", 499) + " 😘 хвост за лимитом",
		"",
	}
	for _, in := range inputs {
		once := Clean(in, "Анна")
		twice := Clean(once, "Анна")
		if once != twice {
			t.Fatalf("not idempotent:\n once %q\ntwice %q", once, twice)
		}
	}
}
