package ingest

import (
	"strings"
	"testing"
	"time"
)

func TestDeriveTitleContent(t *testing.T) {
	posted := time.Date(2024, 3, 15, 12, 30, 45, 0, time.UTC)

	tests := []struct {
		name        string
		post        LogicalPost
		wantTitle   string
		wantContent string
	}{
		{
			name:        "first line becomes title",
			post:        LogicalPost{Text: "Новая работа\nПолная оклейка кузова"},
			wantTitle:   "Новая работа",
			wantContent: "Полная оклейка кузова",
		},
		{
			name:        "single line keeps full text as content",
			post:        LogicalPost{Text: "Короткий пост"},
			wantTitle:   "Короткий пост",
			wantContent: "Короткий пост",
		},
		{
			name:        "html entities are unescaped",
			post:        LogicalPost{Text: "Цена &amp; качество\nтекст"},
			wantTitle:   "Цена & качество",
			wantContent: "текст",
		},
		{
			name:        "surrounding whitespace is trimmed",
			post:        LogicalPost{Text: "  Заголовок  \n  тело  "},
			wantTitle:   "Заголовок",
			wantContent: "тело",
		},
		{
			name:        "video without caption",
			post:        LogicalPost{MessageID: 42, PostedAt: &posted, Videos: []Video{{FileID: "v"}}},
			wantTitle:   "Видео от 15.03.2024 12:30:45 (#42)",
			wantContent: "Видео, добавленное 15.03.2024 12:30:45",
		},
		{
			name:        "video note without caption",
			post:        LogicalPost{MessageID: 7, PostedAt: &posted, Videos: []Video{{FileID: "v", IsVideoNote: true}}},
			wantTitle:   "Кружок от 15.03.2024 12:30:45 (#7)",
			wantContent: "Видеосообщение, добавленное 15.03.2024 12:30:45",
		},
		{
			name:        "single photo without caption",
			post:        LogicalPost{MessageID: 9, PostedAt: &posted, Photos: []Photo{{FileID: "p"}}},
			wantTitle:   "Фото от 15.03.2024 12:30:45 (#9)",
			wantContent: "Фотография, добавленная 15.03.2024 12:30:45",
		},
		{
			name:        "album without caption counts photos",
			post:        LogicalPost{MessageID: 11, PostedAt: &posted, Photos: []Photo{{FileID: "a"}, {FileID: "b"}, {FileID: "c"}}},
			wantTitle:   "Фото 3 шт. от 15.03.2024 12:30:45 (#11)",
			wantContent: "Фотографии, добавленные 15.03.2024 12:30:45",
		},
		{
			name:        "empty post falls back to generic title",
			post:        LogicalPost{MessageID: 13, PostedAt: &posted},
			wantTitle:   "Пост от 15.03.2024 12:30:45 (#13)",
			wantContent: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, content := DeriveTitleContent(&tt.post)
			if title != tt.wantTitle {
				t.Errorf("title = %q, want %q", title, tt.wantTitle)
			}
			if content != tt.wantContent {
				t.Errorf("content = %q, want %q", content, tt.wantContent)
			}
		})
	}
}

func TestDeriveTitleContentTruncatesLongTitle(t *testing.T) {
	post := LogicalPost{Text: strings.Repeat("я", 300) + "\nтело"}
	title, content := DeriveTitleContent(&post)
	if got := len([]rune(title)); got != maxTitleLength {
		t.Errorf("title length = %d runes, want %d", got, maxTitleLength)
	}
	if content != "тело" {
		t.Errorf("content = %q, want %q", content, "тело")
	}
}

func TestSiblingTitle(t *testing.T) {
	tests := []struct {
		base  string
		index int
		want  string
	}{
		{"Оклейка", 1, "Оклейка (видео 2)"},
		{"Оклейка", 2, "Оклейка (видео 3)"},
	}

	for _, tt := range tests {
		if got := siblingTitle(tt.base, tt.index); got != tt.want {
			t.Errorf("siblingTitle(%q, %d) = %q, want %q", tt.base, tt.index, got, tt.want)
		}
	}
}

func TestSiblingContent(t *testing.T) {
	if got := siblingContent("подпись", 1); got != "подпись" {
		t.Errorf("siblingContent with caption = %q, want caption", got)
	}
	if got := siblingContent("", 1); got != "Видео 2 из серии" {
		t.Errorf("siblingContent without caption = %q, want %q", got, "Видео 2 из серии")
	}
}
