package ingest

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// maxTitleLength bounds article titles to the database column size
const maxTitleLength = 255

const titleTimeLayout = "02.01.2006 15:04:05"

// DeriveTitleContent derives an article title and body from a logical post.
// With text, the first line becomes the title and the remainder the body.
// Without text, a title is synthesized from the content type and timestamp,
// with the message id appended to avoid accidental collisions.
func DeriveTitleContent(post *LogicalPost) (title, content string) {
	if post.Text != "" {
		text := html.UnescapeString(strings.TrimSpace(post.Text))
		parts := strings.SplitN(text, "\n", 2)
		title = truncateRunes(strings.TrimSpace(parts[0]), maxTitleLength)
		if len(parts) > 1 {
			content = strings.TrimSpace(parts[1])
		} else {
			content = text
		}
		return title, content
	}
	return synthesizeTitleContent(post)
}

func synthesizeTitleContent(post *LogicalPost) (string, string) {
	date := time.Now()
	if post.PostedAt != nil {
		date = *post.PostedAt
	}
	stamp := date.Format(titleTimeLayout)
	suffix := fmt.Sprintf(" (#%d)", post.MessageID)

	switch {
	case len(post.Videos) > 0 && post.Videos[0].IsVideoNote:
		return "Кружок от " + stamp + suffix,
			"Видеосообщение, добавленное " + stamp
	case len(post.Videos) > 0:
		return "Видео от " + stamp + suffix,
			"Видео, добавленное " + stamp
	case len(post.Photos) > 1:
		return fmt.Sprintf("Фото %d шт. от %s%s", len(post.Photos), stamp, suffix),
			"Фотографии, добавленные " + stamp
	case len(post.Photos) == 1:
		return "Фото от " + stamp + suffix,
			"Фотография, добавленная " + stamp
	default:
		return "Пост от " + stamp + suffix, ""
	}
}

// siblingTitle names the extra article spawned for the n-th video of a
// group (1-based beyond the first).
func siblingTitle(base string, index int) string {
	return fmt.Sprintf("%s (видео %d)", base, index+1)
}

// siblingContent is the body of an extra-video article
func siblingContent(caption string, index int) string {
	if caption != "" {
		return caption
	}
	return fmt.Sprintf("Видео %d из серии", index+1)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
