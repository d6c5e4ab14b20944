package ingest

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/avtodecor/newsbot/internal/model"
)

func TestProperty_TitleDerivation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	// Property: the derived title never exceeds the column limit, for any text.
	properties.Property("title fits the column limit", prop.ForAll(
		func(text string) bool {
			post := LogicalPost{Text: text}
			title, _ := DeriveTitleContent(&post)
			return len([]rune(title)) <= maxTitleLength
		},
		gen.AnyString(),
	))

	// Property: the derived title contains no newline
	properties.Property("title is a single line", prop.ForAll(
		func(text string) bool {
			post := LogicalPost{Text: text}
			title, _ := DeriveTitleContent(&post)
			return !strings.Contains(title, "\n")
		},
		gen.AnyString(),
	))

	// Property: derivation is deterministic for posts with text
	properties.Property("derivation is deterministic", prop.ForAll(
		func(text string) bool {
			if text == "" {
				// Synthesized titles embed the current time.
				return true
			}
			post := LogicalPost{Text: text}
			t1, c1 := DeriveTitleContent(&post)
			t2, c2 := DeriveTitleContent(&post)
			return t1 == t2 && c1 == c2
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestProperty_SizeGate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	// Property: a video routes to the downloader exactly when its size
	// reaches the Bot API limit.
	properties.Property("deferral matches the size limit", prop.ForAll(
		func(size int) bool {
			p := &Pipeline{}
			post := LogicalPost{ChannelUsername: "ch"}
			video := Video{FileID: "f", FileSize: size, MessageID: 1}
			article := &model.Article{}
			p.placeVideo(article, &post, &video)
			deferred := article.VideoStatus == model.VideoStatusPending
			return deferred == (size >= MaxBotFileSize)
		},
		gen.IntRange(0, 100*1024*1024),
	))

	properties.TestingRun(t)
}
