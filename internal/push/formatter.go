package push

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// Lead is one contact request submitted through the site form
type Lead struct {
	Name      string
	Phone     string
	Message   string
	Page      string
	CreatedAt time.Time
}

// FormatLeadMessage renders a lead as a Telegram HTML notification
func FormatLeadMessage(lead *Lead) string {
	if lead == nil {
		return ""
	}

	var parts []string
	parts = append(parts, "🔔 <b>Новая заявка с сайта</b>")

	if lead.Name != "" {
		parts = append(parts, fmt.Sprintf("👤 Имя: %s", html.EscapeString(lead.Name)))
	}
	if lead.Phone != "" {
		parts = append(parts, fmt.Sprintf("📞 Телефон: <code>%s</code>", html.EscapeString(lead.Phone)))
	}
	if lead.Message != "" {
		parts = append(parts, fmt.Sprintf("💬 Сообщение: %s", html.EscapeString(lead.Message)))
	}
	if lead.Page != "" {
		parts = append(parts, fmt.Sprintf("📄 Страница: %s", html.EscapeString(lead.Page)))
	}

	at := lead.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	parts = append(parts, fmt.Sprintf("🕒 %s", at.Format("02.01.2006 15:04")))

	return strings.Join(parts, "\n")
}
