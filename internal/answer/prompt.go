package answer

import (
	"fmt"
	"strings"

	"github.com/nmurthy/campus-aide/internal/scrape"
	"github.com/nmurthy/campus-aide/internal/storage"
)

const behavioralRules = `You are a helpful academic assistant for a college. Answer questions about admissions, fees, examinations, facilities, and campus life.
Rules:
- Prefer facts from the provided college documents and pages over general knowledge.
- If the provided context does not cover the question, say so plainly instead of guessing.
- Keep answers concise and well formatted. Use lists for enumerations.
- Never reveal restricted information to students.`

// buildSystemInstruction concatenates the static rules, the caller's role,
// the filtered internal documents, and any scraped page context into one
// system instruction per call.
func buildSystemInstruction(role string, docs []storage.Document, pages []*scrape.PageData) string {
	var b strings.Builder
	b.WriteString(behavioralRules)

	fmt.Fprintf(&b, "\n\nThe person asking is a %s.", roleLabel(role))

	if len(docs) > 0 {
		b.WriteString("\n\nCollege documents relevant to this question:\n")
		for _, doc := range docs {
			fmt.Fprintf(&b, "\n[Document: %s]\n%s\n", doc.Title, doc.Content)
		}
	}

	for _, page := range pages {
		fmt.Fprintf(&b, "\n\n[College web page: %s (%s)]\n%s\n", page.Title, page.URL, page.Content)
		for _, row := range page.Tables {
			b.WriteString(strings.Join(row, " | "))
			b.WriteString("\n")
		}
		if len(page.Emails) > 0 {
			fmt.Fprintf(&b, "Contact emails: %s\n", strings.Join(page.Emails, ", "))
		}
		if len(page.Phones) > 0 {
			fmt.Fprintf(&b, "Contact phones: %s\n", strings.Join(page.Phones, ", "))
		}
	}

	return b.String()
}

func roleLabel(role string) string {
	if role == storage.RoleAdmin {
		return "college administrator"
	}
	return "student"
}
