package generator

import (
	"fmt"
	"strings"

	"animepicker/internal/model"
)

// Avoid is a title the model must not recommend. Reason is the user's exclusion reason, if any.
type Avoid struct {
	Title  string
	Reason string
}

// AvoidList builds the avoid list from the collections and the excluded items.
func AvoidList(st model.State) []Avoid {
	var out []Avoid
	for _, c := range model.Collections {
		for _, it := range st.Items(c) {
			out = append(out, Avoid{Title: it.Title})
		}
	}
	for _, ex := range st.ExcludedItems {
		out = append(out, Avoid{Title: ex.Title, Reason: ex.Reason})
	}
	return out
}

// AlwaysInstructions returns the instructions carrying the always-on tag.
func AlwaysInstructions(list []string) []string {
	var out []string
	for _, in := range list {
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(in)), model.AlwaysTag) {
			out = append(out, in)
		}
	}
	return out
}

// stripTag removes the always-on tag from an instruction.
func stripTag(in string) string {
	in = strings.TrimSpace(in)
	if strings.HasPrefix(strings.ToUpper(in), model.AlwaysTag) {
		in = strings.TrimSpace(in[len(model.AlwaysTag):])
	}
	return in
}

func instructionLines(list []string) []string {
	var out []string
	for _, in := range list {
		if in = stripTag(in); in != "" {
			out = append(out, "- "+in)
		}
	}
	return out
}

// RecommendPrompt builds the prompt asking for exactly count recommendations.
func RecommendPrompt(library []model.Item, avoid []Avoid, instructions []string, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Based on the following user watchlist and preferences, recommend EXACTLY %d anime series.\n", count)
	fmt.Fprintf(&b, "It is CRITICAL that you return exactly %d recommendations, no more and no less.\n\n", count)

	b.WriteString("User's Watchlist:\n")
	for _, it := range library {
		b.WriteString("- " + it.Title)
		if len(it.Genres) > 0 {
			b.WriteString(" (" + strings.Join(it.Genres, ", ") + ")")
		}
		if it.Note != "" {
			fmt.Fprintf(&b, " [User Note: %q]", it.Note)
		}
		b.WriteString("\n")
	}

	if len(avoid) > 0 {
		b.WriteString("\nIMPORTANT: Do NOT recommend any of the following titles.\n")
		for _, a := range avoid {
			reason := "(Already in collection)"
			if a.Reason != "" {
				reason = fmt.Sprintf("(User Reason: %q)", a.Reason)
			}
			fmt.Fprintf(&b, "- %s %s\n", a.Title, reason)
		}
	}

	if lines := instructionLines(instructions); len(lines) > 0 {
		b.WriteString("\nUSER's ADDITIONAL INSTRUCTIONS:\n")
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n")
	}

	b.WriteString(`
Return a strictly valid JSON response with the following schema:
[
  {
    "title": "Anime Title",
    "year": "Release Year (e.g. 2023)",
    "genres": ["Genre1", "Genre2"],
    "reason": "A 2-sentence explanation of why this fits the user's taste, specifically referencing their notes if applicable.",
    "description": "A brief 1-sentence plot summary."
  }
]

Do not include any markdown formatting (like ` + "```json" + `) in the response, just the raw JSON array.
Make the recommendations diverse but relevant. Focus on high-quality productions.
`)
	return b.String()
}

// InfoPrompt builds the prompt asking for details about one title.
func InfoPrompt(title string, instructions []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Provide detailed information about the anime %q in JSON format.\n", title)
	b.WriteString(`Return ONLY a JSON object with:
{
  "title": "Anime Title",
  "genres": ["Genre1", "Genre2"],
  "description": "Short description of the plot",
  "year": 20XX,
  "averageScore": 85
}
`)
	if lines := instructionLines(instructions); len(lines) > 0 {
		b.WriteString("\nSpecific Instructions:\n")
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n")
	}
	b.WriteString("\nDo not include any commentary, thoughts, or markdown boxes. Just the JSON.")
	return b.String()
}
