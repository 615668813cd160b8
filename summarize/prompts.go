package summarize

import "fmt"

// NotInSummary is the reply the chat prompt asks for when the summary does
// not cover the question.
const NotInSummary = "⚠️ Not available in the provided summary."

// SummaryPrompt wraps extracted document text in the six-section analyst
// report template.
func SummaryPrompt(text string) string {
	return fmt.Sprintf(`You are a professional document analyst.
Summarize the following document(s) into a **highly detailed, well-structured Markdown report**.

IMPORTANT:
- Use clear markdown headers: `+"`### 1. Overview`, `### 2. Important Details`"+`, etc.
- Always use bullet points (`+"`- ...`"+`) for lists, never long paragraphs.
- Highlight key terms/dates/names in **bold**.
- Add line breaks between sections for readability.

Your output MUST strictly follow this structure:

### 1. Overview
(2-4 sentences max, in plain text.)

### 2. Important Details
- **Clause/Instruction** → explanation
- **Date/Name/Number** → explanation
- (Continue listing EVERYTHING important)

### 3. Context & Purpose
- Why the document exists
- Who it is for
- How it is used

### 4. Implications
- **Rule broken** → consequence
- **Missed requirement** → penalty

### 5. Extra Observations
- Errors, missing parts, inconsistencies
- Anything unusual or noteworthy

### 6. Verbatim Quotes
- "Copy key phrases here"
- "Use exact wording from the text"

---
Document Content:
%s
`, text)
}

// ChatPrompt asks a question about a stored summary and restricts the
// answer to what the summary says.
func ChatPrompt(summary, query string) string {
	return fmt.Sprintf(`You are chatting with a user about a previously summarized document.

### Summary Context:
%s

### User Query:
%s

Answer based ONLY on the summary context above.
If the summary does not mention something, reply: "%s"
`, summary, query, NotInSummary)
}

// NarrationPrompt turns a markdown summary into audiobook-style prose.
// "hi" asks for a Hindi translation first; any other language gets English.
func NarrationPrompt(summary, lang string) string {
	if lang == "hi" {
		return fmt.Sprintf(`Translate the following summary into **fluent Hindi**,
then rewrite it in a natural, spoken narration style (like an audiobook).
Avoid markdown/symbols, make it smooth and conversational.

### Original Summary:
%s
`, summary)
	}
	return fmt.Sprintf(`Rewrite the following summary into a natural, human-like spoken narration.
- Remove all markdown, symbols like ** or ##, and any formatting.
- Write in smooth, conversational English.
- Do not mention that this is a summary.
- Pretend you are narrating the content aloud for an audiobook.

### Original Summary:
%s
`, summary)
}
