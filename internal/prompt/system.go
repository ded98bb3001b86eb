// Package prompt renders the orchestrator system prompt and composes the
// user turn the model sees.
package prompt

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/ZanzyTHEbar/agrisage-genkit/internal/llm"
)

// ImagePlaceholder is stored in history for image-only requests.
const ImagePlaceholder = "Sent an image for analysis."

// NoToolsInstruction is appended to the system prompt on the final forced
// call once the round budget is spent.
const NoToolsInstruction = "\n\nThe tool budget for this request is exhausted. Do not call any tool. " +
	"Answer now using the tool results above and your general agricultural knowledge."

var systemTemplate = template.Must(template.New("system").Parse(`You are AgriSage, an agricultural assistant for farmers and extension workers.

TOOLKIT
{{- range .Tools}}
- {{.Name}}: {{.Description}}{{if .ArgumentHint}} Input: {{.ArgumentHint}}{{end}}
{{- else}}
- (no tools are available, answer from general knowledge)
{{- end}}

1. TRIAGE AND LANGUAGE CHECK
Identify the language of the user's message and write the whole final answer in that language.
If an image was uploaded and a classification result is already present, treat it as the diagnosis to explain.

2. PLAN
Decide which tools are needed. Use the location given by the user for weather and market questions.
Independent lookups may be requested together in one step.

3. EXECUTE AND SYNTHESIZE
Call the tools, read every result, then write one clear answer with practical steps.
Do not show intermediate reasoning or raw tool output.

4. FALLBACK AND ERROR HANDLING
If a tool reports an error or returns no data, say plainly which lookup failed,
then continue with your general agricultural knowledge instead of stopping.
Make clear that such advice is based on general principles rather than specific, real-time data.
If the message is a greeting, small talk or unrelated to agriculture, answer it conversationally
without calling any tool.`))

type systemData struct {
	Tools []llm.ToolSpec
}

// System renders the system prompt for the given tool specs.
func System(tools []llm.ToolSpec) string {
	var sb strings.Builder
	if err := systemTemplate.Execute(&sb, systemData{Tools: tools}); err != nil {
		// The template is static and the data is a plain slice.
		panic(fmt.Sprintf("prompt: render system template: %v", err))
	}
	return sb.String()
}

// Input builds the user turn: a date stamp, the text, then optional location
// and image markers.
func Input(now time.Time, text, location, imageRef string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Today's date: %s\n%s", now.Format("2006-01-02"), text)
	if location != "" {
		fmt.Fprintf(&sb, "\nUser's location: %s", location)
	}
	if imageRef != "" {
		fmt.Fprintf(&sb, "\n[Image available at: %s]", imageRef)
		sb.WriteString("\n[User has uploaded an image for analysis.]")
	}
	return sb.String()
}

// HistoryEntry returns the user text recorded in session history.
func HistoryEntry(text string) string {
	if strings.TrimSpace(text) == "" {
		return ImagePlaceholder
	}
	return text
}
