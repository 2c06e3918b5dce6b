package llm

import "strings"

var languageNames = map[string]string{
	"go":     "Go",
	"js":     "JavaScript",
	"ts":     "TypeScript",
	"tsx":    "TypeScript (React)",
	"jsx":    "JavaScript (React)",
	"py":     "Python",
	"java":   "Java",
	"c":      "C",
	"cpp":    "C++",
	"h":      "C",
	"hpp":    "C++",
	"rs":     "Rust",
	"rb":     "Ruby",
	"php":    "PHP",
	"cs":     "C#",
	"swift":  "Swift",
	"kt":     "Kotlin",
	"scala":  "Scala",
	"sql":    "SQL",
	"python": "Python",
	"golang": "Go",
}

// LanguageName turns a language tag or file extension (".py", "py", "python")
// into the display name used in prompts. Unknown tags are returned trimmed.
func LanguageName(tag string) string {
	t := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "."))
	if name, ok := languageNames[t]; ok {
		return name
	}
	return strings.TrimSpace(tag)
}
