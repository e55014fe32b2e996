package plan

import (
	"strings"
	"unicode"
)

// verbDefaults maps a lower-cased leading verb found in Step.Action to a
// default target-language voice action. Kept as a small table rather than an
// LLM instruction, per the design note to encode voice-action
// standardization as a deterministic post-processor.
var verbDefaults = map[string]string{
	"open":     "Відкриваю %s",
	"create":   "Створюю %s",
	"write":    "Записую %s",
	"read":     "Читаю %s",
	"search":   "Шукаю %s",
	"find":     "Шукаю %s",
	"list":     "Переглядаю %s",
	"delete":   "Видаляю %s",
	"run":      "Виконую %s",
	"execute":  "Виконую %s",
	"install":  "Встановлюю %s",
	"navigate": "Переходжу до %s",
	"click":    "Натискаю %s",
	"type":     "Вводжу %s",
	"analyze":  "Аналізую %s",
	"verify":   "Перевіряю %s",
}

const defaultVoiceTemplate = "Виконую: %s"

// StandardizeVoiceActions rewrites every step whose VoiceAction is missing
// or contains Latin letters, using deterministic verb-keyed defaults. It is
// applied twice by the Strategist: once after plan creation and once after
// any plan repair (spec §4.6 post-processing, §9 "Voice-action
// standardization").
func StandardizeVoiceActions(steps []Step) []Step {
	out := make([]Step, len(steps))
	for i, s := range steps {
		if s.VoiceAction == "" || containsLatin(s.VoiceAction) {
			s.VoiceAction = defaultVoiceAction(s.Action)
		}
		out[i] = s
	}
	return out
}

// defaultVoiceAction derives a voice action from the step's imperative
// action text using the first matching verb in verbDefaults; falls back to
// a generic template when no verb matches.
func defaultVoiceAction(action string) string {
	words := strings.Fields(strings.ToLower(action))
	if len(words) == 0 {
		return replacePlaceholder(defaultVoiceTemplate, "")
	}
	verb := strings.TrimFunc(words[0], func(r rune) bool { return !unicode.IsLetter(r) })
	template, ok := verbDefaults[verb]
	if !ok {
		return replacePlaceholder(defaultVoiceTemplate, action)
	}
	rest := strings.TrimSpace(strings.TrimPrefix(action, words[0]))
	if rest == "" {
		rest = action
	}
	return replacePlaceholder(template, rest)
}

func replacePlaceholder(template, value string) string {
	if value == "" || containsLatin(value) {
		// Latin object text never reaches a voice action; keep the verb phrase.
		return strings.TrimRight(strings.Replace(template, "%s", "", 1), ": ")
	}
	if strings.Contains(template, "%s") {
		return strings.Replace(template, "%s", value, 1)
	}
	return template
}

// containsLatin reports whether s contains any Latin-script letter, used to
// detect mixed-language voice actions that need rewriting (spec §8
// invariant 3: "voice_action contains no Latin letters when target language
// is non-Latin").
func containsLatin(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Latin, r) {
			return true
		}
	}
	return false
}
