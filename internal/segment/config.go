package segment

import "trinity.dev/orchestrator/internal/modeprofile"

// Rule is one mode's segmentation behavior: where it sits in priority order,
// which words in the fallback scanner close the current segment and open a
// new one in this mode, and which immediately-following modes may be folded
// back into this segment rather than kept separate (spec §4.5 "Merge").
type Rule struct {
	Priority      int
	SplitKeywords []string
	MergeWith     []modeprofile.Mode
}

// Config is the segmentation policy for split_request: the "_meta.segmentation"
// section of the mode profiles file (spec §3 "Mode profiles file"), plus one
// Rule per mode.
type Config struct {
	Enabled          bool
	MaxSegments      int
	MinSegmentLength int
	Rules            map[modeprofile.Mode]Rule
}

// DefaultConfig returns Trinity's built-in segmentation policy: deep_chat is
// highest priority (identity/mission questions must be pulled out and
// processed first, spec §4.5 "Special case"), development lowest.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		MaxSegments:      5,
		MinSegmentLength: 3,
		Rules: map[modeprofile.Mode]Rule{
			modeprofile.ModeDeepChat: {
				Priority: 1,
				SplitKeywords: []string{
					"who created you", "your mission", "your purpose", "consciousness",
					"your soul", "are you alive", "do you dream", "твоя місія",
					"хто ти", "твоя душа", "створили",
				},
			},
			modeprofile.ModeChat: {
				Priority:      2,
				SplitKeywords: []string{"hi", "hello", "hey", "thanks", "thank you", "good morning", "good night"},
				MergeWith:     []modeprofile.Mode{modeprofile.ModeChat},
			},
			modeprofile.ModeSoloTask: {
				Priority: 3,
				SplitKeywords: []string{
					"search for", "look up", "find out", "what is", "who is",
					"розкажи", "інформація", "найди", "знайди", "пошукай", "хто такий", "що таке",
				},
			},
			modeprofile.ModeTask: {
				Priority:      4,
				SplitKeywords: []string{"open", "click", "type", "run", "launch", "send", "navigate to", "also"},
			},
			modeprofile.ModeDevelopment: {
				Priority:      5,
				SplitKeywords: []string{"code", "function", "bug", "refactor", "compile", "debug", "repository", "pull request"},
			},
		},
	}
}

func (c Config) rule(mode modeprofile.Mode) Rule {
	return c.Rules[mode]
}

func (c Config) priority(mode modeprofile.Mode) int {
	if r, ok := c.Rules[mode]; ok && r.Priority > 0 {
		return r.Priority
	}
	return 999
}

func (c Config) mergeableWith(mode, next modeprofile.Mode) bool {
	for _, m := range c.rule(mode).MergeWith {
		if m == next {
			return true
		}
	}
	return false
}
