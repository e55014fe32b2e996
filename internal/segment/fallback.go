package segment

import (
	"strconv"
	"strings"

	"trinity.dev/orchestrator/internal/modeprofile"
)

// keywordSegmentation is the linear-scan fallback used when the Classifier
// is absent or its reply fails to parse (spec §4.5 step 3): walk the request
// word by word, and whenever a word matches another mode's split-keyword
// list, close the segment being built and start a new one in that mode.
func (s *Segmenter) keywordSegmentation(request string) []RequestSegment {
	words := strings.Fields(request)
	if len(words) == 0 {
		return []RequestSegment{s.buildSegment(request, modeprofile.ModeChat, "empty request", 0, 0)}
	}

	var segments []RequestSegment
	var current []string
	var currentMode modeprofile.Mode
	currentStart := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		text := strings.Join(current, " ")
		if len(strings.TrimSpace(text)) < s.cfg.MinSegmentLength && currentMode != modeprofile.ModeChat {
			current = nil
			return
		}
		mode := currentMode
		if mode == "" {
			mode = modeprofile.ModeChat
		}
		segments = append(segments, s.buildSegment(text, mode, "keyword detection: "+string(mode), currentStart, currentStart+len(text)))
		current = nil
	}

	for i, word := range words {
		detected := s.detectKeywordMode(words, i)

		if detected != "" && detected != currentMode && len(current) > 0 {
			flush()
			currentMode = detected
			currentStart = len(strings.Join(words[:i], " "))
			current = append(current, word)
			continue
		}
		current = append(current, word)
		if currentMode == "" && detected != "" {
			currentMode = detected
		}
	}
	flush()

	if len(segments) == 0 {
		return []RequestSegment{s.buildSegment(request, modeprofile.ModeChat, "no segmentation detected", 0, len(request))}
	}
	return segments
}

// detectKeywordMode reports the highest-priority mode whose split-keyword
// phrase begins at words[idx:] (so multi-word keywords like "search for"
// match correctly, not just single tokens).
func (s *Segmenter) detectKeywordMode(words []string, idx int) modeprofile.Mode {
	remainder := strings.ToLower(strings.Join(words[idx:], " "))
	var best modeprofile.Mode
	bestPriority := 1 << 30
	for mode, rule := range s.cfg.Rules {
		for _, kw := range rule.SplitKeywords {
			if kw != "" && strings.HasPrefix(remainder, kw) {
				if rule.Priority < bestPriority {
					best = mode
					bestPriority = rule.Priority
				}
				break
			}
		}
	}
	return best
}

var numberedPrefixes = []string{"1.", "2.", "3.", "4.", "5."}

// questionSegments is the manual question splitter used when the LLM comes
// back with syntactically valid JSON but zero usable segments (spec §4.5
// "Failure": "Empty segments from LLM with identifiable questions → manual
// question splitter"). It splits on line breaks and numbered-question
// markers, then routes each resulting question to deep_chat or solo_task by
// the same identity/info-seeking keyword check the Classifier is asked to
// apply, so the override holds even when the model fails outright.
func (s *Segmenter) questionSegments(request string) []RequestSegment {
	lines := strings.Split(request, "\n")
	var parts []string
	var current strings.Builder

	startsNumbered := func(line string) bool {
		for _, p := range numberedPrefixes {
			if strings.HasPrefix(line, p) {
				return true
			}
		}
		return false
	}

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if startsNumbered(line) {
			if current.Len() > 0 {
				parts = append(parts, strings.TrimSpace(current.String()))
				current.Reset()
			}
			current.WriteString(line)
			continue
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		parts = append(parts, strings.TrimSpace(current.String()))
	}

	var segments []RequestSegment
	for i, part := range parts {
		if part == "" || len(strings.Fields(part)) < 3 {
			continue
		}
		mode := modeprofile.ModeChat
		lower := strings.ToLower(part)
		if containsAny(lower, s.cfg.rule(modeprofile.ModeDeepChat).SplitKeywords) {
			mode = modeprofile.ModeDeepChat
		} else if containsAny(lower, s.cfg.rule(modeprofile.ModeSoloTask).SplitKeywords) {
			mode = modeprofile.ModeSoloTask
		}
		start := strings.Index(request, part)
		if start < 0 {
			start = 0
		}
		segments = append(segments, s.buildSegment(part, mode, "question segmentation "+strconv.Itoa(i+1)+" (manual fallback)", start, start+len(part)))
	}
	return segments
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
