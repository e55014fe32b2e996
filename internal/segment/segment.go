// Package segment implements the Request Segmenter: splitting a mixed
// user request into ordered RequestSegments, each carrying its own
// ModeProfile, so the Orchestrator can dispatch the identity-question part
// of a message to the Strategist alone while a task embedded in the same
// message runs the full Trinity pipeline (spec §4.5).
package segment

import (
	"context"
	"encoding/json"
	"strings"

	"trinity.dev/orchestrator/internal/modeprofile"
)

// RequestSegment is one ordered slice of the original request, carrying the
// mode it should be processed under (spec §3 RequestSegment). Text is
// always a substring of the request split_request was called with.
type RequestSegment struct {
	Text     string
	Mode     modeprofile.Mode
	Priority int
	Reason   string
	StartPos int
	EndPos   int
	Profile  modeprofile.Profile
}

// Classifier is the narrow LLM collaborator the Segmenter calls for
// LLM-first segmentation (spec §4.5 step 2). It returns the raw JSON reply
// so the Segmenter can apply its own parse/validate/fallback logic, mirroring
// how the Strategist treats every other LLM call as untrusted input.
type Classifier interface {
	Classify(ctx context.Context, request string, history []string) (string, error)
}

// ClassifierFunc adapts a plain function to Classifier.
type ClassifierFunc func(ctx context.Context, request string, history []string) (string, error)

// Classify calls f.
func (f ClassifierFunc) Classify(ctx context.Context, request string, history []string) (string, error) {
	return f(ctx, request, history)
}

// Segmenter implements split_request over a Config and DefaultRegistry, with
// an optional LLM Classifier. A nil Classifier skips straight to the
// keyword fallback (spec §4.5 step 1's "segmentation disabled" path is
// distinct from this: that one returns a single full-text chat segment).
type Segmenter struct {
	cfg        Config
	registry   modeprofile.DefaultRegistry
	classifier Classifier

	segmentations int64
	fallbacks     int64
}

// New builds a Segmenter. classifier may be nil, in which case split_request
// always uses the keyword fallback.
func New(cfg Config, registry modeprofile.DefaultRegistry, classifier Classifier) *Segmenter {
	return &Segmenter{cfg: cfg, registry: registry, classifier: classifier}
}

type llmSegment struct {
	Text       string  `json:"text"`
	Mode       string  `json:"mode"`
	Reason     string  `json:"reason"`
	StartPos   int     `json:"start_pos"`
	EndPos     int     `json:"end_pos"`
	Confidence float64 `json:"confidence"`
}

type llmResponse struct {
	Segments []llmSegment `json:"segments"`
}

// Split implements split_request(request, history, context) → [RequestSegment]
// (spec §4.5). history is free-form recent-turns context passed through to
// the Classifier only; the Segmenter does not interpret it.
func (s *Segmenter) Split(ctx context.Context, request string, history []string) []RequestSegment {
	s.segmentations++

	if !s.cfg.Enabled {
		return []RequestSegment{s.buildSegment(request, modeprofile.ModeChat, "segmentation disabled", 0, len(request))}
	}

	if s.classifier != nil {
		if raw, err := s.classifier.Classify(ctx, request, history); err == nil {
			if segs, ok := s.parseLLMResponse(raw, request); ok {
				if len(segs) > 0 {
					return s.sortAndMerge(segs)
				}
				// LLM returned valid JSON but zero usable segments: the
				// request may still contain identifiable questions, so try
				// the manual question splitter before falling all the way
				// back to keywords (spec §4.5 "Failure").
				if qs := s.questionSegments(request); len(qs) > 0 {
					return s.sortAndMerge(qs)
				}
			}
		}
	}

	s.fallbacks++
	return s.sortAndMerge(s.keywordSegmentation(request))
}

// parseLLMResponse validates the LLM's proposed segments (spec §4.5 step 2):
// mode must be known, text must be a substring of request, and word count
// must meet min_segment_length except for chat segments. ok is false only
// when the raw payload is not valid JSON at all.
func (s *Segmenter) parseLLMResponse(raw, request string) ([]RequestSegment, bool) {
	var resp llmResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &resp); err != nil {
		return nil, false
	}

	out := make([]RequestSegment, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		mode := modeprofile.ParseMode(seg.Mode)
		if mode == "" || !mode.Valid() {
			continue
		}
		if !strings.Contains(request, seg.Text) {
			continue
		}
		if mode != modeprofile.ModeChat && len(strings.Fields(seg.Text)) < s.cfg.MinSegmentLength {
			continue
		}
		out = append(out, s.buildSegment(seg.Text, mode, seg.Reason, seg.StartPos, seg.EndPos))
	}
	return out, true
}

func (s *Segmenter) buildSegment(text string, mode modeprofile.Mode, reason string, start, end int) RequestSegment {
	return RequestSegment{
		Text:     text,
		Mode:     mode,
		Priority: s.cfg.priority(mode),
		Reason:   reason,
		StartPos: start,
		EndPos:   end,
		Profile:  s.registry.Build(modeprofile.Analysis{Mode: string(mode)}),
	}
}

// sortAndMerge applies spec §4.5 steps 4-6: merge consecutive segments whose
// mode permits merging with the next, then cap at MaxSegments. Per step 5,
// this never reorders by start_pos — emission order is trusted as-is.
func (s *Segmenter) sortAndMerge(segments []RequestSegment) []RequestSegment {
	merged := make([]RequestSegment, 0, len(segments))
	i := 0
	for i < len(segments) {
		cur := segments[i]
		if i+1 < len(segments) && s.cfg.mergeableWith(cur.Mode, segments[i+1].Mode) {
			next := segments[i+1]
			text := strings.TrimSpace(cur.Text + " " + next.Text)
			merged = append(merged, RequestSegment{
				Text: text, Mode: cur.Mode, Priority: cur.Priority,
				Reason: "merged " + string(cur.Mode) + "+" + string(next.Mode),
				StartPos: cur.StartPos, EndPos: next.EndPos,
				Profile: cur.Profile,
			})
			i += 2
			continue
		}
		merged = append(merged, cur)
		i++
	}

	if len(merged) > s.cfg.MaxSegments && s.cfg.MaxSegments > 0 {
		merged = merged[:s.cfg.MaxSegments]
	}
	return merged
}

// Stats reports segmentation call counts for observability (mirrors the
// original's get_stats fallback-rate tracking).
func (s *Segmenter) Stats() (total, fallback int64) {
	return s.segmentations, s.fallbacks
}
