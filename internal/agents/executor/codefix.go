package executor

import "context"

// CodeFix is the code-analysis collaborator's verdict on an attempted
// automatic repair.
type CodeFix struct {
	Applied bool
	Summary string
}

// CodeAnalyzer abstracts the vibe.vibe_analyze_error collaborator invoked
// as the last rung of the reflexion loop (spec §4.7 step 10). Out of scope
// for this repo beyond the interface: no concrete static-analysis backend
// ships here.
type CodeAnalyzer interface {
	AnalyzeError(ctx context.Context, errText string, autoFix bool) (CodeFix, error)
}
