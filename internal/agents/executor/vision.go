package executor

import (
	"context"

	"trinity.dev/orchestrator/internal/plan"
)

// ScreenCapture captures the current screen for a vision pre-check (spec
// §4.7 step 3). Out of scope for this repo beyond the interface: no
// concrete capture backend ships here (platform-specific screen capture is
// outside the orchestrator's core).
type ScreenCapture interface {
	Capture(ctx context.Context) ([]byte, error)
}

// VisionLocation is what a VisionLocator reports about a target UI
// element, or a blocking condition instead.
type VisionLocation struct {
	Found       bool
	X, Y        int
	Blocked     bool
	BlockReason string
}

// VisionLocator asks a vision-capable model to locate a target UI element
// in a screenshot.
type VisionLocator interface {
	Locate(ctx context.Context, screenshot []byte, target string) (VisionLocation, error)
}

// visionPreCheck implements sub-phase 3: capture a screenshot and ask the
// vision collaborator to locate the step's target element. A reported
// blocker (CAPTCHA, verification challenge) short-circuits the step with a
// tool_error Failure whose detail names the blocker; no voice message is
// attached. Otherwise the located coordinates are held on the Executor
// (pendingVisionCoords) until the normalize sub-phase copies them into the
// action's x/y args.
func (e *Executor) visionPreCheck(ctx context.Context, step plan.Step) (plan.Outcome, bool) {
	shot, err := e.screen.Capture(ctx)
	if err != nil {
		return plan.Outcome{}, false
	}
	loc, err := e.vision.Locate(ctx, shot, step.ExpectedResult)
	if err != nil {
		return plan.Outcome{}, false
	}
	if loc.Blocked {
		return plan.Failure(plan.KindToolError, "visual blocker encountered: "+loc.BlockReason), true
	}
	if loc.Found {
		e.pendingVisionCoords = &loc
	}
	return plan.Outcome{}, false
}
