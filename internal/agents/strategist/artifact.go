package strategist

import (
	"os"
	"regexp"
)

// ArtifactChecker reports whether a claimed filesystem path exists,
// backing evaluate_execution's artifact-verification override (spec §4.6).
type ArtifactChecker interface {
	Exists(path string) bool
}

type osArtifactChecker struct{}

func (osArtifactChecker) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// artifactPathPattern pulls absolute and home-relative filesystem paths out
// of free-form step-result text: "wrote /etc/nginx/nginx.conf", "created
// ~/docs/report.md", "saved to ./out/build.log". Deliberately conservative —
// only paths with at least two '/'-separated segments are considered
// claims, so plain words (and single-segment paths such as "~/report.md")
// never get treated as artifacts.
var artifactPathPattern = regexp.MustCompile(`(?:~|\.{1,2})?(?:/[\w.\-]+){2,}`)

// extractClaimedArtifacts scans every StepResult's Result and Error text for
// filesystem-path-shaped substrings, returning the deduplicated set.
func extractClaimedArtifacts(texts []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range texts {
		for _, m := range artifactPathPattern.FindAllString(t, -1) {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}
