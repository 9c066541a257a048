package guards

import (
	"strings"
	"testing"
)

// TestNoDirectForwardedHeaderParsing enforces that no code outside the realip
// package reads X-Forwarded-For or X-Real-IP directly. Everything else asks
// realip for the client address so trusted-proxy rules apply in one place.
func TestNoDirectForwardedHeaderParsing(t *testing.T) {
	forbidden := []string{"X-Forwarded-For", "X-Real-IP"}
	allowed := []string{"internal/platform/http/realip/", "internal/guards/"}

	repoRoot := findRepoRoot(t)
	var violations []string
	for _, f := range walkGoFiles(t, repoRoot, repoRoot) {
		skip := false
		for _, a := range allowed {
			if strings.HasPrefix(f.rel, a) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		for _, token := range forbidden {
			if strings.Contains(f.content, token) {
				violations = append(violations, f.rel)
				break
			}
		}
	}
	if len(violations) > 0 {
		t.Fatalf("found forwarded header references outside realip:\n%s", strings.Join(violations, "\n"))
	}
}
