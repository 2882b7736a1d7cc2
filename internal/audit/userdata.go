package audit

import (
	"context"
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/catherinevee/cloudlens/internal/models"
)

// User-data inspection patterns. Variable references ($VAR, ${VAR}) do not
// count as hardcoded values.
var (
	passwordAssign = regexp.MustCompile(`(?i)password\s*[=:]\s*(\S+)`)
	passwdAssign   = regexp.MustCompile(`(?i)passwd\s*[=:]\s*(\S+)`)
	passwordFlag   = regexp.MustCompile(`-p\s+(\S+)`)
	awsAccessKey   = regexp.MustCompile(`AKIA[0-9A-Z]{16}`)
	secretAssign   = regexp.MustCompile(`(?i)(key|token|secret)\s*[=:]\s*['"]?([A-Za-z0-9/+=]{20,})`)
	httpURL        = regexp.MustCompile(`http://[^\s'"]+`)
)

// auditUserData fetches instance user-data blobs (chunked below the
// parameter cap by the store) and applies the secret, URL, and hardening
// patterns.
func (e *Engine) auditUserData(ctx context.Context, instances []models.ResourceRef) ([]Finding, error) {
	if len(instances) == 0 {
		return nil, nil
	}
	byID := make(map[string]models.ResourceRef, len(instances))
	ids := make([]string, 0, len(instances))
	for _, ref := range instances {
		byID[ref.ID] = ref
		ids = append(ids, ref.ID)
	}

	blobs, err := e.store.GetBlobs(ctx, ids, "userData")
	if err != nil {
		return nil, err
	}

	var findings []Finding
	for _, blob := range blobs {
		if ctx.Err() != nil {
			return nil, nil
		}
		ref, known := byID[blob.ResourceID]
		if !known {
			continue
		}
		content := decodeUserData(blob.Content)
		findings = append(findings, inspectUserData(content, ref)...)
	}
	return findings, nil
}

// decodeUserData unwraps the base64 encoding cloud-init user data usually
// carries; raw scripts pass through unchanged.
func decodeUserData(content string) string {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(content))
	if err != nil {
		return content
	}
	return string(decoded)
}

// inspectUserData applies the pattern rules to one decoded payload.
func inspectUserData(content string, ref models.ResourceRef) []Finding {
	var findings []Finding
	emit := func(severity Severity, title, detail string) {
		findings = append(findings, Finding{Severity: severity, Title: title, Detail: detail, Resource: ref})
	}

	if hasHardcodedValue(passwordAssign, content, 1) ||
		hasHardcodedValue(passwdAssign, content, 1) ||
		hasHardcodedValue(passwordFlag, content, 1) {
		emit(SeverityCritical, "Hardcoded password in instance userData", "password literal in boot script")
	}

	if awsAccessKey.MatchString(content) || hasHardcodedValue(secretAssign, content, 2) {
		emit(SeverityHigh, "Potential API key or token in instance userData", "credential-shaped literal in boot script")
	}

	for _, url := range httpURL.FindAllString(content, -1) {
		if strings.Contains(url, "localhost") || strings.Contains(url, "127.0.0.1") {
			continue
		}
		emit(SeverityMedium, "Insecure HTTP URL in instance userData", url)
		break
	}

	if strings.Contains(content, "setenforce 0") || strings.Contains(content, "iptables -F") {
		emit(SeverityMedium, "Security controls disabled in instance userData", "host hardening disabled at boot")
	}

	return findings
}

// hasHardcodedValue reports whether any match's captured value is a literal
// rather than a shell variable reference.
func hasHardcodedValue(pattern *regexp.Regexp, content string, group int) bool {
	for _, match := range pattern.FindAllStringSubmatch(content, -1) {
		if len(match) <= group {
			continue
		}
		value := match[group]
		if strings.HasPrefix(value, "$") {
			continue
		}
		return true
	}
	return false
}
