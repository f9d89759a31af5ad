package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"incentives-backend/internal/metrics"
	"incentives-backend/internal/models"

	"github.com/sirupsen/logrus"
)

// ReportClient abstracts the LLM provider behind a single call.
type ReportClient interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Provider() string
}

// ReportService asks the configured LLM for efficiency commentary and
// parses its answer into an EfficiencyReport. The model response is
// untrusted text: parse failures are repaired where possible and
// retried with a fresh completion otherwise.
type ReportService struct {
	client      ReportClient
	maxAttempts int
}

// NewReportService creates a new report service.
func NewReportService(client ReportClient, maxAttempts int) *ReportService {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &ReportService{client: client, maxAttempts: maxAttempts}
}

// Provider names the underlying LLM provider.
func (s *ReportService) Provider() string {
	if s.client == nil {
		return ""
	}
	return s.client.Provider()
}

// Generate produces the report for one aggregate. Each attempt is a
// full completion plus parse; the last parse error is returned when
// all attempts fail. Callers ship the dashboard without commentary in
// that case.
func (s *ReportService) Generate(ctx context.Context, agg *models.Aggregate) (*models.EfficiencyReport, error) {
	if s.client == nil {
		return nil, fmt.Errorf("no LLM client configured")
	}
	userPrompt := BuildReportPrompt(agg)

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		raw, err := s.client.CompleteWithSystem(ctx, reportSystemPrompt, userPrompt)
		if err != nil {
			lastErr = err
			logrus.WithError(err).WithField("attempt", attempt).Warn("report completion failed")
			continue
		}

		report, repaired, err := parseReport(raw)
		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt, err)
			metrics.LLMParseFailures.WithLabelValues(s.Provider(), "false").Inc()
			logrus.WithError(err).WithField("attempt", attempt).Warn("report response unparseable, retrying")
			continue
		}
		if repaired {
			metrics.LLMParseFailures.WithLabelValues(s.Provider(), "true").Inc()
		}

		logrus.WithFields(logrus.Fields{
			"attempt":  attempt,
			"markets":  len(report.Markets),
			"repaired": repaired,
		}).Info("✅ efficiency report generated")
		return report, nil
	}

	return nil, fmt.Errorf("report generation failed after %d attempts: %w", s.maxAttempts, lastErr)
}

// parseReport turns a raw completion into a report. The repaired flag
// reports whether heuristics had to touch the JSON first.
func parseReport(raw string) (*models.EfficiencyReport, bool, error) {
	candidate := extractJSON(stripCodeFences(raw))
	if candidate == "" {
		return nil, false, fmt.Errorf("no JSON object found in response (%d bytes)", len(raw))
	}

	var report models.EfficiencyReport
	if err := json.Unmarshal([]byte(candidate), &report); err == nil {
		return &report, false, nil
	}

	repaired := repairJSON(candidate)
	if err := json.Unmarshal([]byte(repaired), &report); err != nil {
		return nil, false, fmt.Errorf("invalid report JSON: %w", err)
	}
	return &report, true, nil
}

// stripCodeFences removes a surrounding ```json ... ``` block if the
// model wrapped its answer despite the instructions.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// extractJSON returns the first balanced top-level JSON object in s,
// tracking strings and escapes so braces inside values don't count.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}

	// Unbalanced: the completion was truncated mid-object. Return what
	// we have so repairJSON can close it.
	return s[start:]
}

// repairJSON applies the fixups that cover the common model failure
// modes: raw newlines inside string values, trailing commas, and a
// truncated tail missing its closing brackets.
func repairJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	var stack []byte

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			b.WriteByte(ch)
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			b.WriteByte(ch)
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
			b.WriteByte(ch)
		case '\n', '\r', '\t':
			if inString {
				// Literal control characters are invalid inside JSON
				// strings; escape them.
				switch ch {
				case '\n':
					b.WriteString(`\n`)
				case '\r':
					b.WriteString(`\r`)
				case '\t':
					b.WriteString(`\t`)
				}
			} else {
				b.WriteByte(ch)
			}
		case '{', '[':
			if !inString {
				stack = append(stack, ch)
			}
			b.WriteByte(ch)
		case '}', ']':
			if !inString && len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			b.WriteByte(ch)
		default:
			b.WriteByte(ch)
		}
	}

	out := b.String()

	// Close a string the truncation cut open.
	if inString {
		out += `"`
	}

	// Drop a dangling comma before closing anything.
	trimmed := strings.TrimRight(out, " \n\r\t")
	if strings.HasSuffix(trimmed, ",") {
		out = strings.TrimSuffix(trimmed, ",")
	}

	// Close unterminated objects/arrays innermost-first.
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			out += "}"
		} else {
			out += "]"
		}
	}

	return dropTrailingCommas(out)
}

// dropTrailingCommas removes commas that sit (possibly across
// whitespace) directly before a closing brace or bracket.
func dropTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			b.WriteByte(ch)
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			b.WriteByte(ch)
			if inString {
				escaped = true
			}
			continue
		case '"':
			inString = !inString
		case ',':
			if !inString {
				j := i + 1
				for j < len(s) && (s[j] == ' ' || s[j] == '\n' || s[j] == '\r' || s[j] == '\t') {
					j++
				}
				if j < len(s) && (s[j] == '}' || s[j] == ']') {
					continue
				}
			}
		}
		b.WriteByte(ch)
	}
	return b.String()
}
