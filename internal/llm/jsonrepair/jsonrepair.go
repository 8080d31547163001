// File path: internal/llm/jsonrepair/jsonrepair.go

// Package jsonrepair recovers structured output from model responses that
// were supposed to be JSON but are wrapped in prose or markdown, or are
// slightly malformed. The recovery ladder has three rungs: direct decode,
// first-object substring decode, and a single repair round-trip through the
// completion backend.
package jsonrepair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/coderev-ai/coderev/internal/common"
	"github.com/coderev-ai/coderev/internal/llm"
)

// ErrUnparseable is the deterministic terminal outcome when every rung of
// the ladder has failed.
var ErrUnparseable = errors.New("output unparseable after repair")

const repairSystemPrompt = "You are a JSON repair tool. Output ONLY valid JSON."

// Parse attempts a direct decode, then a decode of the substring between the
// first '{' and the last '}'.
func Parse(raw string, out interface{}) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("empty output")
	}
	if err := json.Unmarshal([]byte(raw), out); err == nil {
		return nil
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return errors.New("no object boundary found")
	}
	return json.Unmarshal([]byte(raw[start:end+1]), out)
}

// RepairAndParse runs the full ladder. The repair call is issued exactly
// once, at temperature zero so it stays deterministic, and only a direct
// parse of its result is attempted afterwards.
func RepairAndParse(ctx context.Context, provider llm.Provider, raw string, out interface{}) error {
	if err := Parse(raw, out); err == nil {
		return nil
	}
	if provider == nil {
		return ErrUnparseable
	}
	common.Logger().Debug("jsonrepair: output malformed, attempting repair", "chars", len(raw))
	prompt := fmt.Sprintf(`The following text was intended to be valid JSON but is malformed.

Fix it so that:
- The output is VALID JSON
- No explanation
- No markdown
- No extra text

Text:
%s`, raw)
	repaired, err := provider.Generate(ctx, repairSystemPrompt, prompt, llm.GenerateOptions{
		Temperature: 0,
		MaxTokens:   llm.DefaultGenerateOptions().MaxTokens,
	})
	if err != nil {
		common.Logger().Warn("jsonrepair: repair request failed", "error", err)
		return ErrUnparseable
	}
	if err := Parse(repaired, out); err != nil {
		return ErrUnparseable
	}
	return nil
}
