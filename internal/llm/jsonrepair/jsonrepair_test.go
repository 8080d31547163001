// File path: internal/llm/jsonrepair/jsonrepair_test.go
package jsonrepair

import (
	"context"
	"errors"
	"testing"

	"github.com/coderev-ai/coderev/internal/llm"
)

type stubProvider struct {
	response string
	err      error
	calls    int
}

func (s *stubProvider) Generate(ctx context.Context, system, prompt string, opts llm.GenerateOptions) (string, error) {
	s.calls++
	return s.response, s.err
}

func (s *stubProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func (s *stubProvider) Available(ctx context.Context) error { return nil }
func (s *stubProvider) Name() string                        { return "stub" }

func TestParseDirect(t *testing.T) {
	var out map[string]int
	if err := Parse(`{"a": 1}`, &out); err != nil {
		t.Fatalf("direct parse: %v", err)
	}
	if out["a"] != 1 {
		t.Fatalf("expected a=1, got %v", out)
	}
}

func TestParseExtractsEmbeddedObject(t *testing.T) {
	raw := "Here is your result:\n```json\n{\"findings\": []}\n```\nHope that helps!"
	var out map[string]interface{}
	if err := Parse(raw, &out); err != nil {
		t.Fatalf("embedded parse: %v", err)
	}
	if _, ok := out["findings"]; !ok {
		t.Fatalf("expected findings key, got %v", out)
	}
}

func TestParseRejectsEmptyAndObjectless(t *testing.T) {
	var out map[string]interface{}
	if err := Parse("   ", &out); err == nil {
		t.Fatalf("expected error for empty input")
	}
	if err := Parse("no json here", &out); err == nil {
		t.Fatalf("expected error for input with no object")
	}
}

func TestRepairAndParseSkipsRepairWhenValid(t *testing.T) {
	provider := &stubProvider{}
	var out map[string]int
	if err := RepairAndParse(context.Background(), provider, `{"x": 2}`, &out); err != nil {
		t.Fatalf("repair and parse: %v", err)
	}
	if provider.calls != 0 {
		t.Fatalf("expected no repair calls for valid input, got %d", provider.calls)
	}
}

func TestRepairAndParseSingleRoundTrip(t *testing.T) {
	provider := &stubProvider{response: `{"fixed": true}`}
	var out map[string]bool
	if err := RepairAndParse(context.Background(), provider, `{"fixed": tru`, &out); err != nil {
		t.Fatalf("repair and parse: %v", err)
	}
	if !out["fixed"] {
		t.Fatalf("expected repaired payload, got %v", out)
	}
	if provider.calls != 1 {
		t.Fatalf("expected exactly one repair call, got %d", provider.calls)
	}
}

func TestRepairAndParseTerminalFailure(t *testing.T) {
	provider := &stubProvider{response: "still not json"}
	var out map[string]bool
	err := RepairAndParse(context.Background(), provider, "garbage", &out)
	if !errors.Is(err, ErrUnparseable) {
		t.Fatalf("expected ErrUnparseable, got %v", err)
	}
	if provider.calls != 1 {
		t.Fatalf("repair must be attempted exactly once, got %d calls", provider.calls)
	}
}

func TestRepairAndParseNilProvider(t *testing.T) {
	var out map[string]bool
	if err := RepairAndParse(context.Background(), nil, "garbage", &out); !errors.Is(err, ErrUnparseable) {
		t.Fatalf("expected ErrUnparseable without a provider, got %v", err)
	}
}
