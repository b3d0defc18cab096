package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/minahq/mina/pkg/provider/llm"
	llmmock "github.com/minahq/mina/pkg/provider/llm/mock"
)

func TestLLMFallback_PrimarySuccess(t *testing.T) {
	primary := &llmmock.Provider{
		Model:            "primary-model",
		CompleteResponse: &llm.CompletionResponse{Content: "from primary"},
	}
	secondary := &llmmock.Provider{
		Model:            "secondary-model",
		CompleteResponse: &llm.CompletionResponse{Content: "from secondary"},
	}

	f := NewLLMFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("secondary", secondary)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.UserMessage("hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from primary" {
		t.Errorf("Content = %q, want from primary", resp.Content)
	}
	if len(secondary.CompleteCalls) != 0 {
		t.Errorf("secondary was called %d times, want 0", len(secondary.CompleteCalls))
	}
}

func TestLLMFallback_FailoverToSecondary(t *testing.T) {
	primary := &llmmock.Provider{
		CompleteErr: errors.New("primary down"),
	}
	secondary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "from secondary"},
	}

	f := NewLLMFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("secondary", secondary)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.UserMessage("hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from secondary" {
		t.Errorf("Content = %q, want from secondary", resp.Content)
	}
	if len(primary.CompleteCalls) != 1 {
		t.Errorf("primary was called %d times, want 1", len(primary.CompleteCalls))
	}
}

func TestLLMFallback_AllFail(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errors.New("down")}
	f := NewLLMFallback(primary, "primary", FallbackConfig{})

	_, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.UserMessage("hi")},
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallback_ModelIDIsPrimary(t *testing.T) {
	primary := &llmmock.Provider{Model: "gpt-4o-mini"}
	secondary := &llmmock.Provider{Model: "llama3"}

	f := NewLLMFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("secondary", secondary)

	if got := f.ModelID(); got != "gpt-4o-mini" {
		t.Errorf("ModelID = %q, want gpt-4o-mini", got)
	}
}
