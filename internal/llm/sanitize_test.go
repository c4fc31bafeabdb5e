package llm

import "testing"

func TestStripThinkingTags_NoTags(t *testing.T) {
	input := "A normal response without any thinking tags."
	if got := StripThinkingTags(input); got != input {
		t.Errorf("expected unchanged output, got: %q", got)
	}
}

func TestStripThinkingTags_SingleBlock(t *testing.T) {
	input := "Answer: <think>internal reasoning</think> done."
	expected := "Answer:  done."
	if got := StripThinkingTags(input); got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}

func TestStripThinkingTags_UnclosedTag(t *testing.T) {
	input := "Some text before <think>reasoning that never ends"
	expected := "Some text before"
	if got := StripThinkingTags(input); got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}

func TestStripMarkdownFences_Fenced(t *testing.T) {
	input := "```json\n{\"graph\": []}\n```"
	expected := "{\"graph\": []}"
	if got := StripMarkdownFences(input); got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}

func TestStripMarkdownFences_NoFences(t *testing.T) {
	input := "{\"graph\": []}"
	if got := StripMarkdownFences(input); got != input {
		t.Errorf("expected unchanged output, got %q", got)
	}
}

func TestStripMarkdownFences_ThinkingThenFence(t *testing.T) {
	input := "<think>plan</think>```\n{}\n```"
	expected := "{}"
	if got := StripMarkdownFences(input); got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}
