package domain

import "testing"

func TestAttachShareURLs(t *testing.T) {
	tasks := []Task{
		{ID: "t1", Public: true},
		{ID: "t2", Public: false},
	}
	got := AttachShareURLs(tasks, "https://tasks.example")
	if got[0].ShareURL != "https://tasks.example/task/t1" {
		t.Fatalf("unexpected share link %q", got[0].ShareURL)
	}
	if got[1].ShareURL != "" {
		t.Fatalf("private task must not carry a share link, got %q", got[1].ShareURL)
	}
}

func TestAttachShareURLsNoBaseURL(t *testing.T) {
	got := AttachShareURLs([]Task{{ID: "t1", Public: true}}, "")
	if got[0].ShareURL != "" {
		t.Fatalf("expected no share link without a base URL, got %q", got[0].ShareURL)
	}
}
