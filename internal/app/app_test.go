package app

import (
	"testing"

	"github.com/policydesk/policydesk/internal/config"
	"github.com/policydesk/policydesk/internal/rag"
)

func TestAnswerOptions(t *testing.T) {
	a := &App{Config: &config.Config{
		HistoryMaxTurns:   8,
		MaxSnippetChars:   500,
		ExtraInstructions: "answer in French",
	}}

	opts := a.AnswerOptions()
	want := rag.AnswerOptions{
		HistoryMaxTurns:   8,
		MaxSnippetChars:   500,
		ExtraInstructions: "answer in French",
	}
	if opts != want {
		t.Errorf("AnswerOptions() = %+v, want %+v", opts, want)
	}
}

func TestCloseWithoutSetup(t *testing.T) {
	a := &App{}
	if err := a.Close(); err != nil {
		t.Errorf("Close() on empty App error = %v", err)
	}
}

func TestCloseRunsCleanups(t *testing.T) {
	var dbClosed, otelClosed bool
	a := &App{
		dbCleanup:   func() { dbClosed = true },
		otelCleanup: func() { otelClosed = true },
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !dbClosed {
		t.Error("database cleanup not run")
	}
	if !otelClosed {
		t.Error("otel cleanup not run")
	}
}
