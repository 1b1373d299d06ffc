package core

import (
	"errors"
	"strings"
	"testing"
)

func TestParsePromptRequest_Defaults(t *testing.T) {
	req, err := ParsePromptRequest([]byte(`{"prompt":"plot x"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.MaxSteps != DefaultMaxSteps {
		t.Errorf("expected default max steps %d, got %d", DefaultMaxSteps, req.MaxSteps)
	}
}

func TestParsePromptRequest_ExplicitZeroSteps(t *testing.T) {
	req, err := ParsePromptRequest([]byte(`{"prompt":"what is $x","max_steps":0}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.MaxSteps != 0 {
		t.Errorf("explicit zero must not be defaulted, got %d", req.MaxSteps)
	}
}

func TestParsePromptRequest_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"empty prompt", `{"prompt":"  "}`, "prompt"},
		{"missing prompt", `{"max_steps":2}`, "prompt"},
		{"negative steps", `{"prompt":"p","max_steps":-1}`, "max_steps"},
		{"steps over cap", `{"prompt":"p","max_steps":17}`, "max_steps"},
		{"not json", `{`, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePromptRequest([]byte(tc.body))
			if err == nil {
				t.Fatal("expected an error")
			}
			var perr *Error
			if !errors.As(err, &perr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if perr.Code != CodeInvalidRequest {
				t.Errorf("code = %q, want %q", perr.Code, CodeInvalidRequest)
			}
			if perr.Field != tc.field {
				t.Errorf("field = %q, want %q", perr.Field, tc.field)
			}
		})
	}
}

func TestParsePromptRequest_ContextCaps(t *testing.T) {
	big := strings.Repeat("x", MaxContextChars+1)
	_, err := ParsePromptRequest([]byte(`{"prompt":"p","context":{"preceding_code":"` + big + `"}}`))
	var perr *Error
	if !errors.As(err, &perr) || perr.Field != "context" {
		t.Fatalf("expected context cap violation, got %v", err)
	}
}

func TestFunctionInfo_FlexibleUnmarshal(t *testing.T) {
	req, err := ParsePromptRequest([]byte(`{
		"prompt": "p",
		"context": {
			"functions": {
				"load": "load(path: str) -> DataFrame",
				"save": {"signature": "save(df, path)", "description": "write parquet"}
			}
		}
	}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Context.Functions["load"].Signature != "load(path: str) -> DataFrame" {
		t.Errorf("bare string signature not accepted: %+v", req.Context.Functions["load"])
	}
	if req.Context.Functions["save"].Description != "write parquet" {
		t.Errorf("structured form lost description: %+v", req.Context.Functions["save"])
	}
}

func TestToolCall_InputAccumulation(t *testing.T) {
	call := NewToolCall("c1", "filter")
	call.AppendInput(`{"col": "price", `)
	call.AppendInput(`"min": 10, "active": true}`)
	want := `{"col": "price", "min": 10, "active": true}`
	if got := call.RawInput(); got != want {
		t.Errorf("RawInput() = %q, want %q", got, want)
	}
}

func TestToolCall_EmptyInputIsEmptyObject(t *testing.T) {
	call := NewToolCall("c1", "list_tables")
	if got := call.RawInput(); got != "{}" {
		t.Errorf("RawInput() = %q, want {}", got)
	}
}
