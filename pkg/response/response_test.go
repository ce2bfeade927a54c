package response

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestSuccess(t *testing.T) {
	data := map[string]string{"name": "test"}
	resp := Success(data)

	if !resp.Success {
		t.Error("Expected success to be true")
	}
	if resp.Data == nil {
		t.Error("Expected data to be set")
	}
	if resp.Error != nil {
		t.Error("Expected error to be nil")
	}
}

func TestSuccess_JSONFormat(t *testing.T) {
	resp := Success(map[string]int64{"id": 123})

	jsonBytes, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Failed to marshal response: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &parsed); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	if parsed["success"] != true {
		t.Errorf("Expected success=true, got %v", parsed["success"])
	}
	if _, ok := parsed["error"]; ok {
		t.Error("Expected error field to be omitted")
	}
}

func TestError(t *testing.T) {
	resp := Error(ErrCodeProvisionFailed, "bot credential already registered")

	if resp.Success {
		t.Error("Expected success to be false")
	}
	if resp.Data != nil {
		t.Error("Expected data to be nil")
	}
	if resp.Error == nil {
		t.Fatal("Expected error to be set")
	}
	if resp.Error.Code != ErrCodeProvisionFailed {
		t.Errorf("Expected code %s, got %s", ErrCodeProvisionFailed, resp.Error.Code)
	}
	if resp.Error.Message != "bot credential already registered" {
		t.Errorf("Unexpected message %q", resp.Error.Message)
	}
}

func TestDefaultMessages(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
		code string
		msg  string
	}{
		{"unauthorized", Unauthorized(""), ErrCodeUnauthorized, "Authentication required"},
		{"forbidden", Forbidden(""), ErrCodeForbidden, "Access denied"},
		{"not found", NotFound(""), ErrCodeNotFound, "Resource not found"},
		{"internal", InternalError(""), ErrCodeInternalError, "An internal error occurred"},
		{"unavailable", ServiceUnavailable(""), ErrCodeServiceUnavailable, "Service temporarily unavailable"},
		{"custom", NotFound("tenant not found"), ErrCodeNotFound, "tenant not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.resp.Error.Code != tt.code {
				t.Errorf("code = %s, want %s", tt.resp.Error.Code, tt.code)
			}
			if tt.resp.Error.Message != tt.msg {
				t.Errorf("message = %q, want %q", tt.resp.Error.Message, tt.msg)
			}
		})
	}
}

func TestValidationFailed(t *testing.T) {
	resp := ValidationFailed(map[string]string{"name": "required"})
	if resp.Error.Details["name"] != "required" {
		t.Errorf("Expected details to carry field errors, got %v", resp.Error.Details)
	}
}

func TestGetHTTPStatus(t *testing.T) {
	tests := map[string]int{
		ErrCodeBadRequest:       http.StatusBadRequest,
		ErrCodeNotFound:         http.StatusNotFound,
		ErrCodeProvisionFailed:  http.StatusBadRequest,
		ErrCodeInvalidSignature: http.StatusBadRequest,
		ErrCodeTenantInactive:   http.StatusForbidden,
		"SOMETHING_ELSE":        http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := GetHTTPStatus(code); got != want {
			t.Errorf("GetHTTPStatus(%s) = %d, want %d", code, got, want)
		}
	}
}
