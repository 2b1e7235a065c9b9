package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewSession(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	s := NewSession(now)

	if !s.IsNew() {
		t.Error("new session should have no id")
	}
	if s.LastAccess != 1_700_000_000_123 {
		t.Errorf("LastAccess = %d, want 1700000000123", s.LastAccess)
	}
	if s.Attributes == nil {
		t.Error("Attributes map should be initialized")
	}
	if s.Generated {
		t.Error("Generated should be false")
	}
}

func TestSession_Touch(t *testing.T) {
	s := NewSession(time.UnixMilli(1000))
	s.Touch(time.UnixMilli(5000))

	if s.LastAccess != 5000 {
		t.Errorf("LastAccess = %d, want 5000", s.LastAccess)
	}
	if !s.LastAccessTime().Equal(time.UnixMilli(5000)) {
		t.Errorf("LastAccessTime() = %v", s.LastAccessTime())
	}
}

func TestSession_Attributes(t *testing.T) {
	var s Session
	s.Set("userId", 42)

	v, ok := s.Get("userId")
	if !ok || v != 42 {
		t.Errorf("Get(userId) = %v, %v", v, ok)
	}

	s.Delete("userId")
	if _, ok := s.Get("userId"); ok {
		t.Error("attribute should be deleted")
	}
}

func TestSession_Clone(t *testing.T) {
	s := &Session{
		ID:         "abc",
		LastAccess: 10,
		Attributes: map[string]any{
			"tags":    []any{"a", "b"},
			"profile": map[string]any{"name": "x"},
		},
		Generated: true,
	}

	c := s.Clone()
	c.Attributes["profile"].(map[string]any)["name"] = "y"
	c.Attributes["tags"].([]any)[0] = "z"
	c.Set("extra", true)

	if s.Attributes["profile"].(map[string]any)["name"] != "x" {
		t.Error("clone should deep copy nested maps")
	}
	if s.Attributes["tags"].([]any)[0] != "a" {
		t.Error("clone should deep copy slices")
	}
	if _, ok := s.Attributes["extra"]; ok {
		t.Error("clone should not share the attribute map")
	}
	if c.ID != s.ID || c.LastAccess != s.LastAccess || !c.Generated {
		t.Error("clone should copy scalar fields")
	}
}

func TestSession_Validate(t *testing.T) {
	tests := []struct {
		name    string
		attrs   map[string]any
		wantErr bool
	}{
		{"empty", nil, false},
		{"scalars", map[string]any{"a": 1, "b": "x", "c": true, "d": 1.5, "e": nil}, false},
		{"nested", map[string]any{"m": map[string]any{"n": []any{1, "two"}}}, false},
		{"reserved _id", map[string]any{"_id": "x"}, true},
		{"reserved id", map[string]any{"id": "x"}, true},
		{"reserved lastAccess", map[string]any{"lastAccess": 1}, true},
		{"empty key", map[string]any{"": 1}, true},
		{"unsupported type", map[string]any{"ch": make(chan int)}, true},
		{"unsupported nested", map[string]any{"m": map[string]any{"f": func() {}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{Attributes: tt.attrs}
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("Validate() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestIsReservedField(t *testing.T) {
	for _, name := range []string{"_id", "id", "lastAccess"} {
		if !IsReservedField(name) {
			t.Errorf("IsReservedField(%q) = false", name)
		}
	}
	for _, name := range []string{"userId", "ID", "last_access"} {
		if IsReservedField(name) {
			t.Errorf("IsReservedField(%q) = true", name)
		}
	}
}
