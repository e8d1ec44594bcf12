package validation_test

import (
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/geocoder89/sessionauth/internal/domain/user"
	"github.com/geocoder89/sessionauth/internal/validation"
)

func TestStruct_SignUpRequest(t *testing.T) {
	tests := []struct {
		name      string
		req       user.SignUpRequest
		wantRules map[string]string
	}{
		{
			name: "valid",
			req:  user.SignUpRequest{Name: "Ann", Email: "ann@x.com", Password: "secret1"},
		},
		{
			name:      "short name and password",
			req:       user.SignUpRequest{Name: "A", Email: "ann@x.com", Password: "12345"},
			wantRules: map[string]string{"name": "min", "password": "min"},
		},
		{
			name:      "bad email",
			req:       user.SignUpRequest{Name: "Ann", Email: "not-an-email", Password: "secret1"},
			wantRules: map[string]string{"email": "email"},
		},
		{
			name:      "everything missing",
			req:       user.SignUpRequest{},
			wantRules: map[string]string{"name": "required", "email": "required", "password": "required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validation.Struct(tt.req)

			if len(tt.wantRules) == 0 {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			var verr *validation.Error
			if !errors.As(err, &verr) {
				t.Fatalf("expected *validation.Error, got %v", err)
			}

			found := map[string]string{}
			for _, f := range verr.Fields {
				found[f.Field] = f.Rule
				if f.Message == "" {
					t.Fatalf("field %q has empty message", f.Field)
				}
			}

			for field, rule := range tt.wantRules {
				if found[field] != rule {
					t.Fatalf("field %q: got rule %q want %q (all=%v)", field, found[field], rule, found)
				}
			}
		})
	}
}

func TestErrorString(t *testing.T) {
	err := validation.Field("password", "max", "must be at most 72 bytes")
	if err.Error() != "validation failed: password must be at most 72 bytes" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestFromDecode(t *testing.T) {
	var typed struct {
		Name string `json:"name"`
	}
	typeErr := json.Unmarshal([]byte(`{"name":5}`), &typed)
	syntaxErr := json.Unmarshal([]byte(`{"name"`), &typed)

	tests := []struct {
		name       string
		err        error
		wantDecode string
		wantField  string
		wantNil    bool
	}{
		{name: "type mismatch", err: typeErr, wantDecode: "invalid_json_type", wantField: "name"},
		{name: "syntax", err: syntaxErr, wantDecode: "invalid_json_syntax"},
		{name: "truncated stream", err: io.ErrUnexpectedEOF, wantDecode: "invalid_json_syntax"},
		{name: "unrelated", err: errors.New("boom"), wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validation.FromDecode(tt.err)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("expected nil, got %+v", got)
				}
				return
			}
			if got == nil || got.Decode != tt.wantDecode {
				t.Fatalf("got %+v, want decode %q", got, tt.wantDecode)
			}
			if tt.wantField != "" && (len(got.Fields) != 1 || got.Fields[0].Field != tt.wantField) {
				t.Fatalf("unexpected fields: %+v", got.Fields)
			}
		})
	}
}
