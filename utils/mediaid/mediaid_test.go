package mediaid_test

import (
	"strings"
	"testing"

	"canvas-server/services/media-engine/utils/mediaid"
)

func TestNew(t *testing.T) {
	id := mediaid.New()
	if !strings.HasPrefix(id, "med_") {
		t.Errorf("New() = %q, want med_ prefix", id)
	}
	if len(id) != len("med_")+26 {
		t.Errorf("New() length = %d, want %d", len(id), len("med_")+26)
	}
	if id != strings.ToLower(id) {
		t.Errorf("New() = %q, want lowercase", id)
	}
}

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := mediaid.New()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"generated id", mediaid.New(), true},
		{"missing prefix", "01hxyzabcdefghjkmnpqrstvwx", false},
		{"wrong prefix", "usr_01hxyzabcdefghjkmnpqrstvwx", false},
		{"empty", "", false},
		{"prefix only", "med_", false},
		{"garbage suffix", "med_not-a-ulid", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mediaid.IsValid(tt.value); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	id := mediaid.New()
	parsed, err := mediaid.Parse(id)
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", id, err)
	}
	if "med_"+strings.ToLower(parsed.String()) != id {
		t.Errorf("round trip mismatch: %q -> %q", id, parsed.String())
	}
}
