package config

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"10s", 10 * time.Second, false},
		{"1m", 1 * time.Minute, false},
		{"1.5h", 90 * time.Minute, false},
		{"1d", 24 * time.Hour, false},
		{"1w", 168 * time.Hour, false},
		{"2d2h", 50 * time.Hour, false},
		{"100ms", 100 * time.Millisecond, false},
		{"invalid", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDuration(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestParseDistance(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
		wantErr  bool
	}{
		{"100m", 100, false},
		{"1.5km", 1500, false},
		{"500", 500, false}, // Unitless fallback
		{"10x", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDistance(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDistance(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseDistance(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestDurationYAMLRoundTrip(t *testing.T) {
	type doc struct {
		D Duration `yaml:"d"`
	}

	var parsed doc
	if err := yaml.Unmarshal([]byte("d: 2h30m"), &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if time.Duration(parsed.D) != 150*time.Minute {
		t.Errorf("parsed = %v, want 2h30m", time.Duration(parsed.D))
	}

	out, err := yaml.Marshal(doc{D: Duration(90 * time.Second)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back doc
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("re-unmarshal: %v", err)
	}
	if back.D != Duration(90*time.Second) {
		t.Errorf("round trip = %v", time.Duration(back.D))
	}
}

func TestDistanceYAMLBareNumber(t *testing.T) {
	type doc struct {
		D Distance `yaml:"d"`
	}

	var parsed doc
	if err := yaml.Unmarshal([]byte("d: 250"), &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if float64(parsed.D) != 250 {
		t.Errorf("parsed = %v, want 250", float64(parsed.D))
	}
}
