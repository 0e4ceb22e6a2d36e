package lang

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"en", false},
		{"yo", false},
		{"xx", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := Parse(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}

func TestRegister(t *testing.T) {
	if Valid("xx-test") {
		t.Fatal("xx-test should not be registered yet")
	}
	Register("xx-test")
	if !Valid("xx-test") {
		t.Fatal("xx-test should be registered after Register")
	}
}

func TestPairNeedsTranslation(t *testing.T) {
	same := Pair{Source: English, Target: English}
	if same.NeedsTranslation() {
		t.Error("same-language pair should not need translation")
	}
	diff := Pair{Source: English, Target: Spanish}
	if !diff.NeedsTranslation() {
		t.Error("cross-language pair should need translation")
	}
	if diff.String() != "en->es" {
		t.Errorf("String() = %q, want %q", diff.String(), "en->es")
	}
}
