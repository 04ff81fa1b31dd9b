package team

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateNameAccepts(t *testing.T) {
	valid := []string{
		"a",
		"The StoppingPlayers",
		"Team 42",
		strings.Repeat("x", 25),
		"  padded  ",
	}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Fatalf("ValidateName(%q) = %v, want nil", name, err)
		}
	}
}

func TestValidateNameRejects(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"too long", strings.Repeat("x", 26)},
		{"all blank", "    "},
		{"punctuation", "team-one"},
		{"underscore", "team_one"},
		{"non ascii", "tëam"},
		{"newline", "team\none"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateName(tc.in)
			if err == nil {
				t.Fatalf("ValidateName(%q) accepted", tc.in)
			}
			if !errors.Is(err, ErrBadName) {
				t.Fatalf("ValidateName(%q) = %v, want ErrBadName", tc.in, err)
			}
		})
	}
}
