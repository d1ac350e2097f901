package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain text passes through", in: "Golden Gate Park", want: "Golden Gate Park"},
		{name: "markup is stripped", in: "<script>alert(1)</script>Cafe", want: "Cafe"},
		{name: "tags around text", in: "<b>Best</b> coffee", want: "Best coffee"},
		{name: "control characters removed", in: "note\x00 with\x07 junk", want: "note with junk"},
		{name: "whitespace collapsed and trimmed", in: "  too \t many \n spaces  ", want: "too many spaces"},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Text(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Text(got), "Text must be idempotent")
		})
	}
}

func TestKeyComponent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercased and dashed", in: "Golden Gate Park", want: "golden-gate-park"},
		{name: "punctuation collapses to single dash", in: "Joe's Diner & Grill", want: "joe-s-diner-grill"},
		{name: "leading and trailing dashes trimmed", in: "  ***Cafe***  ", want: "cafe"},
		{name: "digits survive", in: "Pier 39", want: "pier-39"},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KeyComponent(tt.in))
		})
	}
}
