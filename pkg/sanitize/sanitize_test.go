package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Dinner", "Dinner"},
		{"  Fish & Chips ", "Fish & Chips"},
		{`<script>alert(1)</script>Taxi`, "Taxi"},
		{`<b>Hotel</b> <a href="x">booking</a>`, "Hotel booking"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Text(tt.in), tt.in)
	}
}

func TestOptionalText(t *testing.T) {
	assert.Nil(t, OptionalText(nil))

	blank := "<i></i>  "
	assert.Nil(t, OptionalText(&blank))

	note := "<p>split later</p>"
	got := OptionalText(&note)
	if assert.NotNil(t, got) {
		assert.Equal(t, "split later", *got)
	}
}
