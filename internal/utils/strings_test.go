package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty string", input: "", expected: nil},
		{name: "whitespace only", input: "  ,  , ", expected: nil},
		{name: "single value", input: "BHP.AX", expected: []string{"BHP.AX"}},
		{name: "trims values", input: " BHP.AX , CBA.AX", expected: []string{"BHP.AX", "CBA.AX"}},
		{name: "drops empty entries", input: "BHP.AX,,CBA.AX,", expected: []string{"BHP.AX", "CBA.AX"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseCSV(tt.input))
		})
	}
}

func TestParseSymbols(t *testing.T) {
	assert.Nil(t, ParseSymbols(""))
	assert.Equal(t,
		[]string{"BHP.AX", "CBA.AX"},
		ParseSymbols("bhp.ax, CBA.AX, BHP.AX"),
	)
}
