package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePattern(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"logs/**/*.gz", "logs/**/*.gz"},
		{`logs\2024\*.gz`, `logs/2024\*.gz`},
		{`logs\2024/app\`, "logs/2024/app/"},
		{`logs/app\?.log`, `logs/app\?.log`},
		{`logs/\[archive\]/*`, `logs/\[archive\]/*`},
		{`logs/\{a,b\}`, `logs/\{a,b\}`},
		{`logs/a\\b`, `logs/a\\b`},
		{"/logs//2024/", "/logs//2024/"},
		{`\`, "/"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePattern(tt.in))
		})
	}
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"", false},
		{"logs/2024/app.log", false},
		{"logs/2024/app.log.", false},
		{"logs/.tmp/app.log", true},
		{".keep", true},
		{"logs/./app.log", true},
		{"_temporary/part-0000", false},
		{`logs\.tmp\app.log`, false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, IsHidden(tt.key))
		})
	}
}
