package slashcmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantOK   bool
		wantType string
		wantArg  string
	}{
		{
			name:     "ask with argument",
			body:     "/codecrow ask what does this do?",
			wantOK:   true,
			wantType: CommandAsk,
			wantArg:  "what does this do?",
		},
		{
			name:   "ask without argument is not a command",
			body:   "/codecrow ask",
			wantOK: false,
		},
		{
			name:     "review without argument",
			body:     "/codecrow review",
			wantOK:   true,
			wantType: CommandReview,
			wantArg:  "",
		},
		{
			name:     "leading whitespace tolerated",
			body:     "  /codecrow ask why?  ",
			wantOK:   true,
			wantType: CommandAsk,
			wantArg:  "why?",
		},
		{
			name:     "verb case-insensitive",
			body:     "/codecrow ASK explain",
			wantOK:   true,
			wantType: CommandAsk,
			wantArg:  "explain",
		},
		{
			name:   "unknown verb",
			body:   "/codecrow dance",
			wantOK: false,
		},
		{
			name:   "bare prefix",
			body:   "/codecrow",
			wantOK: false,
		},
		{
			name:   "plain comment",
			body:   "LGTM, nice work",
			wantOK: false,
		},
		{
			name:   "prefix mid-sentence is not a command",
			body:   "please run /codecrow review",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, ok := Parse(tt.body)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				require.NotNil(t, cmd)
				assert.Equal(t, tt.wantType, cmd.Type)
				assert.Equal(t, tt.wantArg, cmd.Argument)
			}
		})
	}
}
