package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/router"
)

func TestCodeGeneratorPrompt(t *testing.T) {
	gen := &scriptedAnswerer{reply: "\nprint('hi')\n"}
	out, err := NewCodeGenerator(gen).GenerateCode(context.Background(), "Write code to reverse a string")
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", out)
	assert.Equal(t, []string{"Write a Python program to Write to reverse a string"}, gen.Prompts())
}

func TestCodeGeneratorNeedsTask(t *testing.T) {
	_, err := NewCodeGenerator(&scriptedAnswerer{}).GenerateCode(context.Background(), "program")
	assert.Error(t, err)

	_, err = NewCodeGenerator(nil).GenerateCode(context.Background(), "code a game")
	assert.ErrorIs(t, err, router.ErrNotConfigured)
}

func TestStripCodeFence(t *testing.T) {
	tests := map[string]string{
		"SELECT 1":                      "SELECT 1",
		"```sql\nSELECT 1;\n```":        "SELECT 1;",
		"```\nSELECT *\nFROM t\n```\n":  "SELECT *\nFROM t",
		"```SELECT 1```":                "SELECT 1",
		"  select name from users  \n": "select name from users",
	}
	for in, want := range tests {
		assert.Equal(t, want, stripCodeFence(in), "input %q", in)
	}
}
