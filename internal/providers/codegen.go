package providers

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/router"
)

var codeTriggers = regexp.MustCompile(`(?i)\b(code|program)\b`)

// CodeGenerator asks the model to write a program.
type CodeGenerator struct {
	gen router.Answerer
}

// NewCodeGenerator creates a generator backed by gen.
func NewCodeGenerator(gen router.Answerer) *CodeGenerator {
	return &CodeGenerator{gen: gen}
}

// GenerateCode returns the program the utterance describes.
func (c *CodeGenerator) GenerateCode(ctx context.Context, utterance string) (string, error) {
	if c.gen == nil {
		return "", router.ErrNotConfigured
	}
	task := strings.Join(strings.Fields(codeTriggers.ReplaceAllString(utterance, " ")), " ")
	if task == "" {
		return "", errors.New("describe the program to write")
	}
	code, err := c.gen.Generate(ctx, "Write a Python program to "+task)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(code), nil
}

// stripCodeFence removes a surrounding markdown fence such as ```sql ... ```.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
