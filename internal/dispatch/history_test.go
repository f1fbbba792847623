package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/memory"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/router"
)

func TestFormatContext(t *testing.T) {
	turns := []memory.Turn{ // most recent first
		{UserMessage: "c", AssistantResponse: "C"},
		{UserMessage: "b", AssistantResponse: "B"},
		{UserMessage: "a", AssistantResponse: "A"},
	}

	assert.Equal(t, "", FormatContext(nil, 3))
	assert.Equal(t, "", FormatContext(turns, 0))
	assert.Equal(t,
		"Recent conversation context:\nUser: b\nAssistant: B\nUser: c\nAssistant: C\n\nCurrent query: ",
		FormatContext(turns, 2))
	assert.Equal(t,
		"Recent conversation context:\nUser: a\nAssistant: A\nUser: b\nAssistant: B\nUser: c\nAssistant: C\n\nCurrent query: ",
		FormatContext(turns, 5))
}

func TestHistoryLabel(t *testing.T) {
	tests := []struct {
		utterance string
		want      router.CommandType
	}{
		{"Stop talking", router.CommandVoiceControl},
		{"open youtube cats", router.CommandSystem},
		{"volume up", router.CommandSystem},
		{"solve 2+2", router.CommandMath},
		{"what is 2+2", router.CommandGeneral},
		{"write a program", router.CommandCode},
		{"run query select 1", router.CommandGeneral},
		{"mysql show tables", router.CommandDatabase},
		{"check my inbox", router.CommandEmail},
		{"latest news", router.CommandNews},
		{"who are you", router.CommandGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			assert.Equal(t, tt.want, HistoryLabel(tt.utterance))
		})
	}
}
