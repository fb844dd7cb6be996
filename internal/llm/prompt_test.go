package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-hub/backend/internal/model"
)

func TestClassificationPrompt(t *testing.T) {
	history := []model.Message{
		model.NewMessage("hi there", "alice", model.KindUser, nil),
		model.NewMessage("Hello Alice!", "General", model.KindHandler, nil),
	}

	prompt := ClassificationPrompt(
		[]string{"nutrition", "fitness", "general"},
		map[string]string{"fitness": "workouts and training"},
		history,
	)

	assert.Contains(t, prompt, "- fitness: workouts and training\n- general\n- nutrition\n")
	assert.Contains(t, prompt, "alice: hi there\nGeneral: Hello Alice!")
	assert.Contains(t, prompt, `"handler"`)
	assert.Contains(t, prompt, `"confidence"`)
}

func TestFormatHistoryEmpty(t *testing.T) {
	assert.Equal(t, "No previous conversation.", FormatHistory(nil))
}

func TestNewClientRequiresKey(t *testing.T) {
	c, err := NewClient(context.Background(), "", "", nil)
	require.Error(t, err)
	assert.Nil(t, c)
}
