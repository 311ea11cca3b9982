package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleArgs struct {
	A string `json:"a" description:"Field A"`
	B *int   `json:"b" description:"Optional pointer field"`
	C int    `json:"c,omitempty" description:"Omit empty field"`
	d bool   //nolint:unused // unexported fields are skipped
	E string `json:"-"`
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(sampleArgs{})

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	assert.NotContains(t, props, "d")
	assert.NotContains(t, props, "E")

	aSchema, ok := props["a"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", aSchema["type"])
	assert.Equal(t, "Field A", aSchema["description"])

	// Required only includes non-pointer, non-omitempty exported fields.
	req, _ := schema["required"].([]string)
	assert.ElementsMatch(t, []string{"a"}, req)
}

func TestCreateSchemaNonStruct(t *testing.T) {
	schema := CreateSchema(42)
	assert.Equal(t, "object", schema["type"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Empty(t, props)

	schema = CreateSchema(nil)
	assert.Equal(t, "object", schema["type"])
}

func TestRenderPrompt(t *testing.T) {
	out, err := RenderPrompt("no markers here", map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, "no markers here", out)

	out, err = RenderPrompt("session {{.session_id}} for {{upper .name}}",
		map[string]any{"session_id": "s1", "name": "ana"})
	require.NoError(t, err)
	assert.Equal(t, "session s1 for ANA", out)

	out, err = RenderPrompt(`video {{default "none" .video_id}}`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "video none", out)

	_, err = RenderPrompt("{{.broken", nil)
	assert.Error(t, err)
}
