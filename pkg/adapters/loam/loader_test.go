package loam

import (
	"testing"

	"github.com/aretw0/callflow/internal/compiler"
	"github.com/aretw0/callflow/internal/testutils"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/loam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_BuildsFlow(t *testing.T) {
	_, repo := testutils.SetupFlowRepo(t, map[string]string{
		"confirm.md": `---
id: confirm
type: conversation
mode: prompt
requires_specialist_team: true
transitions:
  - condition: user confirms name
    nextNode: book
  - condition: user gives wrong-number signal
    to: wrong.md
extract_variables:
  - name: first_name
    extraction_hint: the caller's first name
    mandatory: true
    prompt_message: Sorry, who am I speaking with?
webhook:
  name: crm
  send_variables: [first_name]
---
Confirm you are speaking with {{first_name}}.
`,
		"book.md": `---
type: press_digit
digits: "1"
---
Connecting you now.`,
		"wrong.md": `---
type: ending
---
Sorry for the trouble, goodbye.`,
	})

	loader := New(loam.NewTypedRepository[NodeMetadata](repo))

	g, err := compiler.Build(loader, "confirm")
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())

	confirm, ok := g.Node("confirm")
	require.True(t, ok)
	assert.Equal(t, domain.ModePrompt, confirm.Mode())
	assert.Equal(t, "Confirm you are speaking with {{first_name}}.", confirm.Content())
	assert.True(t, confirm.RequiresSpecialistTeam)
	require.Len(t, confirm.Transitions, 2)
	assert.Equal(t, "wrong", confirm.Transitions[1].TargetNodeID)
	require.Len(t, confirm.ExtractVariables, 1)
	assert.Equal(t, "Sorry, who am I speaking with?", confirm.ExtractVariables[0].Reprompt)
	require.NotNil(t, confirm.Webhook)
	assert.Equal(t, []string{"first_name"}, confirm.Webhook.SendVariables)

	book, _ := g.Node("book")
	assert.Equal(t, "1", book.Digits())

	wrong, _ := g.Node("wrong")
	assert.True(t, wrong.IsTerminal())
}

func TestLoader_ListNodes_NormalizesIDs(t *testing.T) {
	_, repo := testutils.SetupFlowRepo(t, map[string]string{
		"start.md": `---
id: start.md
type: script
---
Hello`,
		"choice.json": `{
  "id": "choice.json",
  "type": "conversation"
}`,
		"implicit.md": `---
type: script
---
ID is implied from filename`,
	})

	loader := New(loam.NewTypedRepository[NodeMetadata](repo))

	ids, err := loader.ListNodes()
	require.NoError(t, err)

	assert.Contains(t, ids, "start", "start.md should become start")
	assert.Contains(t, ids, "choice", "choice.json should become choice")
	assert.Contains(t, ids, "implicit", "implicit.md should become implicit")
	assert.Len(t, ids, 3)
}

func TestLoader_ListNodes_DetectsCollisions(t *testing.T) {
	_, repo := testutils.SetupFlowRepo(t, map[string]string{
		"foo.md": `---
id: foo
type: script
---
Explicit ID`,
		"foo.json": `{
  "id": "foo",
  "type": "script"
}`,
	})

	loader := New(loam.NewTypedRepository[NodeMetadata](repo))

	_, err := loader.ListNodes()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collision detected")
	assert.Contains(t, err.Error(), "foo")
}

func TestLoader_GetNode_NormalizesID(t *testing.T) {
	_, repo := testutils.SetupFlowRepo(t, map[string]string{
		"node.json": `{ "id": "node.json", "type": "script" }`,
	})

	loader := New(loam.NewTypedRepository[NodeMetadata](repo))

	data, err := loader.GetNode("node")
	require.NoError(t, err)

	assert.Contains(t, string(data), `"id":"node"`, "JSON output should have normalized ID")
	assert.NotContains(t, string(data), `"id":"node.json"`)
}

func TestLoader_GetNode_Missing(t *testing.T) {
	_, repo := testutils.SetupFlowRepo(t, nil)
	loader := New(loam.NewTypedRepository[NodeMetadata](repo))

	_, err := loader.GetNode("ghost")
	assert.Error(t, err)
}
