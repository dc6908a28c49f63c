package batch

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/Sternrassler/graph-core-go/pkg/sdkerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollection_Rollover(t *testing.T) {
	coll, err := NewCollection(DefaultLimit)
	require.NoError(t, err)

	for i := 0; i < 45; i++ {
		added, err := coll.AddStep(Step{ID: fmt.Sprint(i), Request: getRequest(t, "https://graph.example.com/v1.0/me")})
		require.NoError(t, err)
		require.True(t, added)
	}

	var sizes []int
	for _, c := range coll.Contents() {
		sizes = append(sizes, c.Len())
	}
	assert.Equal(t, []int{20, 20, 5}, sizes)
	assert.Equal(t, 45, coll.Len())

	added, err := coll.AddStep(Step{ID: "3", Request: getRequest(t, "https://graph.example.com/v1.0/me")})
	require.NoError(t, err)
	assert.False(t, added, "duplicates are detected across physical batches")

	err = coll.AddUniqueStep(Step{ID: "3", Request: getRequest(t, "https://graph.example.com/v1.0/me")})
	assert.True(t, sdkerrors.HasCode(err, sdkerrors.CodeDuplicateStepID), "got %v", err)
	assert.Equal(t, 45, coll.Len())
}

func TestCollection_RemoveStep(t *testing.T) {
	coll, err := NewCollection(2)
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		_, err := coll.AddStep(Step{ID: id, Request: getRequest(t, "https://graph.example.com/v1.0/me")})
		require.NoError(t, err)
	}

	removed, err := coll.RemoveStep("a")
	require.NoError(t, err)
	assert.True(t, removed, "historical batches are searched")

	removed, err = coll.RemoveStep("c")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = coll.RemoveStep("zzz")
	require.NoError(t, err)
	assert.False(t, removed)

	require.Len(t, coll.Contents(), 1, "empty batches are not exposed")
	assert.Equal(t, []string{"b"}, coll.Contents()[0].IDs())
}

func TestCollection_DependsOnAcrossFullBatch(t *testing.T) {
	coll, err := NewCollection(2)
	require.NoError(t, err)
	for _, id := range []string{"a", "b"} {
		_, err := coll.AddStep(Step{ID: id, Request: getRequest(t, "https://graph.example.com/v1.0/me")})
		require.NoError(t, err)
	}

	_, err = coll.AddStep(Step{ID: "c", Request: getRequest(t, "https://graph.example.com/v1.0/me"), DependsOn: []string{"a"}})
	assert.True(t, sdkerrors.HasCode(err, sdkerrors.CodeInvalidArgument))
}

func TestCollection_Sealed(t *testing.T) {
	coll, err := NewCollection(0)
	require.NoError(t, err)
	coll.Seal()
	assert.True(t, coll.IsSealed())

	_, err = coll.AddStep(Step{ID: "a", Request: getRequest(t, "https://graph.example.com/v1.0/me")})
	assert.True(t, sdkerrors.HasCode(err, sdkerrors.CodeCollectionSealed))

	_, err = coll.AddRequest(getRequest(t, "https://graph.example.com/v1.0/me"))
	assert.True(t, sdkerrors.HasCode(err, sdkerrors.CodeCollectionSealed))

	_, err = coll.RemoveStep("a")
	assert.True(t, sdkerrors.HasCode(err, sdkerrors.CodeCollectionSealed))
}

func TestCollection_NewWithFailedSteps(t *testing.T) {
	coll, err := NewCollection(0)
	require.NoError(t, err)

	post := getRequest(t, "https://graph.example.com/v1.0/me/events")
	post.Method = http.MethodPost
	post.Body = []byte(`{"subject":"x"}`)

	steps := []Step{
		{ID: "ok", Request: getRequest(t, "https://graph.example.com/v1.0/me")},
		{ID: "throttled", Request: post},
		{ID: "dependent", Request: getRequest(t, "https://graph.example.com/v1.0/me/events"), DependsOn: []string{"ok", "throttled"}},
		{ID: "unknown", Request: getRequest(t, "https://graph.example.com/v1.0/me/drive")},
	}
	for _, s := range steps {
		_, err := coll.AddStep(s)
		require.NoError(t, err)
	}
	coll.Seal()

	retry, err := coll.NewWithFailedSteps(map[string]int{
		"ok":        200,
		"throttled": 429,
		"dependent": 424,
	})
	require.NoError(t, err)

	assert.False(t, retry.IsSealed())
	require.Len(t, retry.Contents(), 1)
	content := retry.Contents()[0]
	assert.Equal(t, []string{"throttled", "dependent"}, content.IDs())

	throttled, _ := content.Step("throttled")
	assert.Equal(t, http.MethodPost, throttled.Request.Method)
	assert.Equal(t, `{"subject":"x"}`, string(throttled.Request.Body))
	assert.NotSame(t, post, throttled.Request, "requests are cloned")

	dependent, _ := content.Step("dependent")
	assert.Equal(t, []string{"throttled"}, dependent.DependsOn)
}
