package detector

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeuristic_Blocked(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(0, nil)
	require.True(t, h.Blocked("Don't miss what's happening. Log in or Sign Up"))
	require.True(t, h.Blocked("CREATE ACCOUNT to continue"))
	require.False(t, h.Blocked("The bridge reopened this morning."))
	require.False(t, h.Blocked(""))
}

func TestHeuristic_BlockedCustomMarkers(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(0, []string{"  Paywall ", ""})
	require.True(t, h.Blocked("this article is behind a PAYWALL"))
	require.False(t, h.Blocked("please log in"))
}

func TestHeuristic_ShouldPromote_EmptyBody(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100, nil)
	require.True(t, h.ShouldPromote(http.StatusOK, []byte("")))
}

func TestHeuristic_ShouldPromote_SPAMarkers(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100, nil)
	require.True(t, h.ShouldPromote(http.StatusOK, []byte(`<div id="react-root"></div>`)))
}

func TestHeuristic_ShouldPromote_ScriptDensity(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000, nil)
	require.True(t, h.ShouldPromote(http.StatusOK, []byte(`<html><script>var a=1;</script><p>t</p></html>`)))
}

func TestHeuristic_ShouldPromote_StaticArticle(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(10, nil)
	require.False(t, h.ShouldPromote(http.StatusOK, []byte(`<html><body><article><p>plain text</p></article></body></html>`)))
}

func TestHeuristic_ShouldPromote_DisabledForNon200(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100, nil)
	require.False(t, h.ShouldPromote(http.StatusNotFound, []byte("not found")))
}
