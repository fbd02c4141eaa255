package scrape

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	t.Parallel()

	req, err := NewRequest("  https://x.com/a/status/1  ", " chat-1 ", "")
	require.NoError(t, err)
	require.Equal(t, Request{URL: "https://x.com/a/status/1", CorrelationID: "chat-1", Mode: ModeSimple}, req)

	req, err = NewRequest("https://example.com", "", "VERIFIED")
	require.NoError(t, err)
	require.Equal(t, ModeVerified, req.Mode)

	_, err = NewRequest("   ", "", "")
	require.ErrorIs(t, err, ErrURLRequired)

	_, err = NewRequest("https://example.com", "", "deep")
	require.ErrorIs(t, err, ErrUnsupportedMode)
}

func TestRecordValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, NewErrorRecord("https://a", "m", errors.New("boom")).Validate())
	require.NoError(t, Record{URL: "https://a", Content: &Content{}}.Validate())
	require.ErrorIs(t, Record{URL: "https://a"}.Validate(), ErrInvalidRecord)
	require.ErrorIs(t, Record{Error: "x", Content: &Content{}}.Validate(), ErrInvalidRecord)
}

func TestNewErrorRecordDefaultsMessage(t *testing.T) {
	t.Parallel()

	rec := NewErrorRecord("https://a", "selenium_webdriver", nil)
	require.True(t, rec.Failed())
	require.Equal(t, "unknown error", rec.Error)
}

func TestRecordCloneIsDeep(t *testing.T) {
	t.Parallel()

	ts := "2024-01-01T00:00:00Z"
	orig := Record{
		URL: "https://a",
		Content: &Content{
			Paragraphs: []string{"p1"},
			Images:     []string{"https://a/i.png"},
			Links:      []string{"https://a/l"},
			Metrics:    map[string]string{"likes": "3"},
			Timestamp:  &ts,
			VerificationOutcome: &VerificationOutcome{
				Claims: []Claim{{Text: "c", Sources: []string{"Reuters"}}},
			},
		},
	}
	cp := orig.Clone()
	cp.Paragraphs[0] = "changed"
	cp.Metrics["likes"] = "9"
	*cp.Timestamp = "later"
	cp.Claims[0].Sources[0] = "BBC"

	require.Equal(t, "p1", orig.Paragraphs[0])
	require.Equal(t, "3", orig.Metrics["likes"])
	require.Equal(t, ts, *orig.Timestamp)
	require.Equal(t, "Reuters", orig.Claims[0].Sources[0])
}

func TestWithVerificationLeavesOriginalUntouched(t *testing.T) {
	t.Parallel()

	orig := Record{URL: "https://a", Content: &Content{MainText: "hello"}}
	merged := orig.WithVerification(VerificationOutcome{Success: false, StatusCode: 503})

	require.Nil(t, orig.VerificationOutcome)
	require.NotNil(t, merged.VerificationOutcome)
	require.Equal(t, 503, merged.StatusCode)
	require.Empty(t, merged.Claims)
	require.Equal(t, "hello", merged.MainText)

	failed := NewErrorRecord("https://a", "m", errors.New("x")).WithVerification(VerificationOutcome{Success: true})
	require.Nil(t, failed.Content)
}

func TestRecordJSONShape(t *testing.T) {
	t.Parallel()

	failed, err := json.Marshal(NewErrorRecord("https://a", "selenium_webdriver", errors.New("timeout")))
	require.NoError(t, err)
	require.JSONEq(t, `{"url":"https://a","scraping_method":"selenium_webdriver","error":"timeout"}`, string(failed))

	rec := Record{
		URL:            "https://a",
		ScrapingMethod: "selenium_webdriver",
		Content: &Content{
			PageType:   PageTypeSocialPost,
			Author:     DefaultAuthor,
			MainText:   MainTextPlaceholder,
			Paragraphs: []string{},
			Images:     []string{},
			Links:      []string{},
			Metrics:    map[string]string{},
			VerificationOutcome: &VerificationOutcome{
				StatusCode: 503,
				Claims:     []Claim{},
			},
		},
	}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	require.NotContains(t, fields, "error")
	require.Equal(t, "social_post", fields["page_type"])
	require.Equal(t, false, fields["verification_success"])
	require.Nil(t, fields["timestamp"])

	var back Record
	require.NoError(t, json.Unmarshal(raw, &back))
	require.NoError(t, back.Validate())
	require.Equal(t, 503, back.StatusCode)
}
