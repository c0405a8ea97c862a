package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"IncidentScanner/internal/ports"
)

type stubChat struct {
	content string
	err     error
	reqs    []ports.ChatRequest
}

func (s *stubChat) Complete(_ context.Context, req ports.ChatRequest) (string, error) {
	s.reqs = append(s.reqs, req)
	return s.content, s.err
}

func TestExtractSuccess(t *testing.T) {
	chat := &stubChat{content: `{"vendor": "Acme Inc", "product": "Widget", "exploits": "Actively exploited", "summary": "Acme disclosed a breach.", "incident_type": "Breach", "affected_service": null, "potentially_impacted_data": "Emails", "status": null}`}
	ex := NewIncidentExtractor(chat, 500, 0, nil)

	got, err := ex.Extract(context.Background(), "Acme Inc confirmed a breach of Widget.")
	require.NoError(t, err)
	require.Equal(t, "Acme Inc", got.VendorRaw)
	require.Equal(t, "Widget", got.Product)
	require.Equal(t, "Actively exploited", got.ExploitDescription)
	require.Equal(t, "Breach", got.IncidentType)
	require.Equal(t, PlaceholderService, got.AffectedService)
	require.Equal(t, "Emails", got.PotentiallyImpactedData)
	require.Equal(t, PlaceholderStatus, got.Status)

	require.Len(t, chat.reqs, 1)
	req := chat.reqs[0]
	require.NotNil(t, req.Temperature)
	require.Zero(t, *req.Temperature)
	require.Equal(t, 500, req.MaxTokens)
	require.Equal(t, "system", req.Messages[0].Role)
	require.Contains(t, req.Messages[1].Content, "Acme Inc confirmed a breach of Widget.")
}

func TestExtractMissingFieldsGetPlaceholders(t *testing.T) {
	ex := NewIncidentExtractor(&stubChat{content: `{"vendor": "Globex"}`}, 500, 0, nil)

	got, err := ex.Extract(context.Background(), "text")
	require.NoError(t, err)
	require.Equal(t, PlaceholderProduct, got.Product)
	require.Equal(t, PlaceholderExploits, got.ExploitDescription)
	require.Equal(t, PlaceholderSummary, got.Summary)
	require.Equal(t, PlaceholderIncidentType, got.IncidentType)
}

func TestExtractFailures(t *testing.T) {
	cases := []struct {
		name    string
		content string
		err     error
		kind    ErrorKind
	}{
		{name: "null vendor", content: `{"vendor": null, "product": "Widget"}`, kind: KindNotIncident},
		{name: "empty vendor", content: `{"vendor": "  "}`, kind: KindNotIncident},
		{name: "empty response", content: ``, kind: KindNotIncident},
		{name: "bare null", content: `null`, kind: KindNotIncident},
		{name: "string null vendor", content: `{"vendor": "null", "product": "Widget"}`, kind: KindNotIncident},
		{name: "none vendor", content: `{"vendor": "None"}`, kind: KindNotIncident},
		{name: "unknown vendor", content: `{"vendor": "Unknown."}`, kind: KindNotIncident},
		{name: "n/a vendor", content: `{"vendor": "N/A"}`, kind: KindNotIncident},
		{name: "prose", content: `Sure! Here is the JSON: {"vendor": "Acme"}`, kind: KindMalformed},
		{name: "trailing prose", content: `{"vendor": "Acme"} hope this helps`, kind: KindMalformed},
		{name: "unknown field", content: `{"vendor": "Acme", "severity": "high"}`, kind: KindMalformed},
		{name: "wrong type", content: `{"vendor": ["Acme"]}`, kind: KindMalformed},
		{name: "too long", content: `{"vendor": "` + strings.Repeat("A", 300) + `"}`, kind: KindSchema},
		{name: "request failure", err: errors.New("timeout"), kind: KindRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ex := NewIncidentExtractor(&stubChat{content: tc.content, err: tc.err}, 500, 0, nil)
			_, err := ex.Extract(context.Background(), "text")

			var extErr *ExtractionError
			require.True(t, errors.As(err, &extErr), "expected ExtractionError, got %v", err)
			require.Equal(t, tc.kind, extErr.Kind)
		})
	}
}

func TestExtractTruncatesArticle(t *testing.T) {
	chat := &stubChat{content: `{"vendor": "Acme"}`}
	ex := NewIncidentExtractor(chat, 500, 10, nil)

	_, err := ex.Extract(context.Background(), "0123456789ABCDEF")
	require.NoError(t, err)
	require.Contains(t, chat.reqs[0].Messages[1].Content, "0123456789\n")
	require.NotContains(t, chat.reqs[0].Messages[1].Content, "ABCDEF")
}
