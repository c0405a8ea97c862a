package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"IncidentScanner/internal/domain"
)

func TestIsDuplicateSkipsModelWithoutPriorIncidents(t *testing.T) {
	chat := &fakeChat{answer: "YES"}
	d := NewDeduplicator(&memStore{}, chat, 60*24*time.Hour, 300, nil, nil)

	require.False(t, d.IsDuplicate(context.Background(), domain.Incident{Title: "Acme breach"}, nil))
	require.Zero(t, chat.calls)
}

func TestIsDuplicateReadsAnswer(t *testing.T) {
	prior := []domain.PriorIncident{{Title: "Acme leaks data", Summary: "Records exposed."}}

	cases := map[string]bool{
		"YES":           true,
		"yes.":          true,
		"Answer: Yes":   true,
		"NO":            false,
		"no, different": false,
		"":              false,
	}
	for answer, want := range cases {
		chat := &fakeChat{answer: answer}
		d := NewDeduplicator(&memStore{}, chat, time.Hour, 300, nil, nil)
		require.Equal(t, want, d.IsDuplicate(context.Background(), domain.Incident{Title: "Acme breach"}, prior), "answer %q", answer)
		require.Equal(t, 1, chat.calls)
	}
}

func TestIsDuplicateFailsOpen(t *testing.T) {
	chat := &fakeChat{err: errors.New("503 service unavailable")}
	d := NewDeduplicator(&memStore{}, chat, time.Hour, 300, nil, nil)

	prior := []domain.PriorIncident{{Title: "Acme leaks data", Summary: "Records exposed."}}
	require.False(t, d.IsDuplicate(context.Background(), domain.Incident{Title: "Acme breach"}, prior))
}

func TestIsDuplicatePromptListsPriorIncidents(t *testing.T) {
	chat := &fakeChat{answer: "NO"}
	d := NewDeduplicator(&memStore{}, chat, time.Hour, 300, nil, nil)

	prior := []domain.PriorIncident{
		{Title: "Acme leaks data", Summary: "Records exposed."},
		{Title: "Acme ransomware", Summary: "Systems encrypted."},
	}
	d.IsDuplicate(context.Background(), domain.Incident{Title: "Acme breach"}, prior)

	require.Len(t, chat.requests, 1)
	req := chat.requests[0]
	require.Equal(t, 300, req.MaxTokens)
	require.NotNil(t, req.Temperature)
	require.Zero(t, *req.Temperature)
	require.Len(t, req.Messages, 1)
	prompt := req.Messages[0].Content
	require.Contains(t, prompt, "Article: Acme breach.")
	require.Contains(t, prompt, "1. Title: Acme leaks data")
	require.Contains(t, prompt, "2. Title: Acme ransomware")
	require.Contains(t, prompt, "Summary: Systems encrypted.")
}

func TestCheckQueriesTrailingWindowForVendor(t *testing.T) {
	store := &memStore{incidents: []domain.Incident{
		{Title: "Old Acme incident", VendorKey: "ACME", PublishedAt: fixedNow.Add(-90 * 24 * time.Hour)},
		{Title: "Globex breach", VendorKey: "GLOBEX", PublishedAt: fixedNow.Add(-time.Hour)},
	}}
	chat := &fakeChat{answer: "YES"}
	d := NewDeduplicator(store, chat, 60*24*time.Hour, 300, func() time.Time { return fixedNow }, nil)

	dup, err := d.Check(context.Background(), domain.Incident{Title: "Acme breach", VendorKey: "ACME"})

	require.NoError(t, err)
	require.False(t, dup)
	require.Zero(t, chat.calls)
	require.Equal(t, fixedNow.Add(-60*24*time.Hour), store.since)
}

func TestCheckPropagatesQueryErrors(t *testing.T) {
	store := &memStore{queryErr: errors.New("connection reset")}
	d := NewDeduplicator(store, &fakeChat{}, time.Hour, 300, nil, nil)

	_, err := d.Check(context.Background(), domain.Incident{VendorKey: "ACME"})
	require.ErrorContains(t, err, "connection reset")
}
