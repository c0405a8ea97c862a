package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"IncidentScanner/internal/config"
	"IncidentScanner/internal/domain"
	"IncidentScanner/internal/infrastructure/retry"
	"IncidentScanner/internal/ports"
)

var testPolicy = retry.Policy{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

func testConfig(endpoint string) config.EmailConfig {
	return config.EmailConfig{
		Endpoint: endpoint,
		APIKey:   "re-test",
		Sender:   "alerts@example.com",
		Timeout:  time.Second,
	}
}

func TestClientSendSingleRecipient(t *testing.T) {
	var got sendPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer re-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"msg_1"}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), testPolicy)
	err := client.Send(context.Background(), ports.Email{To: "alice@example.com", Subject: "hi", HTML: "<p>x</p>"})
	require.NoError(t, err)
	require.Equal(t, "alerts@example.com", got.From)
	require.Equal(t, []string{"alice@example.com"}, got.To)
	require.Equal(t, "hi", got.Subject)
}

func TestClientRetriesRateLimited(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), testPolicy, WithRateLimit(100))
	require.NoError(t, client.Send(context.Background(), ports.Email{To: "a@example.com"}))
	require.EqualValues(t, 2, calls.Load())
}

func TestClientRejectedMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid recipient", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	err := NewClient(testConfig(server.URL), testPolicy).Send(context.Background(), ports.Email{To: "bad"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	require.Contains(t, apiErr.Message, "invalid recipient")
}

func TestClientMisconfigured(t *testing.T) {
	err := NewClient(config.EmailConfig{Endpoint: "http://localhost"}, testPolicy).Send(context.Background(), ports.Email{To: "a@example.com"})
	require.ErrorIs(t, err, ErrMisconfigured)
}

func TestRenderIncident(t *testing.T) {
	incident := domain.Incident{
		Title:       "Acme breach <disclosed>",
		VendorKey:   "ACME",
		Product:     "Widget",
		PublishedAt: time.Date(2025, time.November, 8, 13, 0, 0, 0, time.UTC),
		Summary:     "Acme disclosed a breach.",
		SourceURL:   "https://news.example.com/acme",
		SourceLabel: "SecNews",
	}

	email, err := NewRenderer("https://cdn.example.com/logo.png").Render(incident, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", email.To)
	require.Equal(t, "SecNews: Acme breach <disclosed>", email.Subject)
	require.Contains(t, email.HTML, "ACME Widget")
	require.Contains(t, email.HTML, `href="https://news.example.com/acme"`)
	require.Contains(t, email.HTML, "https://cdn.example.com/logo.png")
	require.NotContains(t, email.HTML, "image-container\">")
	require.True(t, strings.Contains(email.HTML, "Sat, 08 Nov 2025 13:00:00 UTC"))
}

func TestSubjectWithoutLabel(t *testing.T) {
	require.Equal(t, "Acme breach", Subject(domain.Incident{Title: "Acme breach"}))
}
