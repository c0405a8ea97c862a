package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"IncidentScanner/internal/domain"
	"IncidentScanner/internal/logging"
	"IncidentScanner/internal/ports"
)

// Placeholders substituted for null fields other than vendor.
const (
	PlaceholderProduct      = "Unknown"
	PlaceholderExploits     = "None"
	PlaceholderSummary      = "None"
	PlaceholderIncidentType = "Unknown"
	PlaceholderService      = "Unknown"
	PlaceholderImpactedData = "Unknown"
	PlaceholderStatus       = "Under Investigation"
)

const extractionSystemPrompt = `You are a JSON only responder. Respond with exactly one JSON object of this shape:
{"vendor": "vendorName", "product": "productName", "exploits": "", "summary": "summary", "incident_type": "", "affected_service": "", "potentially_impacted_data": "", "status": ""}
vendor is the compromised or affected organization, product the affected product, exploits how much the product has been exploited, summary a summary of the article in about 100 words, incident_type the kind of incident (breach, ransomware, vulnerability, outage, ...), affected_service the impacted service, potentially_impacted_data the data that may be exposed and status the current state of the incident.
If the article does not describe a security incident, set vendor to null. If unsure about any other field, set it to null.
Do not include explanations, apologies, markdown or any text outside of the JSON object.`

// ErrorKind classifies extraction failures.
type ErrorKind string

const (
	KindRequest     ErrorKind = "request"
	KindMalformed   ErrorKind = "malformed"
	KindSchema      ErrorKind = "schema"
	KindNotIncident ErrorKind = "not_incident"
)

var (
	// ErrNotIncident marks articles the model did not classify as security incidents.
	ErrNotIncident = errors.New("article is not a security incident")
	// ErrMalformedResponse marks model output that is not a single JSON object.
	ErrMalformedResponse = errors.New("malformed extraction response")
)

// ExtractionError is the failure side of an extraction. Raw holds the model output when there was one.
type ExtractionError struct {
	Kind ErrorKind
	Raw  string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction %s: %v", e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// extractionPayload is the strict wire schema of the model answer.
type extractionPayload struct {
	Vendor                  *string `json:"vendor" validate:"omitempty,max=200"`
	Product                 *string `json:"product" validate:"omitempty,max=300"`
	Exploits                *string `json:"exploits" validate:"omitempty,max=2000"`
	Summary                 *string `json:"summary" validate:"omitempty,max=5000"`
	IncidentType            *string `json:"incident_type" validate:"omitempty,max=200"`
	AffectedService         *string `json:"affected_service" validate:"omitempty,max=300"`
	PotentiallyImpactedData *string `json:"potentially_impacted_data" validate:"omitempty,max=1000"`
	Status                  *string `json:"status" validate:"omitempty,max=200"`
}

// IncidentExtractor implements ports.Extractor on top of a chat client.
type IncidentExtractor struct {
	chat      ports.ChatClient
	maxTokens int
	maxChars  int
	validate  *validator.Validate
	logger    *slog.Logger
}

var _ ports.Extractor = (*IncidentExtractor)(nil)

// NewIncidentExtractor sends at most maxChars runes of article text per call.
func NewIncidentExtractor(chat ports.ChatClient, maxTokens, maxChars int, logger *slog.Logger) *IncidentExtractor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &IncidentExtractor{
		chat:      chat,
		maxTokens: maxTokens,
		maxChars:  maxChars,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Extract asks the model for the incident fields. Failures are returned as *ExtractionError.
func (e *IncidentExtractor) Extract(ctx context.Context, articleText string) (domain.ExtractedIncident, error) {
	zero := 0.0
	content, err := e.chat.Complete(ctx, ports.ChatRequest{
		Messages: []ports.ChatMessage{
			{Role: "system", Content: extractionSystemPrompt},
			{Role: "user", Content: extractionUserPrompt(truncate(articleText, e.maxChars))},
		},
		MaxTokens:   e.maxTokens,
		Temperature: &zero,
	})
	if err != nil {
		return domain.ExtractedIncident{}, &ExtractionError{Kind: KindRequest, Err: err}
	}

	payload, err := decodePayload(content)
	if err != nil {
		e.logger.Warn("unparseable model output", "raw", content, "error", err)
		return domain.ExtractedIncident{}, &ExtractionError{Kind: KindMalformed, Raw: content, Err: err}
	}
	if err := e.validate.Struct(payload); err != nil {
		e.logger.Warn("model output failed validation", "raw", content, "error", err)
		return domain.ExtractedIncident{}, &ExtractionError{Kind: KindSchema, Raw: content, Err: err}
	}

	incident, ok := toExtractedIncident(payload)
	if !ok {
		return domain.ExtractedIncident{}, &ExtractionError{Kind: KindNotIncident, Raw: content, Err: ErrNotIncident}
	}
	return incident, nil
}

func extractionUserPrompt(text string) string {
	return fmt.Sprintf(`Article: %s
Based on the Article, what compromised entity is mentioned?
What product is affected?
How much has this product been exploited?
Summarize the article in 100 words.`, text)
}

// decodePayload accepts exactly one JSON object. An empty answer or a bare
// null decodes to an empty payload, which later reads as "not an incident".
func decodePayload(content string) (extractionPayload, error) {
	var payload extractionPayload

	trimmed := strings.TrimSpace(content)
	if trimmed == "" || trimmed == "null" {
		return payload, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return extractionPayload{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return extractionPayload{}, fmt.Errorf("%w: trailing data after JSON object", ErrMalformedResponse)
	}
	return payload, nil
}

// vendorSentinels are vendor keys the model writes as a string when it means "no vendor".
var vendorSentinels = map[string]struct{}{
	"NULL": {}, "NONE": {}, "UNKNOWN": {}, "N/A": {}, "NA": {}, "NIL": {},
}

// toExtractedIncident is the single place where missing fields become placeholders.
// It reports false when the vendor is absent, normalizes to nothing or is a sentinel.
func toExtractedIncident(p extractionPayload) (domain.ExtractedIncident, bool) {
	vendor := valueOr(p.Vendor, "")
	key := domain.NormalizeVendor(vendor)
	if key == "" {
		return domain.ExtractedIncident{}, false
	}
	if _, ok := vendorSentinels[key]; ok {
		return domain.ExtractedIncident{}, false
	}

	return domain.ExtractedIncident{
		VendorRaw:               vendor,
		Product:                 valueOr(p.Product, PlaceholderProduct),
		ExploitDescription:      valueOr(p.Exploits, PlaceholderExploits),
		Summary:                 valueOr(p.Summary, PlaceholderSummary),
		IncidentType:            valueOr(p.IncidentType, PlaceholderIncidentType),
		AffectedService:         valueOr(p.AffectedService, PlaceholderService),
		PotentiallyImpactedData: valueOr(p.PotentiallyImpactedData, PlaceholderImpactedData),
		Status:                  valueOr(p.Status, PlaceholderStatus),
	}, true
}

func valueOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	if s := strings.TrimSpace(*v); s != "" {
		return s
	}
	return fallback
}

func truncate(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}
