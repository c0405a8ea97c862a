package domain

import (
	"fmt"
	"net/http"
)

// SubscriptionIndex maps a vendor key to the set of verified subscriber addresses.
type SubscriptionIndex map[string]map[string]struct{}

// Add records address as a subscriber of vendorKey.
func (s SubscriptionIndex) Add(vendorKey, address string) {
	set, ok := s[vendorKey]
	if !ok {
		set = map[string]struct{}{}
		s[vendorKey] = set
	}
	set[address] = struct{}{}
}

// Subscribers returns the addresses subscribed to vendorKey.
func (s SubscriptionIndex) Subscribers(vendorKey string) []string {
	set := s[vendorKey]
	out := make([]string, 0, len(set))
	for addr := range set {
		out = append(out, addr)
	}
	return out
}

// Invocation is the structured request of one pipeline run.
type Invocation struct {
	Hours *int `json:"hours,omitempty"`
}

// RunSummary accumulates the counters of one pipeline invocation.
type RunSummary struct {
	Candidates          int
	ExtractionDropped   int
	Duplicates          int
	Inserted            int
	SkippedDuplicateURL int
	PersistFailures     int
	Notified            int
	FailedSends         int
	FailedSources       []string
}

// Response is the structured outcome of an invocation.
type Response struct {
	StatusCode int `json:"statusCode"`
	Body       any `json:"body"`
}

// ErrorBody is the body of a failed invocation.
type ErrorBody struct {
	Error string `json:"error"`
}

// NoEntriesResponse is returned when no candidate survives extraction.
func NoEntriesResponse() Response {
	return Response{StatusCode: http.StatusOK, Body: "No new entries found."}
}

// SuccessResponse reports insert and send counts.
func SuccessResponse(summary RunSummary) Response {
	return Response{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf("Inserted %d new entries. Sent %d emails.", summary.Inserted, summary.Notified),
	}
}

// FailureResponse wraps an unhandled error.
func FailureResponse(err error) Response {
	return Response{StatusCode: http.StatusInternalServerError, Body: ErrorBody{Error: err.Error()}}
}
