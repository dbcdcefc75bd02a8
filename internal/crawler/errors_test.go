package crawler

import (
	"errors"
	"testing"
)

func TestFetchFailedUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := &FetchFailed{URL: "http://example.com", Cause: cause}
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
	if err.Error() == "" {
		t.Fatal("expected non-empty error message")
	}
}

func TestParseFailedUnwraps(t *testing.T) {
	cause := errors.New("parse boom")
	err := &ParseFailed{URL: "http://example.com", Cause: cause}
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}
