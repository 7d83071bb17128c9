package errors

import (
	"testing"
	"time"
)

func TestErrorBuilder(t *testing.T) {
	baseErr := NewStd("image fetch failed")

	enhanced := New(baseErr).
		Component("hosts").
		Category(CategoryImageFetch).
		Context("provider", "imgur").
		Context("resource_id", "AbCd123").
		Build()

	if enhanced.Error() != "image fetch failed" {
		t.Errorf("expected error message 'image fetch failed', got '%s'", enhanced.Error())
	}

	if enhanced.GetComponent() != "hosts" {
		t.Errorf("expected component 'hosts', got '%s'", enhanced.GetComponent())
	}

	if enhanced.GetCategory() != string(CategoryImageFetch) {
		t.Errorf("expected category '%s', got '%s'", CategoryImageFetch, enhanced.GetCategory())
	}

	ctx := enhanced.GetContext()
	if ctx["provider"] != "imgur" {
		t.Errorf("expected context provider 'imgur', got '%v'", ctx["provider"])
	}

	if time.Since(enhanced.GetTimestamp()) > time.Second {
		t.Error("timestamp should be recent")
	}
}

func TestCategoryPredicates(t *testing.T) {
	notFound := Newf("resource gone").Category(CategoryNotFound).Build()
	upstream := Newf("origin timed out").Category(CategoryUpstream).Build()

	if !IsNotFound(notFound) {
		t.Error("IsNotFound should match CategoryNotFound errors")
	}
	if IsNotFound(upstream) {
		t.Error("IsNotFound must not match upstream errors")
	}
	if !IsUpstreamUnavailable(upstream) {
		t.Error("IsUpstreamUnavailable should match CategoryUpstream errors")
	}

	// Wrapped errors keep their category visible through the chain.
	wrapped := Newf("resolve failed: %w", notFound).Build()
	if !IsNotFound(wrapped) {
		t.Error("category should survive wrapping")
	}
}

func TestCategoryDetection(t *testing.T) {
	err := New(NewStd("album not found at origin")).Build()
	if err.Category != CategoryNotFound {
		t.Errorf("expected detected category %s, got %s", CategoryNotFound, err.Category)
	}

	err = New(NewStd("context deadline exceeded")).Build()
	if err.Category != CategoryTimeout {
		t.Errorf("expected detected category %s, got %s", CategoryTimeout, err.Category)
	}
}

func TestUnwrap(t *testing.T) {
	base := NewStd("boom")
	enhanced := New(base).Build()

	if Unwrap(enhanced) != base {
		t.Error("Unwrap should return the original error")
	}
	if !Is(enhanced, base) {
		t.Error("Is should see through the enhanced wrapper")
	}
}
