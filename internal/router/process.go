package router

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/livedesk-ai/livedesk/internal/providers"
)

var tracer = otel.Tracer("livedesk/router")

// fallbackConfidence is the fixed score a fallback attempt runs at.
const fallbackConfidence = 0.3

// Thai user-facing strings for unrecoverable paths.
const (
	msgMissingImage    = "ขออภัย ไม่สามารถดาวน์โหลดรูปภาพได้ กรุณาส่งรูปภาพใหม่อีกครั้ง"
	msgMissingDocument = "ขออภัย ไม่สามารถดาวน์โหลดเอกสารได้ กรุณาส่งไฟล์ใหม่อีกครั้ง"
)

// ToolProcessingError reports that the primary capability and its fallback
// both failed. The caller still gets an apology string to send.
type ToolProcessingError struct {
	Capability Capability
	Err        error
}

func (e *ToolProcessingError) Error() string {
	return fmt.Sprintf("tool processing failed for %s: %v", e.Capability, e.Err)
}

func (e *ToolProcessingError) Unwrap() error { return e.Err }

// Router runs selections against a completion provider.
type Router struct {
	provider providers.Client
	apology  string
}

func New(provider providers.Client, apology string) *Router {
	return &Router{provider: provider, apology: apology}
}

// Process executes the selection. On failure it makes exactly one more
// attempt with the first fallback capability, then gives up and returns
// the apology text together with a ToolProcessingError.
func (r *Router) Process(ctx context.Context, sel Selection, content Content) (string, error) {
	ctx, span := tracer.Start(ctx, "router.process")
	span.SetAttributes(
		attribute.String("capability", string(sel.Capability)),
		attribute.Float64("confidence", sel.Confidence),
	)
	defer span.End()

	out, err := r.invoke(ctx, sel.Capability, sel.Prompt, content)
	if err == nil {
		return out, nil
	}
	slog.Warn("capability failed",
		"category", "router", "subcategory", "processing_error",
		"capability", sel.Capability, "confidence", sel.Confidence, "error", err)

	if len(sel.Fallbacks) > 0 {
		fb := sel.Fallbacks[0]
		out, fbErr := r.invoke(ctx, fb, sel.Prompt, content)
		if fbErr == nil {
			slog.Info("fallback capability succeeded",
				"category", "router", "subcategory", "fallback",
				"capability", fb, "confidence", fallbackConfidence)
			return out, nil
		}
		slog.Warn("fallback capability failed",
			"category", "router", "subcategory", "fallback_error",
			"capability", fb, "error", fbErr)
		err = fbErr
	}

	return r.apology, &ToolProcessingError{Capability: sel.Capability, Err: err}
}

func (r *Router) invoke(ctx context.Context, cap Capability, prompt string, content Content) (string, error) {
	switch cap {
	case CapImageAnalysis:
		if len(content.Image) == 0 {
			return msgMissingImage, nil
		}
		return r.provider.AnalyzeImage(ctx, prompt, content.Image, content.MimeType)
	case CapDocumentAnalysis:
		if len(content.Document) == 0 {
			return msgMissingDocument, nil
		}
		return r.provider.AnalyzeDocument(ctx, prompt, content.Document, content.FileName)
	default:
		return r.provider.Complete(ctx, prompt)
	}
}
