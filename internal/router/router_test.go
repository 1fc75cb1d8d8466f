package router

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSelectPerKind(t *testing.T) {
	tests := []struct {
		name     string
		kind     ContentKind
		content  Content
		wantCap  Capability
		wantConf float64
	}{
		{"plain text", KindText, Content{Text: "สวัสดี"}, CapConversation, 0.9},
		{"image boosts analysis", KindImage, Content{}, CapImageAnalysis, 1.0},
		{"pdf boosts document analysis", KindFile, Content{FileName: "form.PDF"}, CapDocumentAnalysis, 1.0},
		{"non-pdf file", KindFile, Content{FileName: "data.csv"}, CapDocumentAnalysis, 0.9},
		{"location", KindLocation, Content{Title: "ศาลากลาง"}, CapLocationContext, 0.9},
		{"sticker", KindSticker, Content{PackageID: "1", StickerID: "2"}, CapEmotionResponse, 0.8},
		{"audio", KindAudio, Content{}, CapTextGeneration, 0.7},
		{"video", KindVideo, Content{}, CapTextGeneration, 0.7},
		{"postback", KindPostback, Content{PostbackData: "action=faq"}, CapQuestionAnswering, 0.8},
		{"unknown kind", KindUnknown, Content{}, CapTextGeneration, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := Select(tt.kind, tt.content, UserProfile{DisplayName: "สมชาย"})
			if sel.Capability != tt.wantCap {
				t.Errorf("capability = %s, want %s", sel.Capability, tt.wantCap)
			}
			if sel.Confidence != tt.wantConf {
				t.Errorf("confidence = %v, want %v", sel.Confidence, tt.wantConf)
			}
			if len(sel.Fallbacks) > 2 {
				t.Errorf("fallback chain too long: %v", sel.Fallbacks)
			}
			if sel.Prompt == "" {
				t.Error("empty prompt")
			}
		})
	}
}

func TestSelectQuestionBoost(t *testing.T) {
	// 0.8 + 0.15 question boost beats conversation's 0.9.
	sel := Select(KindText, Content{Text: "เปิดทำการเมื่อไหร่"}, UserProfile{})
	if sel.Capability != CapQuestionAnswering {
		t.Fatalf("capability = %s, want %s", sel.Capability, CapQuestionAnswering)
	}
	if sel.Confidence != 0.95 {
		t.Errorf("confidence = %v, want 0.95", sel.Confidence)
	}
}

func TestSelectHelpBoostKeepsConversation(t *testing.T) {
	sel := Select(KindText, Content{Text: "ช่วยหน่อยครับ"}, UserProfile{})
	if sel.Capability != CapConversation {
		t.Fatalf("capability = %s, want %s", sel.Capability, CapConversation)
	}
	if sel.Confidence != 1.0 {
		t.Errorf("confidence = %v, want capped 1.0", sel.Confidence)
	}
}

// A message carrying both a question word and a help word boosts both
// question_answering (0.95) and conversation (capped 1.0); conversation
// must win and question_answering must lead the fallback chain.
func TestSelectCombinedBoosts(t *testing.T) {
	sel := Select(KindText, Content{Text: "ช่วยบอกหน่อยว่าต้องทำอย่างไร"}, UserProfile{})
	if sel.Capability != CapConversation {
		t.Fatalf("capability = %s, want %s", sel.Capability, CapConversation)
	}
	if sel.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", sel.Confidence)
	}
	if len(sel.Fallbacks) == 0 || sel.Fallbacks[0] != CapQuestionAnswering {
		t.Errorf("fallbacks = %v, want question_answering first", sel.Fallbacks)
	}
}

// Equal adjusted confidences must preserve table order, because Select
// only replaces the leader on a strictly greater score.
func TestAdjustConfidencePreservesOrderOnTies(t *testing.T) {
	cands := []candidate{{CapConversation, 0.8}, {CapQuestionAnswering, 0.8}}
	adjusted := adjustConfidence(cands, features{})
	if adjusted[0].cap != CapConversation || adjusted[1].cap != CapQuestionAnswering {
		t.Errorf("order changed: %v", adjusted)
	}
	if adjusted[0].conf != adjusted[1].conf {
		t.Errorf("confidences diverged: %v", adjusted)
	}
}

func TestAnalyzeContentComplexity(t *testing.T) {
	short := analyzeContent(KindText, Content{Text: "สั้น"})
	if short.complex {
		t.Error("short text marked complex")
	}
	long := analyzeContent(KindText, Content{Text: strings.Repeat("ยาว", 40)})
	if !long.complex {
		t.Error("long text not marked complex")
	}
}

func TestRenderPromptFields(t *testing.T) {
	sel := Select(KindLocation, Content{
		Title:     "โรงพยาบาล",
		Address:   "ถนนหลัก",
		Latitude:  13.75,
		Longitude: 100.5,
	}, UserProfile{DisplayName: "สมหญิง"})

	for _, want := range []string{"สมหญิง", "โรงพยาบาล", "ถนนหลัก", "13.75", "100.5"} {
		if !strings.Contains(sel.Prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

// fakeProvider scripts per-capability outcomes and records the call order.
type fakeProvider struct {
	failFirst int // number of leading calls that fail
	calls     []string
}

func (f *fakeProvider) do(kind string) (string, error) {
	f.calls = append(f.calls, kind)
	if len(f.calls) <= f.failFirst {
		return "", errors.New("provider down")
	}
	return "ok:" + kind, nil
}

func (f *fakeProvider) Complete(ctx context.Context, prompt string) (string, error) {
	return f.do("complete")
}

func (f *fakeProvider) AnalyzeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	return f.do("image")
}

func (f *fakeProvider) AnalyzeDocument(ctx context.Context, prompt string, doc []byte, fileName string) (string, error) {
	return f.do("document")
}

func (f *fakeProvider) Name() string { return "fake" }

const apology = "ขออภัยค่ะ"

func TestProcessSuccess(t *testing.T) {
	fp := &fakeProvider{}
	r := New(fp, apology)

	sel := Select(KindText, Content{Text: "สวัสดี"}, UserProfile{})
	got, err := r.Process(context.Background(), sel, Content{Text: "สวัสดี"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got != "ok:complete" {
		t.Errorf("response = %q", got)
	}
	if len(fp.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(fp.calls))
	}
}

func TestProcessFallbackSucceeds(t *testing.T) {
	fp := &fakeProvider{failFirst: 1}
	r := New(fp, apology)

	sel := Select(KindText, Content{Text: "สวัสดี"}, UserProfile{})
	got, err := r.Process(context.Background(), sel, Content{Text: "สวัสดี"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.HasPrefix(got, "ok:") {
		t.Errorf("response = %q", got)
	}
	if len(fp.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(fp.calls))
	}
}

// Primary and fallback both fail: the caller gets the apology, a
// ToolProcessingError, and no third attempt.
func TestProcessDoubleFailure(t *testing.T) {
	fp := &fakeProvider{failFirst: 10}
	r := New(fp, apology)

	sel := Select(KindText, Content{Text: "สวัสดี"}, UserProfile{})
	got, err := r.Process(context.Background(), sel, Content{Text: "สวัสดี"})
	if got != apology {
		t.Errorf("response = %q, want apology", got)
	}
	var tpe *ToolProcessingError
	if !errors.As(err, &tpe) {
		t.Fatalf("error = %v, want ToolProcessingError", err)
	}
	if len(fp.calls) != 2 {
		t.Errorf("calls = %d, want exactly 2", len(fp.calls))
	}
}

func TestProcessMissingImageShortCircuits(t *testing.T) {
	fp := &fakeProvider{}
	r := New(fp, apology)

	sel := Select(KindImage, Content{}, UserProfile{})
	got, err := r.Process(context.Background(), sel, Content{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got != msgMissingImage {
		t.Errorf("response = %q, want missing-image message", got)
	}
	if len(fp.calls) != 0 {
		t.Errorf("provider called %d times for missing image", len(fp.calls))
	}
}
