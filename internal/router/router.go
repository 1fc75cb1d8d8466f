// Package router picks the AI capability for an inbound message and runs
// it against the completion provider. Selection is pure and table-driven;
// only Process touches the network.
package router

import "sort"

// ContentKind classifies an inbound message. The set is closed; anything
// the dispatcher cannot map lands on KindUnknown.
type ContentKind string

const (
	KindText     ContentKind = "text"
	KindImage    ContentKind = "image"
	KindVideo    ContentKind = "video"
	KindAudio    ContentKind = "audio"
	KindFile     ContentKind = "file"
	KindLocation ContentKind = "location"
	KindSticker  ContentKind = "sticker"
	KindPostback ContentKind = "postback"
	KindUnknown  ContentKind = "unknown"
)

// Capability names an AI processing strategy.
type Capability string

const (
	CapTextGeneration    Capability = "text_generation"
	CapConversation      Capability = "conversation"
	CapQuestionAnswering Capability = "question_answering"
	CapTranslation       Capability = "translation"
	CapImageAnalysis     Capability = "image_analysis"
	CapDocumentAnalysis  Capability = "document_analysis"
	CapContentModeration Capability = "content_moderation"
	CapSummarization     Capability = "summarization"
	CapLocationContext   Capability = "location_context"
	CapEmotionResponse   Capability = "emotion_response"
)

// Content carries the fields a message kind may populate. Unused fields
// stay zero.
type Content struct {
	Text         string
	MessageID    string
	FileName     string
	FileSize     int64
	Title        string
	Address      string
	Latitude     float64
	Longitude    float64
	PackageID    string
	StickerID    string
	PostbackData string
	Duration     int

	// Media bytes, downloaded by the dispatcher before Process.
	Image    []byte
	MimeType string
	Document []byte
}

// UserProfile is the slice of user state the prompts need.
type UserProfile struct {
	UserID      string
	DisplayName string
}

// Selection is the routing decision for one message.
type Selection struct {
	Capability Capability
	Confidence float64
	Fallbacks  []Capability
	Prompt     string
}

type candidate struct {
	cap  Capability
	conf float64
}

// candidateTable maps each content kind to its capability candidates with
// baseline confidences. Order matters: ties resolve to the earlier entry.
var candidateTable = map[ContentKind][]candidate{
	KindText: {
		{CapConversation, 0.9},
		{CapQuestionAnswering, 0.8},
		{CapTextGeneration, 0.7},
		{CapTranslation, 0.5},
	},
	KindImage: {
		{CapImageAnalysis, 0.95},
		{CapContentModeration, 0.3},
		{CapTextGeneration, 0.2},
	},
	KindFile: {
		{CapDocumentAnalysis, 0.9},
		{CapSummarization, 0.8},
		{CapQuestionAnswering, 0.6},
	},
	KindLocation: {
		{CapLocationContext, 0.9},
		{CapTextGeneration, 0.7},
		{CapQuestionAnswering, 0.5},
	},
	KindSticker: {
		{CapEmotionResponse, 0.8},
		{CapTextGeneration, 0.6},
	},
	KindAudio: {
		{CapTextGeneration, 0.7},
		{CapConversation, 0.6},
	},
	KindVideo: {
		{CapTextGeneration, 0.7},
		{CapContentModeration, 0.4},
	},
	KindPostback: {
		{CapQuestionAnswering, 0.8},
		{CapTextGeneration, 0.7},
	},
}

// features are the content signals that adjust candidate confidence.
type features struct {
	complex     bool
	question    bool
	helpRequest bool
	specialized bool
}

var questionWords = []string{"อะไร", "ที่ไหน", "เมื่อไหร่", "ทำไม", "อย่างไร", "ใคร"}

var helpWords = []string{"ช่วย", "ติดต่อ", "เจ้าหน้าที่", "admin"}

func analyzeContent(kind ContentKind, content Content) features {
	var f features
	switch kind {
	case KindText:
		if len(content.Text) > 100 {
			f.complex = true
		}
		for _, w := range questionWords {
			if containsFold(content.Text, w) {
				f.question = true
				break
			}
		}
		for _, w := range helpWords {
			if containsFold(content.Text, w) {
				f.helpRequest = true
				break
			}
		}
	case KindImage:
		f.specialized = true
	case KindFile:
		if hasSuffixFold(content.FileName, ".pdf") {
			f.specialized = true
		}
	}
	return f
}

// adjustConfidence applies the feature boosts, capping at 1.0. The input
// slice is not modified.
func adjustConfidence(candidates []candidate, f features) []candidate {
	out := make([]candidate, len(candidates))
	for i, c := range candidates {
		conf := c.conf
		if f.specialized && (c.cap == CapImageAnalysis || c.cap == CapDocumentAnalysis) {
			conf += 0.20
		}
		if f.question && c.cap == CapQuestionAnswering {
			conf += 0.15
		}
		if f.helpRequest && c.cap == CapConversation {
			conf += 0.10
		}
		if conf > 1.0 {
			conf = 1.0
		}
		out[i] = candidate{c.cap, conf}
	}
	return out
}

// Select decides the capability, confidence, fallback chain, and prompt for
// one message. It is pure and never errors; unknown kinds route to plain
// text generation at 0.5.
func Select(kind ContentKind, content Content, profile UserProfile) Selection {
	candidates, ok := candidateTable[kind]
	if !ok {
		candidates = []candidate{{CapTextGeneration, 0.5}}
	}
	f := analyzeContent(kind, content)
	adjusted := adjustConfidence(candidates, f)

	best := adjusted[0]
	for _, c := range adjusted[1:] {
		if c.conf > best.conf {
			best = c
		}
	}

	rest := make([]candidate, 0, len(adjusted)-1)
	for _, c := range adjusted {
		if c.cap != best.cap {
			rest = append(rest, c)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].conf > rest[j].conf })
	if len(rest) > 2 {
		rest = rest[:2]
	}
	fallbacks := make([]Capability, len(rest))
	for i, c := range rest {
		fallbacks[i] = c.cap
	}

	return Selection{
		Capability: best.cap,
		Confidence: best.conf,
		Fallbacks:  fallbacks,
		Prompt:     renderPrompt(best.cap, kind, content, profile, f),
	}
}
