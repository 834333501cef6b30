// Package openai provides a speech.Provider backed by the OpenAI API:
// Whisper for batch audio transcription and a chat model for text translation.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/polyvox/pkg/provider/speech"
)

const (
	defaultSTTModel       = oai.AudioModelWhisper1
	defaultTranslateModel = shared.ChatModelGPT4oMini
)

// Provider implements speech.Provider using the OpenAI API.
type Provider struct {
	client         oai.Client
	sttModel       oai.AudioModel
	translateModel shared.ChatModel
}

// Compile-time interface assertion.
var _ speech.Provider = (*Provider)(nil)

// config holds optional configuration for the provider.
type config struct {
	baseURL        string
	sttModel       string
	translateModel string
	timeout        time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithSTTModel selects the transcription model (default "whisper-1").
func WithSTTModel(model string) Option {
	return func(c *config) {
		c.sttModel = model
	}
}

// WithTranslateModel selects the chat model used for text translation
// (default "gpt-4o-mini").
func WithTranslateModel(model string) Option {
	return func(c *config) {
		c.translateModel = model
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI speech Provider. Returns
// [speech.ErrUnconfigured] when apiKey is empty so that callers can surface a
// "disabled" status instead of failing requests later.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, speech.ErrUnconfigured
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	p := &Provider{
		client:         oai.NewClient(reqOpts...),
		sttModel:       defaultSTTModel,
		translateModel: defaultTranslateModel,
	}
	if cfg.sttModel != "" {
		p.sttModel = oai.AudioModel(cfg.sttModel)
	}
	if cfg.translateModel != "" {
		p.translateModel = shared.ChatModel(cfg.translateModel)
	}
	return p, nil
}

// Transcribe implements speech.Transcriber. The language is a BCP-47 tag;
// Whisper accepts only the ISO-639-1 base, so "hi-IN" is sent as "hi".
func (p *Provider) Transcribe(ctx context.Context, wav []byte, language string) (speech.Result, error) {
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "clip.wav", "audio/wav"),
		Model: p.sttModel,
	}
	if base := BaseLang(language); base != "" {
		params.Language = oai.String(base)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return speech.Result{}, classifyErr("transcribe", err)
	}

	return speech.Result{
		Transcript:       strings.TrimSpace(resp.Text),
		DetectedLanguage: language,
	}, nil
}

// Translate implements speech.Translator via a single chat completion.
func (p *Provider) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	sys := fmt.Sprintf(
		"You are a translation engine. Translate the user's text from %s to %s. "+
			"Reply with the translation only, no commentary.",
		sourceLang, targetLang,
	)

	resp, err := p.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: p.translateModel,
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(sys),
			oai.UserMessage(text),
		},
	})
	if err != nil {
		return "", classifyErr("translate", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: translate: empty choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// BaseLang reduces a BCP-47 tag to its ISO-639-1 base ("hi-IN" → "hi").
// Empty and "auto" map to "" (provider-side detection).
func BaseLang(tag string) string {
	if tag == "" || strings.EqualFold(tag, "auto") {
		return ""
	}
	if i := strings.IndexByte(tag, '-'); i > 0 {
		return strings.ToLower(tag[:i])
	}
	return strings.ToLower(tag)
}

// classifyErr maps API errors onto the speech error taxonomy: HTTP 429 becomes
// a wrapped [speech.ErrRateLimited], everything else is a generic failure.
func classifyErr(op string, err error) error {
	var apierr *oai.Error
	if errors.As(err, &apierr) && apierr.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("openai: %s: %w", op, speech.ErrRateLimited)
	}
	return fmt.Errorf("openai: %s: %w", op, err)
}
