// Package ai asks a large language model about the text of an invoice.
//
// The HTTP layer never talks to a provider directly: it is handed an Asker
// at construction and reports the outcome as a Result, so a failing
// provider never fails the request it is attached to.
package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrNotConfigured is returned by New when no provider is selected.
var ErrNotConfigured = errors.New("ai provider not configured")

// DefaultInstruction is the question asked about every invoice.
const DefaultInstruction = "Extrae la fecha y el total de la factura"

// Asker answers an instruction about a block of OCR text.
type Asker interface {
	Ask(ctx context.Context, text, instruction string) (string, error)
	Provider() string
}

// Config selects and configures a provider.
type Config struct {
	Provider string        `mapstructure:"provider"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// New builds the Asker named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Asker, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "none":
		return nil, ErrNotConfigured
	case "gemini":
		return NewGemini(ctx, cfg)
	case "openai":
		return NewOpenAI(cfg)
	default:
		return nil, eris.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

// BuildPrompt puts the instruction first and the OCR text after it.
func BuildPrompt(text, instruction string) string {
	if strings.TrimSpace(instruction) == "" {
		instruction = DefaultInstruction
	}
	return instruction + ":\n\n" + text
}

// Result is the tagged outcome of one AI call.
type Result struct {
	OK       bool   `json:"ok"`
	Provider string `json:"provider"`
	Text     string `json:"text,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Run asks and folds any failure (including a panic in the provider) into
// the Result.
func Run(ctx context.Context, asker Asker, text, instruction string) (res Result) {
	if asker == nil {
		return Result{Provider: "none", Error: ErrNotConfigured.Error()}
	}
	res.Provider = asker.Provider()
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("ai provider panicked", zap.String("provider", res.Provider), zap.Any("panic", r))
			res = Result{Provider: res.Provider, Error: "error interno del proveedor de IA"}
		}
	}()

	out, err := asker.Ask(ctx, text, instruction)
	if err != nil {
		zap.L().Warn("ai request failed", zap.String("provider", res.Provider), zap.Error(err))
		res.Error = err.Error()
		return res
	}
	res.OK = true
	res.Text = out
	return res
}

// withTimeout bounds one provider call when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
