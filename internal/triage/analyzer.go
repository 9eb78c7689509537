package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/afyacare/clinic-intake-platform/internal/observability/metrics"
	"github.com/afyacare/clinic-intake-platform/pkg/logging"
)

var analyzerTracer = otel.Tracer("afyacare.internal.triage")

const systemPrompt = "You are a professional medical triage assistant."

const promptTemplate = `You are a medical triage assistant for a Kenyan clinic. Analyze the patient's symptoms and provide a structured assessment.

Patient Name: %s
Symptoms: %q

Provide your response in this exact JSON format:
{
    "severity": "low|medium|high|emergency",
    "confidence": 0.0-1.0,
    "assessment": "Brief medical assessment (2-3 sentences)",
    "recommended_action": "What patient should do next",
    "specialist_needed": "General|Cardiologist|Pediatrician|Dermatologist|Orthopedic|Other",
    "hospital_urgency": "routine|same-day|emergency",
    "sha_claim_eligible": true|false,
    "disclaimer": "This is not a medical diagnosis. Please consult a doctor for proper evaluation."
}

Rules:
- Severity "emergency" only for: chest pain, severe bleeding, unconsciousness, severe breathing difficulty, poisoning
- SHA claim eligible for: consultations, lab tests, medications (not cosmetic procedures)
- Be empathetic but professional
- Use simple language patients can understand`

// AnalyzerConfig bundles the model parameters for the triage call.
type AnalyzerConfig struct {
	Model       string
	Timeout     time.Duration
	MaxTokens   int32
	Temperature float32
}

// Analyzer turns free-text symptoms into a structured Assessment. Assess is
// total: every failure mode degrades to the fixed fallback, so a turn never
// gets stuck waiting on the model.
type Analyzer struct {
	llm     LLMClient
	cfg     AnalyzerConfig
	logger  *logging.Logger
	metrics *metrics.IntakeMetrics
}

// NewAnalyzer creates an analyzer. A nil llm is allowed and means every
// assessment is the fallback (useful for local runs without model access).
func NewAnalyzer(llm LLMClient, cfg AnalyzerConfig, logger *logging.Logger, m *metrics.IntakeMetrics) *Analyzer {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 300
	}
	return &Analyzer{llm: llm, cfg: cfg, logger: logger, metrics: m}
}

// Assess performs one bounded model call and normalizes the response.
func (a *Analyzer) Assess(ctx context.Context, symptomText, patientName string) Assessment {
	ctx, span := analyzerTracer.Start(ctx, "triage.assess")
	defer span.End()

	if patientName == "" {
		patientName = "Patient"
	}
	if a.llm == nil {
		a.logger.Warn("triage model not configured, using fallback assessment")
		a.observe("fallback")
		return Fallback()
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	req := LLMRequest{
		Model:       a.cfg.Model,
		System:      []string{systemPrompt},
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
		Messages: []ChatMessage{
			{Role: ChatRoleUser, Content: fmt.Sprintf(promptTemplate, patientName, symptomText)},
		},
	}

	resp, err := a.llm.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		a.logger.Error("triage model call failed", "error", err)
		a.observe("fallback")
		return Fallback()
	}

	assessment, err := parseAssessment(resp.Text)
	if err != nil {
		span.RecordError(err)
		a.logger.Error("triage response unparseable", "error", err)
		a.observe("fallback")
		return Fallback()
	}

	span.SetAttributes(attribute.String("afyacare.triage.severity", assessment.Severity))
	a.observe("ok")
	return assessment
}

// parseAssessment extracts the JSON object from the model output and fills
// required-but-absent string fields with "unknown".
func parseAssessment(text string) (Assessment, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Assessment{}, fmt.Errorf("triage: no JSON object in model output")
	}

	var assessment Assessment
	if err := json.Unmarshal([]byte(text[start:end+1]), &assessment); err != nil {
		return Assessment{}, fmt.Errorf("triage: decode assessment: %w", err)
	}

	for _, field := range []*string{
		&assessment.Severity,
		&assessment.Summary,
		&assessment.RecommendedAction,
		&assessment.HospitalUrgency,
	} {
		if strings.TrimSpace(*field) == "" {
			*field = "unknown"
		}
	}
	if assessment.SpecialistNeeded == "" {
		assessment.SpecialistNeeded = "General"
	}
	if assessment.Disclaimer == "" {
		assessment.Disclaimer = Disclaimer
	}
	return assessment, nil
}

func (a *Analyzer) observe(outcome string) {
	if a.metrics != nil {
		a.metrics.ObserveTriage(outcome)
	}
}
