package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/afyacare/clinic-intake-platform/internal/consultations"
	"github.com/afyacare/clinic-intake-platform/internal/observability/metrics"
	"github.com/afyacare/clinic-intake-platform/internal/patients"
	"github.com/afyacare/clinic-intake-platform/internal/tenancy"
	"github.com/afyacare/clinic-intake-platform/internal/triage"
	"github.com/afyacare/clinic-intake-platform/pkg/logging"
)

var tracer = otel.Tracer("conversation")

// genericErrorReply is sent whenever a turn cannot complete because of
// an internal failure. The patient's state is unchanged, so resending
// the message retries the turn.
const genericErrorReply = "⚠️ Sorry, we ran into a technical problem. Please send that message again in a moment."

// unknownStateReply is sent when a row holds a state this version does
// not recognize.
const unknownStateReply = "I'm not sure I understand. Type NEW to start a fresh consultation."

type patientDirectory interface {
	LoadOrCreate(ctx context.Context, tenantID, phone string) (*patients.Patient, error)
	UpdateName(ctx context.Context, tenantID, phone, name string) (*patients.Patient, error)
}

type symptomAnalyzer interface {
	Assess(ctx context.Context, symptomText, patientName string) triage.Assessment
}

type bookingHistory interface {
	MostRecent(ctx context.Context, tenantID, phone string) (*consultations.Consultation, error)
}

// Engine drives one intake conversation per (tenant, contact). Every
// turn takes the contact's serialized lock, loads state, applies the
// message, and persists the outcome before replying.
type Engine struct {
	store     Store
	patients  patientDirectory
	history   bookingHistory
	analyzer  symptomAnalyzer
	hospitals *HospitalDirectory
	metrics   *metrics.IntakeMetrics
	logger    *logging.Logger
	locks     *keyLock
	now       func() time.Time
}

// NewEngine wires the intake engine. hospitals and metrics may be nil.
func NewEngine(store Store, patients patientDirectory, history bookingHistory, analyzer symptomAnalyzer, hospitals *HospitalDirectory, m *metrics.IntakeMetrics, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		store:     store,
		patients:  patients,
		history:   history,
		analyzer:  analyzer,
		hospitals: hospitals,
		metrics:   m,
		logger:    logger,
		locks:     newKeyLock(),
		now:       time.Now,
	}
}

// HandleMessage processes one inbound message and returns the reply.
// It never fails outward: internal errors are logged and answered with
// a generic retry prompt so the patient is never left without a reply.
func (e *Engine) HandleMessage(ctx context.Context, tenant *tenancy.Tenant, phone, body string) string {
	ctx, span := tracer.Start(ctx, "conversation.HandleMessage")
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", tenant.ID))

	key := tenant.ID + "|" + phone
	e.locks.lock(key)
	defer e.locks.unlock(key)

	started := e.now()

	conv, err := e.store.LoadOrCreate(ctx, tenant.ID, phone)
	if err != nil {
		e.logger.Error("loading conversation state failed",
			"tenant_id", tenant.ID, "phone", phone, "error", err)
		return genericErrorReply
	}
	span.SetAttributes(attribute.String("conversation.state", string(conv.State)))
	defer func() {
		e.metrics.ObserveTurn(string(conv.State), e.now().Sub(started).Seconds())
	}()

	patient, err := e.patients.LoadOrCreate(ctx, tenant.ID, phone)
	if err != nil {
		e.logger.Error("loading patient failed",
			"tenant_id", tenant.ID, "phone", phone, "error", err)
		return genericErrorReply
	}

	msg := strings.TrimSpace(body)
	upper := strings.ToUpper(msg)

	// NEW and RESET restart the flow from any state.
	if upper == "NEW" || upper == "RESET" {
		conv.State = StateGreeting
		conv.Context = Context{}
		if !e.save(ctx, conv) {
			return genericErrorReply
		}
		return fmt.Sprintf("🏥 Welcome to %s!\n\nI'm your AI health assistant. May I know your name please?", tenant.Name)
	}

	switch conv.State {
	case StateGreeting:
		return e.handleGreeting(ctx, tenant, conv)
	case StateAwaitingName:
		return e.handleName(ctx, tenant, conv, msg)
	case StateAwaitingSymptoms:
		return e.handleSymptoms(ctx, tenant, conv, patient, msg)
	case StateTriageComplete:
		return e.handleTriageResult(ctx, tenant, conv, msg)
	case StateSelectingHospital:
		return e.handleHospitalSelection(ctx, tenant, conv, patient, msg)
	case StateConfirmed:
		return e.handleConfirmed(ctx, tenant, conv, msg)
	}

	// Unrecognized state on disk. Restart the flow rather than wedging
	// the contact forever.
	e.logger.Warn("unknown conversation state, restarting flow",
		"tenant_id", tenant.ID, "phone", phone, "state", string(conv.State))
	conv.State = StateGreeting
	conv.Context = Context{}
	if !e.save(ctx, conv) {
		return genericErrorReply
	}
	return unknownStateReply
}

func (e *Engine) handleGreeting(ctx context.Context, tenant *tenancy.Tenant, conv *Conversation) string {
	conv.State = StateAwaitingName
	if !e.save(ctx, conv) {
		return genericErrorReply
	}
	return fmt.Sprintf("🏥 Welcome to %s!\n\nI'm your AI health assistant. I'll help you with symptom assessment and hospital booking.\n\nMay I know your name please?", tenant.Name)
}

func (e *Engine) handleName(ctx context.Context, tenant *tenancy.Tenant, conv *Conversation, msg string) string {
	name := titleCase(msg)
	if _, err := e.patients.UpdateName(ctx, tenant.ID, conv.Phone, name); err != nil {
		e.logger.Error("updating patient name failed",
			"tenant_id", tenant.ID, "phone", conv.Phone, "error", err)
		return genericErrorReply
	}

	conv.Context.PatientName = name
	conv.State = StateAwaitingSymptoms
	if !e.save(ctx, conv) {
		return genericErrorReply
	}
	return fmt.Sprintf("Thank you, %s. 👋\n\nPlease describe what brings you here today. You can say something like:\n• 'I have headache and fever'\n• 'Stomach pain for 3 days'\n• 'Chest pain when breathing'", name)
}

func (e *Engine) handleSymptoms(ctx context.Context, tenant *tenancy.Tenant, conv *Conversation, patient *patients.Patient, msg string) string {
	assessment := e.analyzer.Assess(ctx, msg, patient.DisplayName())

	conv.Context.Symptoms = msg
	conv.Context.Assessment = &assessment
	conv.Context.IsEmergency = assessment.Severity == triage.SeverityEmergency
	conv.State = StateTriageComplete
	if !e.save(ctx, conv) {
		return genericErrorReply
	}

	if conv.Context.IsEmergency {
		return fmt.Sprintf("🚨 *EMERGENCY DETECTED*\n\n%s\n\n⚠️ Please go to the nearest hospital IMMEDIATELY or call emergency services!\n\nDo you need help finding the closest emergency facility? Reply YES for options.", assessment.Summary)
	}
	return fmt.Sprintf("%s *Assessment Complete*\n\n*Symptoms:* %s\n*Severity:* %s\n*Assessment:* %s\n\n*Recommendation:* %s\n\nWould you like me to book you at a hospital? Reply YES to continue or MORE for details.",
		severityEmoji(assessment.Severity),
		msg,
		strings.ToUpper(assessment.Severity),
		assessment.Summary,
		assessment.RecommendedAction,
	)
}

func (e *Engine) handleTriageResult(ctx context.Context, tenant *tenancy.Tenant, conv *Conversation, msg string) string {
	lower := strings.ToLower(msg)

	if containsAny(lower, "yes", "book", "hospital", "continue") {
		options := e.hospitals.ForTenant(ctx, tenant.ID)
		var list strings.Builder
		for i, h := range options {
			if i > 0 {
				list.WriteByte('\n')
			}
			fmt.Fprintf(&list, "*%d. %s* (%s)", h.ID, h.Name, h.Specialty)
		}
		conv.State = StateSelectingHospital
		if !e.save(ctx, conv) {
			return genericErrorReply
		}
		return fmt.Sprintf("🏥 *Select Hospital*\n\n%s\n\nReply with the number (1-%d):", list.String(), len(options))
	}

	if strings.Contains(lower, "more") || strings.Contains(lower, "detail") {
		a := conv.Context.Assessment
		if a == nil {
			a = &triage.Assessment{}
		}
		specialist := a.SpecialistNeeded
		if specialist == "" {
			specialist = "General"
		}
		urgency := a.HospitalUrgency
		if urgency == "" {
			urgency = triage.UrgencyRoutine
		}
		claim := "❌ Not eligible"
		if a.SHAClaimEligible {
			claim = "✅ Eligible"
		}
		return fmt.Sprintf("📋 *Detailed Information*\n\n*Specialist Needed:* %s\n*Urgency:* %s\n*SHA Claim:* %s\n\n%s\n\nReply YES to book or NEW to start over.",
			specialist, urgency, claim, a.Disclaimer)
	}

	return "Please reply YES to book a hospital, MORE for details, or NEW to start over."
}

func (e *Engine) handleHospitalSelection(ctx context.Context, tenant *tenancy.Tenant, conv *Conversation, patient *patients.Patient, msg string) string {
	options := e.hospitals.ForTenant(ctx, tenant.ID)

	choice, err := strconv.Atoi(strings.TrimSpace(msg))
	var selected *Hospital
	if err == nil {
		for i := range options {
			if options[i].ID == choice {
				selected = &options[i]
				break
			}
		}
	}
	if selected == nil {
		ids := make([]string, len(options))
		for i, h := range options {
			ids[i] = strconv.Itoa(h.ID)
		}
		return fmt.Sprintf("❌ Invalid selection. Please reply with a number: %s", strings.Join(ids, ", "))
	}

	assessment := triage.Assessment{}
	if conv.Context.Assessment != nil {
		assessment = *conv.Context.Assessment
	}

	conv.Context.HospitalID = selected.ID
	conv.State = StateConfirmed

	var saved *consultations.Consultation
	for attempt := 0; attempt < 2; attempt++ {
		ref := newReferenceNumber(e.now())
		conv.Context.Reference = ref
		saved, err = e.store.SaveBooking(ctx, conv, consultations.Record{
			TenantID:         tenant.ID,
			Phone:            conv.Phone,
			PatientName:      patient.DisplayName(),
			Symptoms:         conv.Context.Symptoms,
			Assessment:       assessment,
			HospitalID:       strconv.Itoa(selected.ID),
			ReferenceNumber:  ref,
			SHAClaimEligible: assessment.SHAClaimEligible,
		})
		if !errors.Is(err, consultations.ErrDuplicateReference) {
			break
		}
	}
	if err != nil {
		e.logger.Error("saving booking failed",
			"tenant_id", tenant.ID, "phone", conv.Phone, "error", err)
		return genericErrorReply
	}
	e.metrics.ObserveBooking()
	e.logger.Info("booking confirmed",
		"tenant_id", tenant.ID, "phone", conv.Phone,
		"reference", saved.ReferenceNumber, "hospital", selected.Name)

	claim := "Check at reception"
	if assessment.SHAClaimEligible {
		claim = "Yes"
	}
	return fmt.Sprintf("✅ *Booking Confirmed!*\n\n*Patient:* %s\n*Reference:* `%s`\n*Hospital:* %s\n*Specialty:* %s\n\n*Next Steps:*\n1. Present this reference at the hospital\n2. Mention SHA claim eligibility: %s\n3. Bring ID and any previous medical records\n\n*Estimated wait time:* 15-30 minutes\n\nType NEW for another consultation.",
		patient.DisplayName(), saved.ReferenceNumber, selected.Name, selected.Specialty, claim)
}

func (e *Engine) handleConfirmed(ctx context.Context, tenant *tenancy.Tenant, conv *Conversation, msg string) string {
	if strings.Contains(strings.ToLower(msg), "status") {
		recent, err := e.history.MostRecent(ctx, tenant.ID, conv.Phone)
		if errors.Is(err, consultations.ErrNoConsultations) {
			return "No recent consultations found. Type NEW to start."
		}
		if err != nil {
			e.logger.Error("looking up last consultation failed",
				"tenant_id", tenant.ID, "phone", conv.Phone, "error", err)
			return genericErrorReply
		}
		hospitalName := "Unknown"
		if id, convErr := strconv.Atoi(recent.HospitalID); convErr == nil {
			for _, h := range e.hospitals.ForTenant(ctx, tenant.ID) {
				if h.ID == id {
					hospitalName = h.Name
					break
				}
			}
		}
		return fmt.Sprintf("📋 *Your Last Consultation*\nReference: `%s`\nStatus: %s\nHospital: %s\n\nType NEW for a new consultation.",
			recent.ReferenceNumber, strings.ToUpper(recent.Status), hospitalName)
	}
	return "Type NEW to start a fresh consultation or STATUS to check your last booking."
}

// save persists conv, translating every failure into a logged event so
// the caller can fall back to the generic reply.
func (e *Engine) save(ctx context.Context, conv *Conversation) bool {
	if err := e.store.Save(ctx, conv); err != nil {
		e.logger.Error("saving conversation state failed",
			"tenant_id", conv.TenantID, "phone", conv.Phone, "error", err)
		return false
	}
	return true
}

func severityEmoji(severity string) string {
	switch severity {
	case triage.SeverityLow:
		return "🟢"
	case triage.SeverityMedium:
		return "🟡"
	case triage.SeverityHigh:
		return "🔴"
	case triage.SeverityEmergency:
		return "🚨"
	}
	return "⚪"
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// titleCase uppercases the first letter of each word, matching how
// names are normalized elsewhere in the platform.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
