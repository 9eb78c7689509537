package messaging

import (
	"context"
	"encoding/xml"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/afyacare/clinic-intake-platform/internal/observability/metrics"
	"github.com/afyacare/clinic-intake-platform/internal/tenancy"
	"github.com/afyacare/clinic-intake-platform/pkg/logging"
)

var handlerTracer = otel.Tracer("messaging.webhook")

const providerTwilio = "twilio"

type tenantResolver interface {
	Resolve(ctx context.Context, inboundNumber string) (*tenancy.Tenant, error)
}

type intakeEngine interface {
	HandleMessage(ctx context.Context, tenant *tenancy.Tenant, phone, body string) string
}

type dedupeStore interface {
	MarkProcessed(ctx context.Context, provider, messageID string) (bool, error)
}

// WebhookHandler receives Twilio WhatsApp webhooks, routes them to the
// owning clinic, and answers with TwiML.
type WebhookHandler struct {
	tenants    tenantResolver
	engine     intakeEngine
	processed  dedupeStore
	metrics    *metrics.IntakeMetrics
	logger     *logging.Logger
	authToken  string
	webhookURL string
}

// NewWebhookHandler wires the webhook endpoint. webhookURL must be the
// public URL Twilio posts to, since it is part of the signed payload.
// An empty authToken disables signature checks (local development only).
func NewWebhookHandler(tenants tenantResolver, engine intakeEngine, processed dedupeStore, m *metrics.IntakeMetrics, logger *logging.Logger, authToken, webhookURL string) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		tenants:    tenants,
		engine:     engine,
		processed:  processed,
		metrics:    m,
		logger:     logger,
		authToken:  authToken,
		webhookURL: webhookURL,
	}
}

// HandleWhatsApp is the POST /webhook/whatsapp handler.
func (h *WebhookHandler) HandleWhatsApp(w http.ResponseWriter, r *http.Request) {
	ctx, span := handlerTracer.Start(r.Context(), "messaging.webhook.whatsapp")
	defer span.End()

	if h.authToken != "" && !ValidateTwilioSignature(r, h.authToken, h.webhookURL) {
		h.logger.Warn("rejected webhook with bad signature", "remote", r.RemoteAddr)
		h.metrics.ObserveInbound("bad_signature")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	msg, err := ParseInbound(r)
	if err != nil {
		h.logger.Warn("rejected malformed webhook", "error", err)
		h.metrics.ObserveInbound("malformed")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("messaging.sid", msg.MessageSid))

	// Route by the number Twilio delivered to. Unknown numbers are
	// dropped rather than answered by some default clinic.
	tenant, err := h.tenants.Resolve(ctx, msg.To)
	if err != nil {
		h.logger.Warn("dropping message for unknown clinic number",
			"to", msg.To, "error", err)
		h.metrics.ObserveInbound("unknown_tenant")
		writeTwiML(w, "")
		return
	}
	ctx = tenancy.WithTenantID(ctx, tenant.ID)

	// Twilio retries webhooks; only the first delivery gets a turn.
	if msg.MessageSid != "" && h.processed != nil {
		first, err := h.processed.MarkProcessed(ctx, providerTwilio, msg.MessageSid)
		if err != nil {
			h.logger.Error("dedupe check failed", "sid", msg.MessageSid, "error", err)
			h.metrics.ObserveInbound("error")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !first {
			h.metrics.ObserveInbound("duplicate")
			writeTwiML(w, "")
			return
		}
	}

	phone := tenancy.NormalizeE164(msg.From)
	reply := h.engine.HandleMessage(ctx, tenant, phone, msg.Body)

	h.metrics.ObserveInbound("ok")
	writeTwiML(w, reply)
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

func writeTwiML(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(xml.Header))
	out, err := xml.Marshal(twimlResponse{Message: message})
	if err != nil {
		return
	}
	w.Write(out)
}
