package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/voxa/pkg/domain"
	"github.com/harunnryd/voxa/pkg/errorsx"
	"github.com/harunnryd/voxa/pkg/providers/vapi"
	"github.com/harunnryd/voxa/pkg/redact"
	"github.com/harunnryd/voxa/pkg/store"
)

// Platform places calls through the hosted voice-agent platform.
type Platform interface {
	CreateCall(ctx context.Context, req vapi.CallRequest) (*vapi.Call, error)
}

// Telephony places calls directly with the carrier; the voice webhook then drives the Machine.
type Telephony interface {
	Dial(ctx context.Context, to, from, url string) (string, error)
}

type OutboundRequest struct {
	TenantID     string         `json:"-"`
	PhoneNumber  string         `json:"phoneNumber"`
	AgentID      string         `json:"agentId"`
	CustomerData map[string]any `json:"customerData,omitempty"`
}

type OutboundResult struct {
	CallID  string `json:"callId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Dialer starts outbound calls and records them as INITIATED sessions.
type Dialer struct {
	store     store.Store
	platform  Platform
	telephony Telephony
	log       *slog.Logger
	now       func() time.Time
}

// NewDialer prefers the hosted platform and falls back to direct telephony when
// only that is configured.
func NewDialer(st store.Store, platform Platform, telephony Telephony, log *slog.Logger) *Dialer {
	if log == nil {
		log = slog.Default()
	}
	return &Dialer{store: st, platform: platform, telephony: telephony, log: log, now: time.Now}
}

func (d *Dialer) PlaceOutboundCall(ctx context.Context, req OutboundRequest) (OutboundResult, error) {
	if d.platform == nil && d.telephony == nil {
		return OutboundResult{}, errorsx.NotConfigured("outbound calling")
	}
	if strings.TrimSpace(req.AgentID) == "" {
		return OutboundResult{}, errorsx.Invalid("agentId", "required")
	}
	number, err := domain.NormalizeNumber(req.PhoneNumber)
	if err != nil {
		return OutboundResult{}, err
	}
	agent, err := d.store.GetAgent(ctx, req.AgentID)
	if err != nil {
		return OutboundResult{}, err
	}
	if req.TenantID != "" && agent.TenantID != req.TenantID {
		return OutboundResult{}, errorsx.NotFound("agent", req.AgentID)
	}
	numbers, err := d.store.ListPhoneNumbers(ctx, agent.TenantID)
	if err != nil {
		return OutboundResult{}, err
	}

	var callID, status string
	if d.platform != nil {
		if agent.RemoteAssistantID == "" {
			return OutboundResult{}, errorsx.Invalid("agentId", "agent is not linked to a remote assistant; sync the agent first")
		}
		from := firstLinked(numbers)
		if from == nil {
			return OutboundResult{}, errorsx.Invalid("phoneNumber", "no remote phone numbers available; sync phone numbers first")
		}
		call, err := d.platform.CreateCall(ctx, vapi.CallRequest{
			AssistantID:   agent.RemoteAssistantID,
			PhoneNumberID: from.RemotePhoneID,
			Customer:      vapi.Customer{Number: number, Extra: req.CustomerData},
		})
		if err != nil {
			return OutboundResult{}, err
		}
		callID, status = call.ID, call.Status
	} else {
		from := firstOwned(numbers, agent.ID)
		if from == nil {
			return OutboundResult{}, errorsx.Invalid("phoneNumber", "tenant has no phone number to call from")
		}
		sid, err := d.telephony.Dial(ctx, number, from.Number, "")
		if err != nil {
			return OutboundResult{}, err
		}
		callID = sid
	}
	if status == "" {
		status = "initiated"
	}

	cs, err := domain.NewCallSession(callID, agent.ID, number, domain.DirectionOutbound, d.now().UTC())
	if err != nil {
		return OutboundResult{}, err
	}
	cs.TenantID = agent.TenantID
	cs.State = string(StateInitiated)
	cs.Status = status
	for k, v := range req.CustomerData {
		cs.Context[k] = v
	}
	if _, err := d.store.CreateSession(ctx, cs); err != nil {
		d.log.Error("outbound_session_failed", "call_id", callID, "error", err)
	}
	d.log.Info("outbound_call", "call_id", callID, "agent_id", agent.ID, "to", redact.Number(number))
	return OutboundResult{CallID: callID, Status: status, Message: "Call initiated successfully"}, nil
}

func firstLinked(numbers []domain.PhoneNumberRecord) *domain.PhoneNumberRecord {
	for i := range numbers {
		if numbers[i].RemotePhoneID != "" {
			return &numbers[i]
		}
	}
	return nil
}

// firstOwned prefers a number assigned to the agent, else any tenant number.
func firstOwned(numbers []domain.PhoneNumberRecord, agentID string) *domain.PhoneNumberRecord {
	for i := range numbers {
		if numbers[i].AgentID == agentID {
			return &numbers[i]
		}
	}
	if len(numbers) > 0 {
		return &numbers[0]
	}
	return nil
}
