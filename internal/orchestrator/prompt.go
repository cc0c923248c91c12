package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/convoyhq/convoy/pkg/models"
)

// composeSystemInstruction builds the LLM system instruction from the
// tenant's prompt context plus the session's current state (§4.8 step
// 5: "C1 prompt context + session context + state template").
func composeSystemInstruction(pc *models.PromptContext, sess *models.Session) string {
	var b strings.Builder

	name := "this business"
	if pc != nil && pc.TenantName != "" {
		name = pc.TenantName
	}
	fmt.Fprintf(&b, "You are the booking assistant for %s.\n", name)

	if pc != nil {
		if pc.BusinessDesc != "" {
			fmt.Fprintf(&b, "%s\n", pc.BusinessDesc)
		}
		if pc.WorkingHours != "" {
			fmt.Fprintf(&b, "Working hours: %s\n", pc.WorkingHours)
		}
		if pc.Address != "" {
			fmt.Fprintf(&b, "Address: %s\n", pc.Address)
		}
		if pc.DisplayPhone != "" {
			fmt.Fprintf(&b, "Phone: %s\n", pc.DisplayPhone)
		}
		if len(pc.Services) > 0 {
			b.WriteString("Services offered:\n")
			for _, s := range pc.Services {
				fmt.Fprintf(&b, "- %s", s.Name)
				if s.Price > 0 {
					fmt.Fprintf(&b, " (%.0f)", s.Price)
				}
				b.WriteString("\n")
			}
		}
		if pc.Greeting != "" {
			fmt.Fprintf(&b, "When starting a conversation, greet with: %q\n", pc.Greeting)
		}
		if pc.CustomInstructions != "" {
			fmt.Fprintf(&b, "%s\n", pc.CustomInstructions)
		}
	}

	b.WriteString(stateInstruction(sess.State))

	ctx := sess.Context
	if ctx.Name != "" || ctx.Phone != "" || ctx.DesiredService != "" {
		b.WriteString("Known so far about this client: ")
		var known []string
		if ctx.Name != "" {
			known = append(known, "name="+ctx.Name)
		}
		if ctx.Phone != "" {
			known = append(known, "phone="+ctx.Phone)
		}
		if ctx.DesiredService != "" {
			known = append(known, "desired_service="+ctx.DesiredService)
		}
		b.WriteString(strings.Join(known, ", "))
		b.WriteString("\n")
	}

	return b.String()
}

func stateInstruction(state models.SessionState) string {
	switch state {
	case models.StateInitiated, models.StateGreeting:
		return "Greet the client warmly and find out what they need.\n"
	case models.StateCollectingInfo:
		return "Collect the client's name, phone number, and desired service before booking.\n"
	case models.StateConsulting:
		return "Answer the client's questions about services, pricing, and availability.\n"
	case models.StateBooking:
		return "Help the client pick an available slot using the booking tools.\n"
	case models.StateConfirming:
		return "Confirm the booking details with the client before finalizing.\n"
	case models.StateCompleted:
		return "The booking is complete. Answer any follow-up questions politely.\n"
	default:
		return ""
	}
}

// applyStateTransition runs the §4.8 deterministic state transition
// table against the session's accumulated context. It never regresses
// a terminal state.
func applyStateTransition(sess *models.Session) {
	if sess.State.Terminal() {
		return
	}
	ctx := &sess.Context

	switch sess.State {
	case models.StateInitiated:
		sess.State = models.StateGreeting
	case models.StateGreeting:
		if ctx.HasAnyContactInfo() {
			sess.State = models.StateCollectingInfo
		}
	case models.StateCollectingInfo:
		if ctx.HasAllContactInfo() {
			sess.State = models.StateBooking
		}
	case models.StateBooking:
		if ctx.SelectedSlot != nil {
			sess.State = models.StateConfirming
		}
	case models.StateConfirming:
		if ctx.AppointmentID != "" {
			sess.State = models.StateCompleted
		}
	}
}

// applyToolArgsToContext folds the arguments the LLM supplied to a tool
// call back into the session's collected fields, ahead of any result:
// the client's name/phone/service choice and a chosen slot are known
// once the LLM calls the tool, not only once the CRM responds.
func applyToolArgsToContext(sess *models.Session, toolName string, args map[string]any) {
	ctx := &sess.Context
	switch toolName {
	case "create_client":
		if v, ok := args["name"].(string); ok && v != "" {
			ctx.Name = v
		}
		if v, ok := args["phone"].(string); ok && v != "" {
			ctx.Phone = v
		}
	case "get_available_slots":
		if v, ok := args["service_id"].(string); ok && v != "" {
			ctx.DesiredService = v
		}
	case "create_appointment":
		slot := &models.SlotSelection{}
		if v, ok := args["appointment_date"].(string); ok {
			slot.Date = v
		}
		if v, ok := args["appointment_time"].(string); ok {
			slot.Time = v
		}
		if v, ok := args["employee_id"].(string); ok {
			slot.EmployeeID = v
		}
		if slot.Date != "" && slot.Time != "" {
			ctx.SelectedSlot = slot
		}
	}
}

// applyFunctionResultToContext folds a successful tool result back into
// the session's collected fields, so the state transition table above
// can observe what just happened without re-parsing the LLM's text.
func applyFunctionResultToContext(sess *models.Session, toolName string, result []byte) {
	ctx := &sess.Context
	switch toolName {
	case "create_client":
		var client struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(result, &client) == nil && client.ID != "" {
			ctx.ClientID = client.ID
		}
	case "create_appointment":
		var appt struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(result, &appt) == nil && appt.ID != "" {
			ctx.AppointmentID = appt.ID
		}
	}
}
