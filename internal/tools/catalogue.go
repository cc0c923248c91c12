package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/convoyhq/convoy/internal/crm"
)

func defaultTools() []Tool {
	return []Tool{
		getServicesTool{},
		getServiceByIDTool{},
		getEmployeesTool{},
		getAvailableSlotsTool{},
		getClientByPhoneTool{},
		createClientTool{},
		createAppointmentTool{},
		getClientAppointmentsTool{},
		cancelAppointmentTool{},
	}
}

func jsonResult(v any) (*Result, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &Result{Content: raw}, nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// --- get_services ---

type getServicesTool struct{}

func (getServicesTool) Name() string        { return "get_services" }
func (getServicesTool) Description() string { return "List the services this business offers." }
func (getServicesTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"category":{"type":"string"}}}`)
}
func (getServicesTool) Execute(ctx context.Context, adapter crm.Adapter, args map[string]any) (*Result, error) {
	services, err := adapter.GetServices(ctx)
	if err != nil {
		return nil, err
	}
	if category := stringArg(args, "category"); category != "" {
		filtered := make([]crm.Service, 0, len(services))
		for _, s := range services {
			if s.Category == category {
				filtered = append(filtered, s)
			}
		}
		services = filtered
	}
	return jsonResult(services)
}

// --- get_service_by_id ---

type getServiceByIDTool struct{}

func (getServiceByIDTool) Name() string { return "get_service_by_id" }
func (getServiceByIDTool) Description() string {
	return "Look up a single service by its catalogue id."
}
func (getServiceByIDTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"service_id":{"type":"string"}},"required":["service_id"]}`)
}
func (getServiceByIDTool) Execute(ctx context.Context, adapter crm.Adapter, args map[string]any) (*Result, error) {
	id := stringArg(args, "service_id")
	if id == "" {
		return &Result{IsError: true, Message: "service_id is required"}, nil
	}
	svc, err := adapter.GetServiceByID(ctx, id)
	if err != nil {
		if err == crm.ErrNotFound {
			return &Result{IsError: true, Message: "service not found"}, nil
		}
		return nil, err
	}
	return jsonResult(svc)
}

// --- get_employees ---

type getEmployeesTool struct{}

func (getEmployeesTool) Name() string        { return "get_employees" }
func (getEmployeesTool) Description() string { return "List staff members who can perform services." }
func (getEmployeesTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}
func (getEmployeesTool) Execute(ctx context.Context, adapter crm.Adapter, args map[string]any) (*Result, error) {
	employees, err := adapter.GetEmployees(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResult(employees)
}

// --- get_available_slots ---

type getAvailableSlotsTool struct{}

func (getAvailableSlotsTool) Name() string { return "get_available_slots" }
func (getAvailableSlotsTool) Description() string {
	return "List open appointment slots for a service, in a date range, optionally for a specific employee."
}
func (getAvailableSlotsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"service_id": {"type": "string"},
			"employee_id": {"type": "string"},
			"start_date": {"type": "string", "description": "YYYY-MM-DD"},
			"end_date": {"type": "string", "description": "YYYY-MM-DD"}
		},
		"required": ["service_id", "start_date", "end_date"]
	}`)
}
func (getAvailableSlotsTool) Execute(ctx context.Context, adapter crm.Adapter, args map[string]any) (*Result, error) {
	serviceID := stringArg(args, "service_id")
	startDate := stringArg(args, "start_date")
	endDate := stringArg(args, "end_date")
	if serviceID == "" || startDate == "" || endDate == "" {
		return &Result{IsError: true, Message: "service_id, start_date and end_date are required"}, nil
	}
	slots, err := adapter.GetAvailableSlots(ctx, serviceID, stringArg(args, "employee_id"), startDate, endDate)
	if err != nil {
		return nil, err
	}
	return jsonResult(slots)
}

// --- get_client_by_phone ---

type getClientByPhoneTool struct{}

func (getClientByPhoneTool) Name() string        { return "get_client_by_phone" }
func (getClientByPhoneTool) Description() string { return "Find an existing client by phone number." }
func (getClientByPhoneTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"phone":{"type":"string"}},"required":["phone"]}`)
}
func (getClientByPhoneTool) Execute(ctx context.Context, adapter crm.Adapter, args map[string]any) (*Result, error) {
	phone := stringArg(args, "phone")
	if phone == "" {
		return &Result{IsError: true, Message: "phone is required"}, nil
	}
	client, err := adapter.GetClientByPhone(ctx, phone)
	if err != nil {
		if err == crm.ErrNotFound {
			return &Result{IsError: true, Message: "no client with that phone number"}, nil
		}
		return nil, err
	}
	return jsonResult(client)
}

// --- create_client ---

type createClientTool struct{}

func (createClientTool) Name() string        { return "create_client" }
func (createClientTool) Description() string { return "Register a new client by name and phone number." }
func (createClientTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {"type": "string"},
			"phone": {"type": "string"},
			"email": {"type": "string"}
		},
		"required": ["name", "phone"]
	}`)
}
func (createClientTool) Execute(ctx context.Context, adapter crm.Adapter, args map[string]any) (*Result, error) {
	name, phone := stringArg(args, "name"), stringArg(args, "phone")
	if name == "" || phone == "" {
		return &Result{IsError: true, Message: "name and phone are required"}, nil
	}
	client, err := adapter.CreateClient(ctx, name, phone)
	if err != nil {
		return nil, err
	}
	return jsonResult(client)
}

// --- create_appointment ---

type createAppointmentTool struct{}

func (createAppointmentTool) Name() string { return "create_appointment" }
func (createAppointmentTool) Description() string {
	return "Book an appointment for a client, service, date and time. employee_id is optional when the client has no preference. Supply idempotency_key to make a retry safe."
}
func (createAppointmentTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"client_id": {"type": "string"},
			"service_id": {"type": "string"},
			"employee_id": {"type": "string"},
			"appointment_date": {"type": "string", "description": "YYYY-MM-DD"},
			"appointment_time": {"type": "string", "description": "HH:MM"},
			"notes": {"type": "string"},
			"idempotency_key": {"type": "string"}
		},
		"required": ["client_id", "service_id", "appointment_date", "appointment_time"]
	}`)
}
func (createAppointmentTool) Execute(ctx context.Context, adapter crm.Adapter, args map[string]any) (*Result, error) {
	req := crm.CreateAppointmentRequest{
		ClientID:       stringArg(args, "client_id"),
		ServiceID:      stringArg(args, "service_id"),
		EmployeeID:     stringArg(args, "employee_id"),
		Date:           stringArg(args, "appointment_date"),
		Time:           stringArg(args, "appointment_time"),
		Notes:          stringArg(args, "notes"),
		IdempotencyKey: stringArg(args, "idempotency_key"),
	}
	if req.ClientID == "" || req.ServiceID == "" || req.Date == "" || req.Time == "" {
		return &Result{IsError: true, Message: "client_id, service_id, appointment_date and appointment_time are all required"}, nil
	}
	appt, err := adapter.CreateAppointment(ctx, req)
	if err != nil {
		if err == crm.ErrConflict {
			return &Result{IsError: true, Message: "that slot is no longer available"}, nil
		}
		return nil, err
	}
	return jsonResult(appt)
}

// --- get_client_appointments ---

type getClientAppointmentsTool struct{}

func (getClientAppointmentsTool) Name() string { return "get_client_appointments" }
func (getClientAppointmentsTool) Description() string {
	return "List a client's existing appointments."
}
func (getClientAppointmentsTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"client_id":{"type":"string"}},"required":["client_id"]}`)
}
func (getClientAppointmentsTool) Execute(ctx context.Context, adapter crm.Adapter, args map[string]any) (*Result, error) {
	clientID := stringArg(args, "client_id")
	if clientID == "" {
		return &Result{IsError: true, Message: "client_id is required"}, nil
	}
	appts, err := adapter.GetClientAppointments(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return jsonResult(appts)
}

// --- cancel_appointment ---

type cancelAppointmentTool struct{}

func (cancelAppointmentTool) Name() string        { return "cancel_appointment" }
func (cancelAppointmentTool) Description() string { return "Cancel an existing appointment by id." }
func (cancelAppointmentTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"appointment_id":{"type":"string"}},"required":["appointment_id"]}`)
}
func (cancelAppointmentTool) Execute(ctx context.Context, adapter crm.Adapter, args map[string]any) (*Result, error) {
	id := stringArg(args, "appointment_id")
	if id == "" {
		return &Result{IsError: true, Message: "appointment_id is required"}, nil
	}
	if err := adapter.CancelAppointment(ctx, id); err != nil {
		if err == crm.ErrNotFound {
			return &Result{IsError: true, Message: "appointment not found"}, nil
		}
		return nil, err
	}
	return jsonResult(map[string]string{"appointment_id": id, "status": "cancelled"})
}
