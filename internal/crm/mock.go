package crm

import (
	"context"
	"fmt"
	"sync"

	"github.com/convoyhq/convoy/pkg/models"
)

// MockAdapter is an in-memory Adapter used by orchestrator/tools tests
// and local scenario runs; it requires no network access.
type MockAdapter struct {
	mu sync.Mutex

	services  []Service
	employees []Employee
	slots     []Slot
	clients   map[string]*Client // by phone
	byID      map[string]*Client

	appointments map[string]*Appointment
	idempotency  map[string]string // key -> appointment id
	nextID       int

	HealthErr error
}

// NewMockAdapter seeds a mock CRM with a small fixed catalogue.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		services: []Service{
			{ID: "svc-1", Name: "Haircut", Price: 1500, DurationMin: 30},
			{ID: "svc-2", Name: "Manicure", Price: 1200, DurationMin: 45},
		},
		employees: []Employee{
			{ID: "emp-1", Name: "Alex", Rating: 4.8},
			{ID: "emp-2", Name: "Sam", Rating: 4.6},
		},
		slots: []Slot{
			{Date: "2026-08-02", Time: "10:00", EmployeeID: "emp-1"},
			{Date: "2026-08-02", Time: "11:00", EmployeeID: "emp-1"},
			{Date: "2026-08-02", Time: "14:00", EmployeeID: "emp-2"},
		},
		clients:      map[string]*Client{},
		byID:         map[string]*Client{},
		appointments: map[string]*Appointment{},
		idempotency:  map[string]string{},
	}
}

func (m *MockAdapter) Kind() models.CRMKind { return "mock" }

func (m *MockAdapter) GetServices(ctx context.Context) ([]Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Service(nil), m.services...), nil
}

func (m *MockAdapter) GetServiceByID(ctx context.Context, id string) (*Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.services {
		if s.ID == id {
			cp := s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MockAdapter) GetEmployees(ctx context.Context) ([]Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Employee(nil), m.employees...), nil
}

func (m *MockAdapter) GetAvailableSlots(ctx context.Context, serviceID, employeeID, startDate, endDate string) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var durationMin int
	for _, svc := range m.services {
		if svc.ID == serviceID {
			durationMin = svc.DurationMin
			break
		}
	}
	var out []Slot
	for _, s := range m.slots {
		if startDate != "" && s.Date < startDate {
			continue
		}
		if endDate != "" && s.Date > endDate {
			continue
		}
		if employeeID != "" && s.EmployeeID != employeeID {
			continue
		}
		cp := s
		cp.DurationMin = durationMin
		out = append(out, cp)
	}
	return out, nil
}

func (m *MockAdapter) GetClientByPhone(ctx context.Context, phone string) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[phone]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MockAdapter) CreateClient(ctx context.Context, name, phone string) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.clients[phone]; ok {
		cp := *existing
		return &cp, nil
	}
	m.nextID++
	c := &Client{ID: fmt.Sprintf("client-%d", m.nextID), Name: name, Phone: phone}
	m.clients[phone] = c
	m.byID[c.ID] = c
	cp := *c
	return &cp, nil
}

func (m *MockAdapter) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.IdempotencyKey != "" {
		if id, ok := m.idempotency[req.IdempotencyKey]; ok {
			cp := *m.appointments[id]
			return &cp, nil
		}
	}

	matchedIdx := -1
	for i, s := range m.slots {
		if s.Date != req.Date || s.Time != req.Time {
			continue
		}
		if req.EmployeeID != "" && s.EmployeeID != req.EmployeeID {
			continue
		}
		matchedIdx = i
		break
	}
	if matchedIdx == -1 {
		return nil, ErrConflict
	}
	employeeID := req.EmployeeID
	if employeeID == "" {
		employeeID = m.slots[matchedIdx].EmployeeID
	}
	m.slots = append(m.slots[:matchedIdx], m.slots[matchedIdx+1:]...)

	m.nextID++
	appt := &Appointment{
		ID: fmt.Sprintf("appt-%d", m.nextID), ClientID: req.ClientID, ServiceID: req.ServiceID,
		EmployeeID: employeeID, Date: req.Date, Time: req.Time, Status: "confirmed",
	}
	m.appointments[appt.ID] = appt
	if req.IdempotencyKey != "" {
		m.idempotency[req.IdempotencyKey] = appt.ID
	}
	cp := *appt
	return &cp, nil
}

func (m *MockAdapter) GetClientAppointments(ctx context.Context, clientID string) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.ClientID == clientID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *MockAdapter) CancelAppointment(ctx context.Context, appointmentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appointments[appointmentID]
	if !ok {
		return ErrNotFound
	}
	appt.Status = "cancelled"
	return nil
}

func (m *MockAdapter) Health(ctx context.Context) Health {
	if m.HealthErr != nil {
		return Health{Healthy: false, Message: m.HealthErr.Error()}
	}
	return Health{Healthy: true}
}
