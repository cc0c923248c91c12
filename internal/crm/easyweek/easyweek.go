// Package easyweek implements the crm.Adapter for the EasyWeek booking
// platform (§4.5), the smallest-footprint vendor in the integration
// set: a handful of endpoints, no staff ratings, no catalogue
// descriptions.
package easyweek

import (
	"context"
	"fmt"

	"github.com/convoyhq/convoy/internal/crm"
	"github.com/convoyhq/convoy/pkg/models"
)

const defaultBaseURL = "https://api.easyweek.io/v1"

// Adapter is the EasyWeek REST client.
type Adapter struct {
	rc        *crm.RESTClient
	companyID string
}

// New constructs an EasyWeek adapter from decrypted credentials.
func New(creds crm.Credentials) (crm.Adapter, error) {
	baseURL := creds.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	token := creds.Secrets["api_token"]
	if token == "" {
		return nil, fmt.Errorf("easyweek: api_token credential is required")
	}
	rc := crm.NewRESTClient(baseURL)
	rc.AuthHeaderName = "Authorization"
	rc.AuthHeaderValue = "Token " + token
	return &Adapter{rc: rc, companyID: creds.RemoteAccountID}, nil
}

func (a *Adapter) Kind() models.CRMKind { return models.CRMEasyWeek }

type serviceDTO struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Duration int     `json:"duration_min"`
}

func (a *Adapter) GetServices(ctx context.Context) ([]crm.Service, error) {
	var services []serviceDTO
	if _, err := a.rc.DoJSON(ctx, "GET", fmt.Sprintf("/org/%s/services", a.companyID), nil, &services); err != nil {
		return nil, err
	}
	out := make([]crm.Service, 0, len(services))
	for _, d := range services {
		out = append(out, crm.Service{ID: d.ID, Name: d.Name, Price: d.Price, DurationMin: d.Duration})
	}
	return out, nil
}

func (a *Adapter) GetServiceByID(ctx context.Context, id string) (*crm.Service, error) {
	var d serviceDTO
	if _, err := a.rc.DoJSON(ctx, "GET", fmt.Sprintf("/org/%s/services/%s", a.companyID, id), nil, &d); err != nil {
		return nil, err
	}
	return &crm.Service{ID: d.ID, Name: d.Name, Price: d.Price, DurationMin: d.Duration}, nil
}

type staffDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (a *Adapter) GetEmployees(ctx context.Context) ([]crm.Employee, error) {
	var staff []staffDTO
	if _, err := a.rc.DoJSON(ctx, "GET", fmt.Sprintf("/org/%s/staff", a.companyID), nil, &staff); err != nil {
		return nil, err
	}
	out := make([]crm.Employee, 0, len(staff))
	for _, d := range staff {
		out = append(out, crm.Employee{ID: d.ID, Name: d.Name})
	}
	return out, nil
}

type slotDTO struct {
	Date    string `json:"date"`
	Time    string `json:"time"`
	StaffID string `json:"staff_id"`
}

// GetAvailableSlots polls the availability endpoint once per day in the
// range: the vendor endpoint only accepts a single date.
func (a *Adapter) GetAvailableSlots(ctx context.Context, serviceID, employeeID, startDate, endDate string) ([]crm.Slot, error) {
	days, err := crm.DateRange(startDate, endDate)
	if err != nil {
		return nil, err
	}
	var out []crm.Slot
	for _, day := range days {
		path := fmt.Sprintf("/org/%s/availability?service=%s&staff=%s&date=%s", a.companyID, serviceID, employeeID, day)
		var slots []slotDTO
		if _, err := a.rc.DoJSON(ctx, "GET", path, nil, &slots); err != nil {
			return nil, err
		}
		for _, d := range slots {
			out = append(out, crm.Slot{Date: d.Date, Time: d.Time, EmployeeID: d.StaffID})
		}
	}
	return out, nil
}

type clientDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func (a *Adapter) GetClientByPhone(ctx context.Context, phone string) (*crm.Client, error) {
	var clients []clientDTO
	if _, err := a.rc.DoJSON(ctx, "GET", fmt.Sprintf("/org/%s/clients?phone=%s", a.companyID, phone), nil, &clients); err != nil {
		return nil, err
	}
	if len(clients) == 0 {
		return nil, crm.ErrNotFound
	}
	d := clients[0]
	return &crm.Client{ID: d.ID, Name: d.Name, Phone: d.Phone}, nil
}

func (a *Adapter) CreateClient(ctx context.Context, name, phone string) (*crm.Client, error) {
	var d clientDTO
	if _, err := a.rc.DoJSON(ctx, "POST", fmt.Sprintf("/org/%s/clients", a.companyID),
		map[string]string{"name": name, "phone": phone}, &d); err != nil {
		return nil, err
	}
	return &crm.Client{ID: d.ID, Name: d.Name, Phone: d.Phone}, nil
}

type bookingDTO struct {
	ID        string `json:"id"`
	ClientID  string `json:"client_id"`
	ServiceID string `json:"service_id"`
	StaffID   string `json:"staff_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Status    string `json:"status"`
}

// CreateAppointment sends req.IdempotencyKey as the idempotency_key
// field of the request body.
func (a *Adapter) CreateAppointment(ctx context.Context, req crm.CreateAppointmentRequest) (*crm.Appointment, error) {
	body := map[string]any{
		"client_id": req.ClientID, "service_id": req.ServiceID, "staff_id": req.EmployeeID,
		"date": req.Date, "time": req.Time, "idempotency_key": req.IdempotencyKey,
	}
	var d bookingDTO
	status, err := a.rc.DoJSON(ctx, "POST", fmt.Sprintf("/org/%s/bookings", a.companyID), body, &d)
	if err != nil {
		return nil, err
	}
	if status == 409 {
		return nil, crm.ErrConflict
	}
	return bookingToAppointment(d), nil
}

func (a *Adapter) GetClientAppointments(ctx context.Context, clientID string) ([]crm.Appointment, error) {
	var bookings []bookingDTO
	if _, err := a.rc.DoJSON(ctx, "GET", fmt.Sprintf("/org/%s/bookings?client_id=%s", a.companyID, clientID), nil, &bookings); err != nil {
		return nil, err
	}
	out := make([]crm.Appointment, 0, len(bookings))
	for _, d := range bookings {
		out = append(out, *bookingToAppointment(d))
	}
	return out, nil
}

func (a *Adapter) CancelAppointment(ctx context.Context, appointmentID string) error {
	_, err := a.rc.DoJSON(ctx, "DELETE", fmt.Sprintf("/org/%s/bookings/%s", a.companyID, appointmentID), nil, nil)
	return err
}

func (a *Adapter) Health(ctx context.Context) crm.Health {
	return a.rc.Ping(ctx, fmt.Sprintf("/org/%s", a.companyID))
}

func bookingToAppointment(d bookingDTO) *crm.Appointment {
	return &crm.Appointment{ID: d.ID, ClientID: d.ClientID, ServiceID: d.ServiceID, EmployeeID: d.StaffID, Date: d.Date, Time: d.Time, Status: d.Status}
}
