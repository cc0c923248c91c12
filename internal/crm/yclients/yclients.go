// Package yclients implements the crm.Adapter for the YCLIENTS booking
// platform, the default CRM for the majority of tenants (§4.5).
package yclients

import (
	"context"
	"fmt"

	"github.com/convoyhq/convoy/internal/crm"
	"github.com/convoyhq/convoy/pkg/models"
)

const defaultBaseURL = "https://api.yclients.com/api/v1"

// Adapter is the YCLIENTS REST client.
type Adapter struct {
	rc        *crm.RESTClient
	companyID string
}

// New constructs a YCLIENTS adapter from decrypted credentials. Per
// §4.5, construction performs no I/O.
func New(creds crm.Credentials) (crm.Adapter, error) {
	baseURL := creds.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	partnerToken := creds.Secrets["partner_token"]
	userToken := creds.Secrets["user_token"]
	if partnerToken == "" {
		return nil, fmt.Errorf("yclients: partner_token credential is required")
	}

	rc := crm.NewRESTClient(baseURL)
	rc.AuthHeaderName = "Authorization"
	rc.AuthHeaderValue = fmt.Sprintf("Bearer %s, User %s", partnerToken, userToken)

	return &Adapter{rc: rc, companyID: creds.RemoteAccountID}, nil
}

func (a *Adapter) Kind() models.CRMKind { return models.CRMYclients }

type serviceDTO struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Comment  string  `json:"comment"`
	Price    float64 `json:"price_min"`
	Duration int     `json:"seance_length"`
}

func (a *Adapter) GetServices(ctx context.Context) ([]crm.Service, error) {
	var resp struct {
		Data []serviceDTO `json:"data"`
	}
	if _, err := a.rc.DoJSON(ctx, "GET", fmt.Sprintf("/company/%s/services", a.companyID), nil, &resp); err != nil {
		return nil, err
	}
	out := make([]crm.Service, 0, len(resp.Data))
	for _, d := range resp.Data {
		out = append(out, crm.Service{ID: d.ID, Name: d.Title, Description: d.Comment, Price: d.Price, DurationMin: d.Duration / 60})
	}
	return out, nil
}

func (a *Adapter) GetServiceByID(ctx context.Context, id string) (*crm.Service, error) {
	var resp struct {
		Data serviceDTO `json:"data"`
	}
	if _, err := a.rc.DoJSON(ctx, "GET", fmt.Sprintf("/company/%s/services/%s", a.companyID, id), nil, &resp); err != nil {
		return nil, err
	}
	return &crm.Service{ID: resp.Data.ID, Name: resp.Data.Title, Description: resp.Data.Comment, Price: resp.Data.Price, DurationMin: resp.Data.Duration / 60}, nil
}

type staffDTO struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Rating float64 `json:"rating"`
}

func (a *Adapter) GetEmployees(ctx context.Context) ([]crm.Employee, error) {
	var resp struct {
		Data []staffDTO `json:"data"`
	}
	if _, err := a.rc.DoJSON(ctx, "GET", fmt.Sprintf("/company/%s/staff", a.companyID), nil, &resp); err != nil {
		return nil, err
	}
	out := make([]crm.Employee, 0, len(resp.Data))
	for _, d := range resp.Data {
		out = append(out, crm.Employee{ID: d.ID, Name: d.Name, Rating: d.Rating})
	}
	return out, nil
}

type slotDTO struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	StaffID string `json:"staff_id"`
}

// GetAvailableSlots polls the yclients book_times endpoint once per day
// in the range: the vendor endpoint only accepts a single day.
func (a *Adapter) GetAvailableSlots(ctx context.Context, serviceID, employeeID, startDate, endDate string) ([]crm.Slot, error) {
	days, err := crm.DateRange(startDate, endDate)
	if err != nil {
		return nil, err
	}
	var out []crm.Slot
	for _, day := range days {
		path := fmt.Sprintf("/company/%s/book_times/%s/%s?service_id=%s", a.companyID, employeeID, day, serviceID)
		var resp struct {
			Data []slotDTO `json:"data"`
		}
		if _, err := a.rc.DoJSON(ctx, "GET", path, nil, &resp); err != nil {
			return nil, err
		}
		for _, d := range resp.Data {
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
	var resp struct {
		Data []clientDTO `json:"data"`
	}
	if _, err := a.rc.DoJSON(ctx, "GET", fmt.Sprintf("/company/%s/clients/search?phone=%s", a.companyID, phone), nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, crm.ErrNotFound
	}
	d := resp.Data[0]
	return &crm.Client{ID: d.ID, Name: d.Name, Phone: d.Phone}, nil
}

func (a *Adapter) CreateClient(ctx context.Context, name, phone string) (*crm.Client, error) {
	req := map[string]string{"name": name, "phone": phone}
	var resp struct {
		Data clientDTO `json:"data"`
	}
	if _, err := a.rc.DoJSON(ctx, "POST", fmt.Sprintf("/company/%s/clients", a.companyID), req, &resp); err != nil {
		return nil, err
	}
	return &crm.Client{ID: resp.Data.ID, Name: resp.Data.Name, Phone: resp.Data.Phone}, nil
}

type appointmentDTO struct {
	ID         string `json:"id"`
	ClientID   string `json:"client_id"`
	ServiceID  string `json:"service_id"`
	StaffID    string `json:"staff_id"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Status     string `json:"status"`
}

// CreateAppointment sends req.IdempotencyKey as the idempotency_key
// field of the request body.
func (a *Adapter) CreateAppointment(ctx context.Context, req crm.CreateAppointmentRequest) (*crm.Appointment, error) {
	body := map[string]any{
		"client_id":       req.ClientID,
		"service_id":      req.ServiceID,
		"staff_id":        req.EmployeeID,
		"date":            req.Date,
		"time":            req.Time,
		"idempotency_key": req.IdempotencyKey,
	}
	var resp struct {
		Data appointmentDTO `json:"data"`
	}
	status, err := a.rc.DoJSON(ctx, "POST", fmt.Sprintf("/company/%s/records", a.companyID), body, &resp)
	if err != nil {
		return nil, err
	}
	if status == 409 {
		return nil, crm.ErrConflict
	}
	return dtoToAppointment(resp.Data), nil
}

func (a *Adapter) GetClientAppointments(ctx context.Context, clientID string) ([]crm.Appointment, error) {
	var resp struct {
		Data []appointmentDTO `json:"data"`
	}
	if _, err := a.rc.DoJSON(ctx, "GET", fmt.Sprintf("/company/%s/records?client_id=%s", a.companyID, clientID), nil, &resp); err != nil {
		return nil, err
	}
	out := make([]crm.Appointment, 0, len(resp.Data))
	for _, d := range resp.Data {
		out = append(out, *dtoToAppointment(d))
	}
	return out, nil
}

func (a *Adapter) CancelAppointment(ctx context.Context, appointmentID string) error {
	_, err := a.rc.DoJSON(ctx, "DELETE", fmt.Sprintf("/company/%s/records/%s", a.companyID, appointmentID), nil, nil)
	return err
}

func (a *Adapter) Health(ctx context.Context) crm.Health {
	return a.rc.Ping(ctx, fmt.Sprintf("/company/%s", a.companyID))
}

func dtoToAppointment(d appointmentDTO) *crm.Appointment {
	return &crm.Appointment{
		ID: d.ID, ClientID: d.ClientID, ServiceID: d.ServiceID,
		EmployeeID: d.StaffID, Date: d.Date, Time: d.Time, Status: d.Status,
	}
}
