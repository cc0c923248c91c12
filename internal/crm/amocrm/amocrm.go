// Package amocrm implements the crm.Adapter for amoCRM's /api/v4 REST
// API, authenticated with a long-lived OAuth access token (§4.5).
package amocrm

import (
	"context"
	"fmt"

	"github.com/convoyhq/convoy/internal/crm"
	"github.com/convoyhq/convoy/pkg/models"
)

// Adapter is the amoCRM REST client.
type Adapter struct {
	rc *crm.RESTClient
}

// New constructs an amoCRM adapter. BaseURL must be the account's
// subdomain root, e.g. https://example.amocrm.ru.
func New(creds crm.Credentials) (crm.Adapter, error) {
	if creds.BaseURL == "" {
		return nil, fmt.Errorf("amocrm: base_url is required")
	}
	accessToken := creds.Secrets["access_token"]
	if accessToken == "" {
		return nil, fmt.Errorf("amocrm: access_token credential is required")
	}
	rc := crm.NewRESTClient(creds.BaseURL + "/api/v4")
	rc.AuthHeaderName = "Authorization"
	rc.AuthHeaderValue = "Bearer " + accessToken
	return &Adapter{rc: rc}, nil
}

func (a *Adapter) Kind() models.CRMKind { return models.CRMAmoCRM }

type catalogElementDTO struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Prices []struct {
		Value float64 `json:"value"`
	} `json:"price"`
}

func (a *Adapter) GetServices(ctx context.Context) ([]crm.Service, error) {
	var resp struct {
		Embedded struct {
			Elements []catalogElementDTO `json:"elements"`
		} `json:"_embedded"`
	}
	if _, err := a.rc.DoJSON(ctx, "GET", "/catalogs/services/elements", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]crm.Service, 0, len(resp.Embedded.Elements))
	for _, d := range resp.Embedded.Elements {
		svc := crm.Service{ID: fmt.Sprintf("%d", d.ID), Name: d.Name}
		if len(d.Prices) > 0 {
			svc.Price = d.Prices[0].Value
		}
		out = append(out, svc)
	}
	return out, nil
}

func (a *Adapter) GetServiceByID(ctx context.Context, id string) (*crm.Service, error) {
	var d catalogElementDTO
	if _, err := a.rc.DoJSON(ctx, "GET", fmt.Sprintf("/catalogs/services/elements/%s", id), nil, &d); err != nil {
		return nil, err
	}
	svc := &crm.Service{ID: fmt.Sprintf("%d", d.ID), Name: d.Name}
	if len(d.Prices) > 0 {
		svc.Price = d.Prices[0].Value
	}
	return svc, nil
}

type userDTO struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func (a *Adapter) GetEmployees(ctx context.Context) ([]crm.Employee, error) {
	var resp struct {
		Embedded struct {
			Users []userDTO `json:"users"`
		} `json:"_embedded"`
	}
	if _, err := a.rc.DoJSON(ctx, "GET", "/users", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]crm.Employee, 0, len(resp.Embedded.Users))
	for _, d := range resp.Embedded.Users {
		out = append(out, crm.Employee{ID: fmt.Sprintf("%d", d.ID), Name: d.Name})
	}
	return out, nil
}

// GetAvailableSlots has no amoCRM equivalent; amoCRM is a pipeline CRM
// without a scheduling module, so this always returns an empty slice.
func (a *Adapter) GetAvailableSlots(ctx context.Context, serviceID, employeeID, startDate, endDate string) ([]crm.Slot, error) {
	return nil, nil
}

type contactDTO struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	CustomFields []struct {
		FieldCode string `json:"field_code"`
		Values    []struct {
			Value string `json:"value"`
		} `json:"values"`
	} `json:"custom_fields_values"`
}

func (a *Adapter) GetClientByPhone(ctx context.Context, phone string) (*crm.Client, error) {
	var resp struct {
		Embedded struct {
			Contacts []contactDTO `json:"contacts"`
		} `json:"_embedded"`
	}
	status, err := a.rc.DoJSON(ctx, "GET", fmt.Sprintf("/contacts?query=%s", phone), nil, &resp)
	if err != nil {
		return nil, err
	}
	if status == 204 || len(resp.Embedded.Contacts) == 0 {
		return nil, crm.ErrNotFound
	}
	d := resp.Embedded.Contacts[0]
	return &crm.Client{ID: fmt.Sprintf("%d", d.ID), Name: d.Name, Phone: phone}, nil
}

func (a *Adapter) CreateClient(ctx context.Context, name, phone string) (*crm.Client, error) {
	body := []map[string]any{{
		"name": name,
		"custom_fields_values": []map[string]any{{
			"field_code": "PHONE",
			"values":     []map[string]string{{"value": phone}},
		}},
	}}
	var resp struct {
		Embedded struct {
			Contacts []struct {
				ID int `json:"id"`
			} `json:"contacts"`
		} `json:"_embedded"`
	}
	if _, err := a.rc.DoJSON(ctx, "POST", "/contacts", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedded.Contacts) == 0 {
		return nil, fmt.Errorf("amocrm: create contact returned no id")
	}
	return &crm.Client{ID: fmt.Sprintf("%d", resp.Embedded.Contacts[0].ID), Name: name, Phone: phone}, nil
}

// CreateAppointment does not send req.IdempotencyKey; a retried call
// creates a second booking.
func (a *Adapter) CreateAppointment(ctx context.Context, req crm.CreateAppointmentRequest) (*crm.Appointment, error) {
	body := []map[string]any{{
		"name": "Booking",
		"_embedded": map[string]any{
			"contacts": []map[string]int{{"id": atoi(req.ClientID)}},
		},
		"responsible_user_id": atoi(req.EmployeeID),
	}}
	var resp struct {
		Embedded struct {
			Leads []struct {
				ID int `json:"id"`
			} `json:"leads"`
		} `json:"_embedded"`
	}
	status, err := a.rc.DoJSON(ctx, "POST", "/leads", body, &resp)
	if err != nil {
		return nil, err
	}
	if status == 409 {
		return nil, crm.ErrConflict
	}
	id := 0
	if len(resp.Embedded.Leads) > 0 {
		id = resp.Embedded.Leads[0].ID
	}
	return &crm.Appointment{
		ID: fmt.Sprintf("%d", id), ClientID: req.ClientID, ServiceID: req.ServiceID,
		EmployeeID: req.EmployeeID, Date: req.Date, Time: req.Time, Status: "confirmed",
	}, nil
}

type leadDTO struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	ResponsibleUserID int    `json:"responsible_user_id"`
	StatusID          int    `json:"status_id"`
}

func (a *Adapter) GetClientAppointments(ctx context.Context, clientID string) ([]crm.Appointment, error) {
	var resp struct {
		Embedded struct {
			Leads []leadDTO `json:"leads"`
		} `json:"_embedded"`
	}
	if _, err := a.rc.DoJSON(ctx, "GET", fmt.Sprintf("/contacts/%s/links?filter[entity_type]=leads", clientID), nil, &resp); err != nil {
		return nil, err
	}
	out := make([]crm.Appointment, 0, len(resp.Embedded.Leads))
	for _, d := range resp.Embedded.Leads {
		out = append(out, crm.Appointment{
			ID: fmt.Sprintf("%d", d.ID), ClientID: clientID,
			EmployeeID: fmt.Sprintf("%d", d.ResponsibleUserID), Status: fmt.Sprintf("%d", d.StatusID),
		})
	}
	return out, nil
}

func (a *Adapter) CancelAppointment(ctx context.Context, appointmentID string) error {
	body := map[string]any{"id": atoi(appointmentID), "status_id": 143} // amoCRM's default "closed lost" status
	_, err := a.rc.DoJSON(ctx, "PATCH", "/leads", []map[string]any{body}, nil)
	return err
}

func (a *Adapter) Health(ctx context.Context) crm.Health {
	return a.rc.Ping(ctx, "/account")
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}
