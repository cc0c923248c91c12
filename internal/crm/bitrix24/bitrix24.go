// Package bitrix24 implements the crm.Adapter for Bitrix24 CRM via its
// inbound webhook REST API (method-per-path, not resource-per-path) —
// the vendor's own convention, kept as-is rather than forced into a
// uniform shape (§4.5).
package bitrix24

import (
	"context"
	"fmt"

	"github.com/convoyhq/convoy/internal/crm"
	"github.com/convoyhq/convoy/pkg/models"
)

// Adapter is the Bitrix24 webhook REST client.
type Adapter struct {
	rc *crm.RESTClient
}

// New constructs a Bitrix24 adapter. BaseURL must be the tenant's
// inbound webhook URL, e.g. https://example.bitrix24.ru/rest/1/<token>.
func New(creds crm.Credentials) (crm.Adapter, error) {
	if creds.BaseURL == "" {
		return nil, fmt.Errorf("bitrix24: base_url (webhook URL) is required")
	}
	rc := crm.NewRESTClient(creds.BaseURL)
	return &Adapter{rc: rc}, nil
}

func (a *Adapter) Kind() models.CRMKind { return models.CRMBitrix24 }

type productRowDTO struct {
	ID    string  `json:"ID"`
	Name  string  `json:"PRODUCT_NAME"`
	Price float64 `json:"PRICE"`
}

func (a *Adapter) GetServices(ctx context.Context) ([]crm.Service, error) {
	var resp struct {
		Result []productRowDTO `json:"result"`
	}
	if _, err := a.rc.DoJSON(ctx, "GET", "/catalog.product.list.json", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]crm.Service, 0, len(resp.Result))
	for _, d := range resp.Result {
		out = append(out, crm.Service{ID: d.ID, Name: d.Name, Price: d.Price})
	}
	return out, nil
}

func (a *Adapter) GetServiceByID(ctx context.Context, id string) (*crm.Service, error) {
	var resp struct {
		Result productRowDTO `json:"result"`
	}
	if _, err := a.rc.DoJSON(ctx, "GET", fmt.Sprintf("/catalog.product.get.json?id=%s", id), nil, &resp); err != nil {
		return nil, err
	}
	return &crm.Service{ID: resp.Result.ID, Name: resp.Result.Name, Price: resp.Result.Price}, nil
}

type userDTO struct {
	ID   string `json:"ID"`
	Name string `json:"NAME"`
}

func (a *Adapter) GetEmployees(ctx context.Context) ([]crm.Employee, error) {
	var resp struct {
		Result []userDTO `json:"result"`
	}
	if _, err := a.rc.DoJSON(ctx, "GET", "/user.get.json", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]crm.Employee, 0, len(resp.Result))
	for _, d := range resp.Result {
		out = append(out, crm.Employee{ID: d.ID, Name: d.Name})
	}
	return out, nil
}

// GetAvailableSlots has no native Bitrix24 CRM equivalent (it is not a
// scheduling platform); tenants bound to Bitrix24 are expected to
// manage availability via calendar activities, out of scope here, so
// this returns an empty slice rather than an error.
func (a *Adapter) GetAvailableSlots(ctx context.Context, serviceID, employeeID, startDate, endDate string) ([]crm.Slot, error) {
	return nil, nil
}

type contactDTO struct {
	ID    string `json:"ID"`
	Name  string `json:"NAME"`
	Phone []struct {
		Value string `json:"VALUE"`
	} `json:"PHONE"`
}

func (a *Adapter) GetClientByPhone(ctx context.Context, phone string) (*crm.Client, error) {
	var resp struct {
		Result []contactDTO `json:"result"`
	}
	if _, err := a.rc.DoJSON(ctx, "GET", fmt.Sprintf("/crm.contact.list.json?filter[PHONE]=%s", phone), nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Result) == 0 {
		return nil, crm.ErrNotFound
	}
	d := resp.Result[0]
	return &crm.Client{ID: d.ID, Name: d.Name, Phone: phone}, nil
}

func (a *Adapter) CreateClient(ctx context.Context, name, phone string) (*crm.Client, error) {
	body := map[string]any{
		"fields": map[string]any{
			"NAME":  name,
			"PHONE": []map[string]string{{"VALUE": phone, "VALUE_TYPE": "MOBILE"}},
		},
	}
	var resp struct {
		Result int `json:"result"`
	}
	if _, err := a.rc.DoJSON(ctx, "POST", "/crm.contact.add.json", body, &resp); err != nil {
		return nil, err
	}
	return &crm.Client{ID: fmt.Sprintf("%d", resp.Result), Name: name, Phone: phone}, nil
}

// CreateAppointment does not send req.IdempotencyKey; a retried call
// creates a second booking.
func (a *Adapter) CreateAppointment(ctx context.Context, req crm.CreateAppointmentRequest) (*crm.Appointment, error) {
	body := map[string]any{
		"fields": map[string]any{
			"TITLE":        "Booking",
			"CONTACT_ID":   req.ClientID,
			"RESPONSIBLE_ID": req.EmployeeID,
			"UF_SERVICE_ID":  req.ServiceID,
			"UF_DATE":        req.Date,
			"UF_TIME":        req.Time,
		},
	}
	var resp struct {
		Result int `json:"result"`
	}
	status, err := a.rc.DoJSON(ctx, "POST", "/crm.deal.add.json", body, &resp)
	if err != nil {
		return nil, err
	}
	if status == 409 {
		return nil, crm.ErrConflict
	}
	return &crm.Appointment{
		ID: fmt.Sprintf("%d", resp.Result), ClientID: req.ClientID, ServiceID: req.ServiceID,
		EmployeeID: req.EmployeeID, Date: req.Date, Time: req.Time, Status: "confirmed",
	}, nil
}

type dealDTO struct {
	ID           string `json:"ID"`
	ContactID    string `json:"CONTACT_ID"`
	UFServiceID  string `json:"UF_SERVICE_ID"`
	ResponsibleID string `json:"RESPONSIBLE_ID"`
	UFDate       string `json:"UF_DATE"`
	UFTime       string `json:"UF_TIME"`
	StageID      string `json:"STAGE_ID"`
}

func (a *Adapter) GetClientAppointments(ctx context.Context, clientID string) ([]crm.Appointment, error) {
	var resp struct {
		Result []dealDTO `json:"result"`
	}
	if _, err := a.rc.DoJSON(ctx, "GET", fmt.Sprintf("/crm.deal.list.json?filter[CONTACT_ID]=%s", clientID), nil, &resp); err != nil {
		return nil, err
	}
	out := make([]crm.Appointment, 0, len(resp.Result))
	for _, d := range resp.Result {
		out = append(out, crm.Appointment{
			ID: d.ID, ClientID: d.ContactID, ServiceID: d.UFServiceID, EmployeeID: d.ResponsibleID,
			Date: d.UFDate, Time: d.UFTime, Status: d.StageID,
		})
	}
	return out, nil
}

func (a *Adapter) CancelAppointment(ctx context.Context, appointmentID string) error {
	_, err := a.rc.DoJSON(ctx, "POST", fmt.Sprintf("/crm.deal.delete.json?id=%s", appointmentID), nil, nil)
	return err
}

func (a *Adapter) Health(ctx context.Context) crm.Health {
	return a.rc.Ping(ctx, "/profile.json")
}
