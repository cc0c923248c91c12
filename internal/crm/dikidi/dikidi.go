// Package dikidi implements the crm.Adapter for the DIKIDI booking
// platform, a lighter-weight YCLIENTS alternative popular with
// single-location tenants (§4.5).
package dikidi

import (
	"context"
	"fmt"

	"github.com/convoyhq/convoy/internal/crm"
	"github.com/convoyhq/convoy/pkg/models"
)

const defaultBaseURL = "https://api.dikidi.net/v3"

// Adapter is the DIKIDI REST client.
type Adapter struct {
	rc      *crm.RESTClient
	companyID string
}

// New constructs a DIKIDI adapter from decrypted credentials.
func New(creds crm.Credentials) (crm.Adapter, error) {
	baseURL := creds.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	apiKey := creds.Secrets["api_key"]
	if apiKey == "" {
		return nil, fmt.Errorf("dikidi: api_key credential is required")
	}
	rc := crm.NewRESTClient(baseURL)
	rc.AuthHeaderName = "X-Api-Key"
	rc.AuthHeaderValue = apiKey
	return &Adapter{rc: rc, companyID: creds.RemoteAccountID}, nil
}

func (a *Adapter) Kind() models.CRMKind { return models.CRMDikidi }

type serviceDTO struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Time  int     `json:"duration"`
}

func (a *Adapter) GetServices(ctx context.Context) ([]crm.Service, error) {
	var resp struct {
		Response []serviceDTO `json:"response"`
	}
	if _, err := a.rc.DoJSON(ctx, "GET", fmt.Sprintf("/company/%s/services", a.companyID), nil, &resp); err != nil {
		return nil, err
	}
	out := make([]crm.Service, 0, len(resp.Response))
	for _, d := range resp.Response {
		out = append(out, crm.Service{ID: fmt.Sprintf("%d", d.ID), Name: d.Name, Price: d.Price, DurationMin: d.Time})
	}
	return out, nil
}

func (a *Adapter) GetServiceByID(ctx context.Context, id string) (*crm.Service, error) {
	var d serviceDTO
	if _, err := a.rc.DoJSON(ctx, "GET", fmt.Sprintf("/company/%s/services/%s", a.companyID, id), nil, &d); err != nil {
		return nil, err
	}
	return &crm.Service{ID: fmt.Sprintf("%d", d.ID), Name: d.Name, Price: d.Price, DurationMin: d.Time}, nil
}

type staffDTO struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func (a *Adapter) GetEmployees(ctx context.Context) ([]crm.Employee, error) {
	var resp struct {
		Response []staffDTO `json:"response"`
	}
	if _, err := a.rc.DoJSON(ctx, "GET", fmt.Sprintf("/company/%s/staff", a.companyID), nil, &resp); err != nil {
		return nil, err
	}
	out := make([]crm.Employee, 0, len(resp.Response))
	for _, d := range resp.Response {
		out = append(out, crm.Employee{ID: fmt.Sprintf("%d", d.ID), Name: d.Name})
	}
	return out, nil
}

type slotDTO struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Master int    `json:"master_id"`
}

// GetAvailableSlots polls the schedule endpoint once per day in the
// range: the vendor endpoint only accepts a single date.
func (a *Adapter) GetAvailableSlots(ctx context.Context, serviceID, employeeID, startDate, endDate string) ([]crm.Slot, error) {
	days, err := crm.DateRange(startDate, endDate)
	if err != nil {
		return nil, err
	}
	var out []crm.Slot
	for _, day := range days {
		path := fmt.Sprintf("/company/%s/schedule?service_id=%s&master_id=%s&date=%s", a.companyID, serviceID, employeeID, day)
		var resp struct {
			Response []slotDTO `json:"response"`
		}
		if _, err := a.rc.DoJSON(ctx, "GET", path, nil, &resp); err != nil {
			return nil, err
		}
		for _, d := range resp.Response {
			out = append(out, crm.Slot{Date: d.Date, Time: d.Time, EmployeeID: fmt.Sprintf("%d", d.Master)})
		}
	}
	return out, nil
}

type clientDTO struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func (a *Adapter) GetClientByPhone(ctx context.Context, phone string) (*crm.Client, error) {
	var resp struct {
		Response []clientDTO `json:"response"`
	}
	if _, err := a.rc.DoJSON(ctx, "GET", fmt.Sprintf("/company/%s/clients?phone=%s", a.companyID, phone), nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Response) == 0 {
		return nil, crm.ErrNotFound
	}
	d := resp.Response[0]
	return &crm.Client{ID: fmt.Sprintf("%d", d.ID), Name: d.Name, Phone: d.Phone}, nil
}

func (a *Adapter) CreateClient(ctx context.Context, name, phone string) (*crm.Client, error) {
	var d clientDTO
	if _, err := a.rc.DoJSON(ctx, "POST", fmt.Sprintf("/company/%s/clients", a.companyID),
		map[string]string{"name": name, "phone": phone}, &d); err != nil {
		return nil, err
	}
	return &crm.Client{ID: fmt.Sprintf("%d", d.ID), Name: d.Name, Phone: d.Phone}, nil
}

type recordDTO struct {
	ID       int    `json:"id"`
	ClientID int    `json:"client_id"`
	ServiceID int   `json:"service_id"`
	Master   int    `json:"master_id"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Status   string `json:"status"`
}

// CreateAppointment does not send req.IdempotencyKey; a retried call
// creates a second booking.
func (a *Adapter) CreateAppointment(ctx context.Context, req crm.CreateAppointmentRequest) (*crm.Appointment, error) {
	body := map[string]any{
		"client_id": req.ClientID, "service_id": req.ServiceID, "master_id": req.EmployeeID,
		"date": req.Date, "time": req.Time,
	}
	var d recordDTO
	status, err := a.rc.DoJSON(ctx, "POST", fmt.Sprintf("/company/%s/records", a.companyID), body, &d)
	if err != nil {
		return nil, err
	}
	if status == 409 {
		return nil, crm.ErrConflict
	}
	return recordToAppointment(d), nil
}

func (a *Adapter) GetClientAppointments(ctx context.Context, clientID string) ([]crm.Appointment, error) {
	var resp struct {
		Response []recordDTO `json:"response"`
	}
	if _, err := a.rc.DoJSON(ctx, "GET", fmt.Sprintf("/company/%s/records?client_id=%s", a.companyID, clientID), nil, &resp); err != nil {
		return nil, err
	}
	out := make([]crm.Appointment, 0, len(resp.Response))
	for _, d := range resp.Response {
		out = append(out, *recordToAppointment(d))
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

func recordToAppointment(d recordDTO) *crm.Appointment {
	return &crm.Appointment{
		ID: fmt.Sprintf("%d", d.ID), ClientID: fmt.Sprintf("%d", d.ClientID), ServiceID: fmt.Sprintf("%d", d.ServiceID),
		EmployeeID: fmt.Sprintf("%d", d.Master), Date: d.Date, Time: d.Time, Status: d.Status,
	}
}
