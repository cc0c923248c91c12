// Package onec implements the crm.Adapter for 1C:Enterprise deployments
// exposed over OData (the vendor's standard integration surface), using
// $filter query conventions rather than path segments (§4.5).
package onec

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"

	"github.com/convoyhq/convoy/internal/crm"
	"github.com/convoyhq/convoy/pkg/models"
)

// Adapter is the 1C OData client.
type Adapter struct {
	rc *crm.RESTClient
}

// New constructs a 1C adapter. BaseURL must point at the OData root,
// e.g. https://example.com/base/odata/standard.odata.
func New(creds crm.Credentials) (crm.Adapter, error) {
	if creds.BaseURL == "" {
		return nil, fmt.Errorf("onec: base_url is required")
	}
	user := creds.Secrets["basic_user"]
	pass := creds.Secrets["basic_password"]
	if user == "" || pass == "" {
		return nil, fmt.Errorf("onec: basic_user and basic_password credentials are required")
	}
	rc := crm.NewRESTClient(creds.BaseURL)
	rc.AuthHeaderName = "Authorization"
	rc.AuthHeaderValue = "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
	return &Adapter{rc: rc}, nil
}

func (a *Adapter) Kind() models.CRMKind { return models.CRMOneC }

type serviceRow struct {
	Ref      string  `json:"Ref_Key"`
	Desc     string  `json:"Description"`
	Price    float64 `json:"Цена"`
	Duration int     `json:"Длительность"`
}

func (a *Adapter) GetServices(ctx context.Context) ([]crm.Service, error) {
	var resp struct {
		Value []serviceRow `json:"value"`
	}
	if _, err := a.rc.DoJSON(ctx, "GET", "/Catalog_Услуги?$format=json", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]crm.Service, 0, len(resp.Value))
	for _, d := range resp.Value {
		out = append(out, crm.Service{ID: d.Ref, Name: d.Desc, Price: d.Price, DurationMin: d.Duration})
	}
	return out, nil
}

func (a *Adapter) GetServiceByID(ctx context.Context, id string) (*crm.Service, error) {
	path := fmt.Sprintf("/Catalog_Услуги(guid'%s')?$format=json", url.QueryEscape(id))
	var d serviceRow
	if _, err := a.rc.DoJSON(ctx, "GET", path, nil, &d); err != nil {
		return nil, err
	}
	return &crm.Service{ID: d.Ref, Name: d.Desc, Price: d.Price, DurationMin: d.Duration}, nil
}

type employeeRow struct {
	Ref  string `json:"Ref_Key"`
	Desc string `json:"Description"`
}

func (a *Adapter) GetEmployees(ctx context.Context) ([]crm.Employee, error) {
	var resp struct {
		Value []employeeRow `json:"value"`
	}
	if _, err := a.rc.DoJSON(ctx, "GET", "/Catalog_Сотрудники?$format=json", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]crm.Employee, 0, len(resp.Value))
	for _, d := range resp.Value {
		out = append(out, crm.Employee{ID: d.Ref, Name: d.Desc})
	}
	return out, nil
}

type slotRow struct {
	Date     string `json:"Дата"`
	Time     string `json:"Время"`
	Employee string `json:"Сотрудник_Key"`
}

// GetAvailableSlots queries the СвободныеОкна register once per day in
// the range: the OData filter only supports an equality match on Дата.
func (a *Adapter) GetAvailableSlots(ctx context.Context, serviceID, employeeID, startDate, endDate string) ([]crm.Slot, error) {
	days, err := crm.DateRange(startDate, endDate)
	if err != nil {
		return nil, err
	}
	var out []crm.Slot
	for _, day := range days {
		filter := fmt.Sprintf("$filter=Сотрудник_Key eq guid'%s' and Дата eq datetime'%s'", employeeID, day)
		var resp struct {
			Value []slotRow `json:"value"`
		}
		if _, err := a.rc.DoJSON(ctx, "GET", "/InformationRegister_СвободныеОкна?$format=json&"+filter, nil, &resp); err != nil {
			return nil, err
		}
		for _, d := range resp.Value {
			out = append(out, crm.Slot{Date: d.Date, Time: d.Time, EmployeeID: d.Employee})
		}
	}
	return out, nil
}

type clientRow struct {
	Ref   string `json:"Ref_Key"`
	Desc  string `json:"Description"`
	Phone string `json:"Телефон"`
}

func (a *Adapter) GetClientByPhone(ctx context.Context, phone string) (*crm.Client, error) {
	filter := fmt.Sprintf("$filter=Телефон eq '%s'", phone)
	var resp struct {
		Value []clientRow `json:"value"`
	}
	if _, err := a.rc.DoJSON(ctx, "GET", "/Catalog_Контрагенты?$format=json&"+filter, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Value) == 0 {
		return nil, crm.ErrNotFound
	}
	d := resp.Value[0]
	return &crm.Client{ID: d.Ref, Name: d.Desc, Phone: d.Phone}, nil
}

func (a *Adapter) CreateClient(ctx context.Context, name, phone string) (*crm.Client, error) {
	body := map[string]string{"Description": name, "Телефон": phone}
	var d clientRow
	if _, err := a.rc.DoJSON(ctx, "POST", "/Catalog_Контрагенты?$format=json", body, &d); err != nil {
		return nil, err
	}
	return &crm.Client{ID: d.Ref, Name: d.Desc, Phone: d.Phone}, nil
}

type documentRow struct {
	Ref       string `json:"Ref_Key"`
	Client    string `json:"Клиент_Key"`
	Service   string `json:"Услуга_Key"`
	Employee  string `json:"Сотрудник_Key"`
	Date      string `json:"Дата"`
	Time      string `json:"Время"`
	Status    string `json:"Статус"`
}

// CreateAppointment does not send req.IdempotencyKey; a retried call
// creates a second booking.
func (a *Adapter) CreateAppointment(ctx context.Context, req crm.CreateAppointmentRequest) (*crm.Appointment, error) {
	body := map[string]any{
		"Клиент_Key":    req.ClientID,
		"Услуга_Key":    req.ServiceID,
		"Сотрудник_Key": req.EmployeeID,
		"Дата":          req.Date,
		"Время":         req.Time,
	}
	var d documentRow
	status, err := a.rc.DoJSON(ctx, "POST", "/Document_ЗаписьНаУслугу?$format=json", body, &d)
	if err != nil {
		return nil, err
	}
	if status == 409 {
		return nil, crm.ErrConflict
	}
	return docToAppointment(d), nil
}

func (a *Adapter) GetClientAppointments(ctx context.Context, clientID string) ([]crm.Appointment, error) {
	filter := fmt.Sprintf("$filter=Клиент_Key eq guid'%s'", clientID)
	var resp struct {
		Value []documentRow `json:"value"`
	}
	if _, err := a.rc.DoJSON(ctx, "GET", "/Document_ЗаписьНаУслугу?$format=json&"+filter, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]crm.Appointment, 0, len(resp.Value))
	for _, d := range resp.Value {
		out = append(out, *docToAppointment(d))
	}
	return out, nil
}

func (a *Adapter) CancelAppointment(ctx context.Context, appointmentID string) error {
	path := fmt.Sprintf("/Document_ЗаписьНаУслугу(guid'%s')?$format=json", url.QueryEscape(appointmentID))
	_, err := a.rc.DoJSON(ctx, "PATCH", path, map[string]string{"Статус": "Отменен"}, nil)
	return err
}

func (a *Adapter) Health(ctx context.Context) crm.Health {
	return a.rc.Ping(ctx, "/$metadata")
}

func docToAppointment(d documentRow) *crm.Appointment {
	return &crm.Appointment{
		ID: d.Ref, ClientID: d.Client, ServiceID: d.Service,
		EmployeeID: d.Employee, Date: d.Date, Time: d.Time, Status: d.Status,
	}
}
