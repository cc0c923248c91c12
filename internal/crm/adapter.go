// Package crm defines the CRM capability interface (C5, §4.5) and a
// kind-keyed registry of constructors, avoiding a class hierarchy: each
// vendor is a leaf package implementing Adapter, registered by its
// models.CRMKind string.
package crm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/convoyhq/convoy/pkg/models"
)

// Common adapter-level errors (§7 ProtocolError/TransportError taxonomy
// maps onto these at the orchestrator boundary).
var (
	ErrNotFound     = errors.New("crm: resource not found")
	ErrConflict     = errors.New("crm: slot no longer available")
	ErrUnauthorized = errors.New("crm: vendor credentials rejected")
	ErrRateLimited  = errors.New("crm: vendor rate limit exceeded")
)

// Service describes a bookable offering as returned by a vendor.
type Service struct {
	ID          string
	Name        string
	Description string
	Category    string
	Price       float64
	DurationMin int
}

// Employee describes a staff member who can be booked.
type Employee struct {
	ID     string
	Name   string
	Rating float64
}

// Slot is one bookable start time for a service/employee pair.
type Slot struct {
	Date        string // YYYY-MM-DD
	Time        string // HH:MM, vendor-local
	DurationMin int
	EmployeeID  string
}

// Client is a CRM-side customer record.
type Client struct {
	ID    string
	Name  string
	Phone string
}

// Appointment is a confirmed or cancellable booking.
type Appointment struct {
	ID         string
	ClientID   string
	ServiceID  string
	EmployeeID string
	Date       string
	Time       string
	Status     string
}

// CreateAppointmentRequest carries the fields needed to book a slot.
// IdempotencyKey lets an adapter recognize a retried request and return
// the original appointment instead of double-booking (§3 supplemented
// feature: idempotency key plumbing).
type CreateAppointmentRequest struct {
	ClientID       string
	ServiceID      string
	EmployeeID     string
	Date           string
	Time           string
	Notes          string
	IdempotencyKey string
}

// Health reports the result of a lightweight vendor reachability probe.
type Health struct {
	Healthy bool
	Latency time.Duration
	Message string
}

// Credentials is the decrypted vendor credential bundle handed to a
// constructor; it never leaves this package boundary unencrypted.
type Credentials struct {
	BaseURL         string
	RemoteAccountID string
	Secrets         map[string]string
}

// Adapter is the capability interface every CRM vendor must satisfy
// (§4.5). Implementations own their own HTTP transport and embed a
// ratelimit.Bucket for vendor-side throttling.
type Adapter interface {
	Kind() models.CRMKind

	GetServices(ctx context.Context) ([]Service, error)
	GetServiceByID(ctx context.Context, id string) (*Service, error)
	GetEmployees(ctx context.Context) ([]Employee, error)
	GetAvailableSlots(ctx context.Context, serviceID, employeeID, startDate, endDate string) ([]Slot, error)

	GetClientByPhone(ctx context.Context, phone string) (*Client, error)
	CreateClient(ctx context.Context, name, phone string) (*Client, error)

	CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (*Appointment, error)
	GetClientAppointments(ctx context.Context, clientID string) ([]Appointment, error)
	CancelAppointment(ctx context.Context, appointmentID string) error

	Health(ctx context.Context) Health
}

// Constructor builds an Adapter from decrypted credentials. Registered
// constructors do no I/O themselves (§4.5: "construction MUST NOT make
// network calls") — only Adapter methods do.
type Constructor func(creds Credentials) (Adapter, error)

// Registry is a construction-only map of CRMKind to Constructor,
// grounded on the teacher's map-backed tool/channel registries. It holds
// no lock: Register calls must finish before Build is called
// concurrently.
type Registry struct {
	constructors map[models.CRMKind]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[models.CRMKind]Constructor)}
}

// Register associates a CRMKind with its Constructor. Later calls for
// the same kind replace the earlier one.
func (r *Registry) Register(kind models.CRMKind, ctor Constructor) {
	r.constructors[kind] = ctor
}

// Build constructs the Adapter for a binding's CRMKind, or
// ErrUnknownKind if no constructor is registered.
func (r *Registry) Build(kind models.CRMKind, creds Credentials) (Adapter, error) {
	ctor, ok := r.constructors[kind]
	if !ok {
		return nil, ErrUnknownKind
	}
	return ctor(creds)
}

// ErrUnknownKind is returned by Build for an unregistered CRMKind; the
// orchestrator maps this to a ConfigError (§7).
var ErrUnknownKind = errors.New("crm: no adapter registered for kind")

// DateRange enumerates the inclusive YYYY-MM-DD days between start and
// end, for vendor adapters whose availability endpoint only accepts a
// single day and must be polled once per day to cover a range.
func DateRange(start, end string) ([]string, error) {
	from, err := time.Parse("2006-01-02", start)
	if err != nil {
		return nil, fmt.Errorf("crm: invalid start_date %q: %w", start, err)
	}
	to, err := time.Parse("2006-01-02", end)
	if err != nil {
		return nil, fmt.Errorf("crm: invalid end_date %q: %w", end, err)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("crm: end_date %q before start_date %q", end, start)
	}
	var days []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format("2006-01-02"))
	}
	return days, nil
}
