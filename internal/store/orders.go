package store

import (
	"context"

	"github.com/google/uuid"

	"terplink/backend/internal/domain"
)

// OrderWithAppointment is the read model for single-order operations: the
// order plus exactly the appointment fields acceptance needs.
type OrderWithAppointment struct {
	Order       domain.AppointmentOrder
	Appointment domain.Appointment
}

// GroupWithOrders is the read model for group operations.
type GroupWithOrders struct {
	Group  domain.AppointmentOrderGroup
	Orders []OrderWithAppointment
}

func (g GroupWithOrders) Appointments() []domain.Appointment {
	out := make([]domain.Appointment, 0, len(g.Orders))
	for _, o := range g.Orders {
		out = append(out, o.Appointment)
	}
	return out
}

type OrderRepository interface {
	GetOrderForAccept(ctx context.Context, id uuid.UUID) (OrderWithAppointment, error)
	GetGroupForAccept(ctx context.Context, id uuid.UUID) (GroupWithOrders, error)
	GetGroupByPlatformID(ctx context.Context, platformID string) (GroupWithOrders, error)
	GetOrderByAppointment(ctx context.Context, appointmentID uuid.UUID) (OrderWithAppointment, error)

	SaveOrderCandidates(ctx context.Context, order domain.AppointmentOrder) error
	SaveGroupCandidates(ctx context.Context, group domain.AppointmentOrderGroup) error

	// DeleteOrder is the accept commit point: the row's continued existence
	// is the mutex, and RowsAffected 0 maps to ErrNotFound so a concurrent
	// accept loses cleanly.
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	// DeleteGroupIfEmpty drops the group once its last order is gone.
	DeleteGroupIfEmpty(ctx context.Context, groupID uuid.UUID) error
	// DeleteGroupWithOrders tears down a whole group and its orders in one
	// transaction; ErrNotFound when the group is already gone.
	DeleteGroupWithOrders(ctx context.Context, groupID uuid.UUID) error

	// CreateOrder constructs an order; when the order references a group that
	// does not exist yet the group is constructed first in the same
	// transaction.
	CreateOrder(ctx context.Context, order domain.AppointmentOrder, group *domain.AppointmentOrderGroup) (domain.AppointmentOrder, error)
	CreateGroup(ctx context.Context, group domain.AppointmentOrderGroup) (domain.AppointmentOrderGroup, error)

	// ListOpenOnDemandOrdersForInterpreter returns on-demand orders still
	// offering the interpreter, used to withdraw simultaneous offers once the
	// interpreter accepts one.
	ListOpenOnDemandOrdersForInterpreter(ctx context.Context, interpreterID string) ([]OrderWithAppointment, error)
}
