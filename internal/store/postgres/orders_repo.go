package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"terplink/backend/internal/domain"
	"terplink/backend/internal/store"
)

type OrderRepo struct {
	db *bun.DB
}

func NewOrderRepo(db *bun.DB) *OrderRepo {
	return &OrderRepo{db: db}
}

func (r *OrderRepo) GetOrderForAccept(ctx context.Context, id uuid.UUID) (store.OrderWithAppointment, error) {
	var order domain.AppointmentOrder
	err := r.db.NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.OrderWithAppointment{}, store.ErrNotFound
		}
		return store.OrderWithAppointment{}, err
	}

	var appt domain.Appointment
	err = r.db.NewSelect().
		Model(&appt).
		Where("id = ?", order.AppointmentID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.OrderWithAppointment{}, store.ErrNotFound
		}
		return store.OrderWithAppointment{}, err
	}

	return store.OrderWithAppointment{Order: order, Appointment: appt}, nil
}

func (r *OrderRepo) GetGroupForAccept(ctx context.Context, id uuid.UUID) (store.GroupWithOrders, error) {
	var group domain.AppointmentOrderGroup
	err := r.db.NewSelect().
		Model(&group).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.GroupWithOrders{}, store.ErrNotFound
		}
		return store.GroupWithOrders{}, err
	}
	return r.loadGroupOrders(ctx, group)
}

func (r *OrderRepo) GetGroupByPlatformID(ctx context.Context, platformID string) (store.GroupWithOrders, error) {
	var group domain.AppointmentOrderGroup
	err := r.db.NewSelect().
		Model(&group).
		Where("platform_id = ?", platformID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.GroupWithOrders{}, store.ErrNotFound
		}
		return store.GroupWithOrders{}, err
	}
	return r.loadGroupOrders(ctx, group)
}

func (r *OrderRepo) loadGroupOrders(ctx context.Context, group domain.AppointmentOrderGroup) (store.GroupWithOrders, error) {
	var orders []domain.AppointmentOrder
	err := r.db.NewSelect().
		Model(&orders).
		Where("group_id = ?", group.ID).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return store.GroupWithOrders{}, err
	}

	out := store.GroupWithOrders{Group: group, Orders: make([]store.OrderWithAppointment, 0, len(orders))}
	if len(orders) == 0 {
		return out, nil
	}

	apptIDs := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		apptIDs = append(apptIDs, o.AppointmentID)
	}

	var appts []domain.Appointment
	err = r.db.NewSelect().
		Model(&appts).
		Where("id IN (?)", bun.In(apptIDs)).
		Scan(ctx)
	if err != nil {
		return store.GroupWithOrders{}, err
	}

	byID := make(map[uuid.UUID]domain.Appointment, len(appts))
	for _, a := range appts {
		byID[a.ID] = a
	}
	for _, o := range orders {
		appt, ok := byID[o.AppointmentID]
		if !ok {
			return store.GroupWithOrders{}, store.ErrNotFound
		}
		out.Orders = append(out.Orders, store.OrderWithAppointment{Order: o, Appointment: appt})
	}
	return out, nil
}

func (r *OrderRepo) GetOrderByAppointment(ctx context.Context, appointmentID uuid.UUID) (store.OrderWithAppointment, error) {
	var order domain.AppointmentOrder
	err := r.db.NewSelect().
		Model(&order).
		Where("appointment_id = ?", appointmentID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.OrderWithAppointment{}, store.ErrNotFound
		}
		return store.OrderWithAppointment{}, err
	}
	return r.GetOrderForAccept(ctx, order.ID)
}

func (r *OrderRepo) SaveOrderCandidates(ctx context.Context, order domain.AppointmentOrder) error {
	res, err := r.db.NewUpdate().
		Model((*domain.AppointmentOrder)(nil)).
		Set("matched_interpreter_ids = ?", candidateArray(order.MatchedInterpreterIDs)).
		Set("rejected_interpreter_ids = ?", candidateArray(order.RejectedInterpreterIDs)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", order.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *OrderRepo) SaveGroupCandidates(ctx context.Context, group domain.AppointmentOrderGroup) error {
	res, err := r.db.NewUpdate().
		Model((*domain.AppointmentOrderGroup)(nil)).
		Set("matched_interpreter_ids = ?", candidateArray(group.MatchedInterpreterIDs)).
		Set("rejected_interpreter_ids = ?", candidateArray(group.RejectedInterpreterIDs)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", group.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// DeleteOrder is the accept commit point: exactly one caller observes the
// delete succeed, every later one gets ErrNotFound.
func (r *OrderRepo) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*domain.AppointmentOrder)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *OrderRepo) DeleteGroupIfEmpty(ctx context.Context, groupID uuid.UUID) error {
	_, err := r.db.NewDelete().
		Model((*domain.AppointmentOrderGroup)(nil)).
		Where("id = ?", groupID).
		Where("NOT EXISTS (SELECT 1 FROM appointment_orders WHERE group_id = ?)", groupID).
		Exec(ctx)
	return err
}

func (r *OrderRepo) DeleteGroupWithOrders(ctx context.Context, groupID uuid.UUID) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockGroup(ctx, tx, groupID); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*domain.AppointmentOrder)(nil)).
			Where("group_id = ?", groupID).
			Exec(ctx); err != nil {
			return err
		}
		res, err := tx.NewDelete().
			Model((*domain.AppointmentOrderGroup)(nil)).
			Where("id = ?", groupID).
			Exec(ctx)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

func (r *OrderRepo) CreateOrder(ctx context.Context, order domain.AppointmentOrder, group *domain.AppointmentOrderGroup) (domain.AppointmentOrder, error) {
	m := order
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if group != nil {
			exists, err := tx.NewSelect().
				Model((*domain.AppointmentOrderGroup)(nil)).
				Where("id = ?", group.ID).
				Exists(ctx)
			if err != nil {
				return err
			}
			if !exists {
				g := *group
				if _, err := tx.NewInsert().Model(&g).Exec(ctx); err != nil {
					return err
				}
				m.GroupID = &g.ID
			}
		}
		_, err := tx.NewInsert().Model(&m).Exec(ctx)
		return err
	})
	if err != nil {
		return domain.AppointmentOrder{}, err
	}
	return m, nil
}

func (r *OrderRepo) CreateGroup(ctx context.Context, group domain.AppointmentOrderGroup) (domain.AppointmentOrderGroup, error) {
	m := group
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.AppointmentOrderGroup{}, err
	}
	return m, nil
}

func (r *OrderRepo) ListOpenOnDemandOrdersForInterpreter(ctx context.Context, interpreterID string) ([]store.OrderWithAppointment, error) {
	var orders []domain.AppointmentOrder
	err := r.db.NewSelect().
		Model(&orders).
		Where("? = ANY(matched_interpreter_ids)", interpreterID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]store.OrderWithAppointment, 0, len(orders))
	for _, o := range orders {
		var appt domain.Appointment
		err := r.db.NewSelect().
			Model(&appt).
			Where("id = ?", o.AppointmentID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, err
		}
		if appt.SchedulingType != domain.SchedulingTypeOnDemand {
			continue
		}
		out = append(out, store.OrderWithAppointment{Order: o, Appointment: appt})
	}
	return out, nil
}

func lockGroup(ctx context.Context, tx bun.Tx, groupID uuid.UUID) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", groupID.String()).Exec(ctx)
	return err
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// candidateArray normalizes nil sets to empty arrays so the columns stay
// NOT NULL.
func candidateArray(ids []string) any {
	if ids == nil {
		ids = []string{}
	}
	return pgdialect.Array(ids)
}
