package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"terplink/backend/internal/domain"
	"terplink/backend/internal/store"
)

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

func (r *AppointmentRepo) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var appt domain.Appointment
	err := r.db.NewSelect().
		Model(&appt).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return appt, nil
}

func (r *AppointmentRepo) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Appointment{}, err
	}
	return m, nil
}

func (r *AppointmentRepo) Update(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	res, err := r.db.NewUpdate().
		Model(&m).
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return m, nil
}

func (r *AppointmentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *AppointmentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.AppointmentStatus, interpreterID *string) (domain.Appointment, error) {
	res, err := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("status = ?", to).
		Set("interpreter_id = ?", interpreterID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		// Distinguish a vanished row from a lost status race.
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return domain.Appointment{}, getErr
		}
		return domain.Appointment{}, store.ErrConflict
	}
	return r.Get(ctx, id)
}

func (r *AppointmentRepo) ListByGroupPlatformID(ctx context.Context, platformID string) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("appointments_group_id = ?", platformID).
		OrderExpr("scheduled_start_time ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) RepointGroup(ctx context.Context, appointmentIDs []uuid.UUID, platformID string) error {
	if len(appointmentIDs) == 0 {
		return nil
	}
	_, err := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("appointments_group_id = ?", platformID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id IN (?)", bun.In(appointmentIDs)).
		Exec(ctx)
	return err
}

func (r *AppointmentRepo) FindConflictingAppointmentsBeforeAccept(ctx context.Context, interpreterID string, start, end time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("interpreter_id = ?", interpreterID).
		Where("status IN (?)", bun.In([]domain.AppointmentStatus{
			domain.AppointmentStatusAccepted,
			domain.AppointmentStatusPending,
		})).
		Where("scheduled_start_time < ?", end).
		Where("scheduled_end_time > ?", start).
		OrderExpr("scheduled_start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type ChannelRepo struct {
	db *bun.DB
}

func NewChannelRepo(db *bun.DB) *ChannelRepo {
	return &ChannelRepo{db: db}
}

func (r *ChannelRepo) RepointGroupChannel(ctx context.Context, oldPlatformID, newPlatformID string) error {
	_, err := r.db.NewUpdate().
		Model((*domain.Channel)(nil)).
		Set("group_platform_id = ?", newPlatformID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("group_platform_id = ?", oldPlatformID).
		Exec(ctx)
	return err
}
