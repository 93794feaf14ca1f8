package postgres

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/posturelab/posturehub/pkg/model"
	"github.com/posturelab/posturehub/pkg/storage"
)

func newSessionStore(db *sqlx.DB) *sessionStore {
	return &sessionStore{
		db: db,
	}
}

type sessionStore struct {
	db *sqlx.DB
}

type sqlDataSession struct {
	ID        int64        `db:"id"`
	DeviceID  uuid.UUID    `db:"device_id"`
	StartTime time.Time    `db:"start_time"`
	EndTime   sql.NullTime `db:"end_time"`
	IsIdle    bool         `db:"is_idle"`
	CreatedAt time.Time    `db:"created_at"`
	UpdatedAt time.Time    `db:"updated_at"`
}

var sqlParamsSession = []string{
	"id",
	"device_id",
	"start_time",
	"end_time",
	"is_idle",
	"created_at",
	"updated_at",
}

func (d *sqlDataSession) Scan(m *model.Session) error {
	var createdAt, updatedAt = m.CreatedAt, m.UpdatedAt

	if m.CreatedAt.IsZero() {
		createdAt = time.Now().Round(time.Second).UTC()
	}

	if m.UpdatedAt.IsZero() {
		updatedAt = time.Now().Round(time.Second).UTC()
	}

	d.ID = m.ID
	d.DeviceID = m.DeviceID
	d.StartTime = m.StartTime
	d.EndTime = sql.NullTime{}
	if m.EndTime != nil {
		d.EndTime = sql.NullTime{Time: *m.EndTime, Valid: true}
	}
	d.IsIdle = m.IsIdle
	d.CreatedAt = createdAt
	d.UpdatedAt = updatedAt

	return nil
}

func (d *sqlDataSession) Model() (*model.Session, error) {
	m := &model.Session{
		ID:        d.ID,
		DeviceID:  d.DeviceID,
		StartTime: d.StartTime,
		IsIdle:    d.IsIdle,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.EndTime.Valid {
		endTime := d.EndTime.Time
		m.EndTime = &endTime
	}

	return m, nil
}

func (s *sessionStore) FetchAll() (map[int64]model.Session, error) {
	rows := make([]sqlDataSession, 0)
	models := make(map[int64]model.Session)

	query := "SELECT * FROM sessions"
	if err := s.db.Select(&rows, query); err != nil {
		return nil, errors.Wrap(err, "failed to fetch all sessions")
	}

	for _, d := range rows {
		m, err := d.Model()
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert SQL data to session model")
		}

		models[d.ID] = *m
	}

	return models, nil
}

func (s *sessionStore) FindByID(id int64) (*model.Session, error) {
	d := sqlDataSession{}
	query := "SELECT * FROM sessions WHERE id=$1"
	if err := s.db.Get(&d, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to find session")
	}

	return d.Model()
}

func (s *sessionStore) FindActiveByDeviceID(deviceID uuid.UUID) (*model.Session, error) {
	d := sqlDataSession{}
	query := "SELECT * FROM sessions WHERE device_id=$1 AND end_time IS NULL"
	if err := s.db.Get(&d, query, deviceID); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to find active session")
	}

	return d.Model()
}

func (s *sessionStore) Create(m *model.Session) error {
	if m.StartTime.IsZero() {
		m.StartTime = time.Now().Round(time.Second).UTC()
	}

	d := sqlDataSession{}
	if err := d.Scan(m); err != nil {
		return errors.Wrap(err, "failed to convert session model to SQL data")
	}

	// Remove the id column because it's of SQL type bigserial
	sqlParamsWithoutID := make([]string, 0)
	for _, p := range sqlParamsSession {
		if p != "id" {
			sqlParamsWithoutID = append(sqlParamsWithoutID, p)
		}
	}

	query := fmt.Sprintf(
		"INSERT INTO sessions (%s) VALUES (%s) RETURNING id",
		strings.Join(sqlParamsWithoutID, ", "),
		":"+strings.Join(sqlParamsWithoutID, ", :"),
	)
	rows, err := s.db.NamedQuery(query, d)
	if err != nil {
		return errors.Wrap(err, "failed to create session")
	}
	defer rows.Close()
	if rows.Next() {
		rows.Scan(&m.ID)
	}

	return nil
}

// EndActive relies on the database to update the unique active row, so two
// concurrent stops cannot both succeed.
func (s *sessionStore) EndActive(deviceID uuid.UUID, at time.Time) (*model.Session, error) {
	d := sqlDataSession{}
	query := `UPDATE sessions
		SET end_time=$2, is_idle=FALSE, updated_at=$3
		WHERE device_id=$1 AND end_time IS NULL
		RETURNING *`
	if err := s.db.Get(&d, query, deviceID, at, time.Now().Round(time.Second).UTC()); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to end active session")
	}

	return d.Model()
}

func (s *sessionStore) SetIdle(deviceID uuid.UUID, idle bool) (bool, error) {
	query := `UPDATE sessions
		SET is_idle=$2, updated_at=$3
		WHERE device_id=$1 AND end_time IS NULL AND is_idle<>$2`
	res, err := s.db.Exec(query, deviceID, idle, time.Now().Round(time.Second).UTC())
	if err != nil {
		return false, errors.Wrap(err, "failed to set session idle flag")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to set session idle flag")
	}

	return n > 0, nil
}
