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

func newDeviceStore(db *sqlx.DB) *deviceStore {
	return &deviceStore{
		db: db,
	}
}

type deviceStore struct {
	db *sqlx.DB
}

type sqlDataDevice struct {
	ID                 uuid.UUID      `db:"id"`
	OwnerID            sql.NullString `db:"owner_id"`
	Name               string         `db:"name"`
	APIKey             string         `db:"api_key"`
	IsActive           bool           `db:"is_active"`
	Sensitivity        int            `db:"sensitivity"`
	VibrationIntensity int            `db:"vibration_intensity"`
	AudioIntensity     int            `db:"audio_intensity"`
	LastSeen           sql.NullTime   `db:"last_seen"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

var sqlParamsDevice = []string{
	"id",
	"owner_id",
	"name",
	"api_key",
	"is_active",
	"sensitivity",
	"vibration_intensity",
	"audio_intensity",
	"last_seen",
	"created_at",
	"updated_at",
}

func (d *sqlDataDevice) Scan(m *model.Device) error {
	var createdAt, updatedAt = m.CreatedAt, m.UpdatedAt

	if m.CreatedAt.IsZero() {
		createdAt = time.Now().Round(time.Second).UTC()
	}

	if m.UpdatedAt.IsZero() {
		updatedAt = time.Now().Round(time.Second).UTC()
	}

	d.ID = m.ID
	d.OwnerID = sql.NullString{}
	if m.OwnerID != nil {
		d.OwnerID = sql.NullString{String: *m.OwnerID, Valid: true}
	}
	d.Name = m.Name
	d.APIKey = m.APIKey
	d.IsActive = m.IsActive
	d.Sensitivity = m.Sensitivity
	d.VibrationIntensity = m.VibrationIntensity
	d.AudioIntensity = m.AudioIntensity
	d.LastSeen = sql.NullTime{}
	if m.LastSeen != nil {
		d.LastSeen = sql.NullTime{Time: *m.LastSeen, Valid: true}
	}
	d.CreatedAt = createdAt
	d.UpdatedAt = updatedAt

	return nil
}

func (d *sqlDataDevice) Model() (*model.Device, error) {
	m := &model.Device{
		ID:                 d.ID,
		Name:               d.Name,
		APIKey:             d.APIKey,
		IsActive:           d.IsActive,
		Sensitivity:        d.Sensitivity,
		VibrationIntensity: d.VibrationIntensity,
		AudioIntensity:     d.AudioIntensity,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
	if d.OwnerID.Valid {
		owner := d.OwnerID.String
		m.OwnerID = &owner
	}
	if d.LastSeen.Valid {
		lastSeen := d.LastSeen.Time
		m.LastSeen = &lastSeen
	}

	return m, nil
}

func (s *deviceStore) FetchAll() (map[uuid.UUID]model.Device, error) {
	rows := make([]sqlDataDevice, 0)
	models := make(map[uuid.UUID]model.Device)

	query := "SELECT * FROM devices ORDER BY created_at"
	if err := s.db.Select(&rows, query); err != nil {
		return nil, errors.Wrap(err, "failed to fetch all devices")
	}

	for _, d := range rows {
		m, err := d.Model()
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert SQL data to device model")
		}

		models[d.ID] = *m
	}

	return models, nil
}

func (s *deviceStore) FindByID(id uuid.UUID) (*model.Device, error) {
	d := sqlDataDevice{}
	query := "SELECT * FROM devices WHERE id=$1"
	if err := s.db.Get(&d, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to find device")
	}

	return d.Model()
}

func (s *deviceStore) Create(m *model.Device) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}

	d := sqlDataDevice{}
	if err := d.Scan(m); err != nil {
		return errors.Wrap(err, "failed to convert device model to SQL data")
	}

	query := fmt.Sprintf(
		"INSERT INTO devices (%s) VALUES (%s)",
		strings.Join(sqlParamsDevice, ", "),
		":"+strings.Join(sqlParamsDevice, ", :"),
	)
	if _, err := s.db.NamedExec(query, d); err != nil {
		return errors.Wrap(err, "failed to create device")
	}

	return nil
}

func (s *deviceStore) Update(m *model.Device) error {
	if _, err := s.FindByID(m.ID); err != nil {
		return err
	}

	// Set the UpdatedAt date to now
	m.UpdatedAt = time.Now().Round(time.Second).UTC()

	d := sqlDataDevice{}
	if err := d.Scan(m); err != nil {
		return errors.Wrap(err, "failed to convert device model to SQL data")
	}

	var queryParams []string
	for _, param := range sqlParamsDevice {
		queryParams = append(queryParams, fmt.Sprintf("%s=:%s", param, param))
	}
	query := fmt.Sprintf("UPDATE devices SET %s WHERE id=:id", strings.Join(queryParams, ", "))
	if _, err := s.db.NamedExec(query, d); err != nil {
		return errors.Wrap(err, "failed to update device")
	}

	return nil
}

func (s *deviceStore) TouchLastSeen(id uuid.UUID, at time.Time) error {
	query := "UPDATE devices SET last_seen=$2 WHERE id=$1"
	res, err := s.db.Exec(query, id, at)
	if err != nil {
		return errors.Wrap(err, "failed to touch device last_seen")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func (s *deviceStore) Delete(id uuid.UUID) error {
	query := "DELETE FROM devices WHERE id=$1"
	_, err := s.db.Exec(query, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete device")
	}

	return nil
}
