package postgres

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/posturelab/posturehub/pkg/model"
	"github.com/posturelab/posturehub/pkg/storage"
)

func newReadingStore(db *sqlx.DB) *readingStore {
	return &readingStore{
		db: db,
	}
}

type readingStore struct {
	db *sqlx.DB
}

type sqlDataReading struct {
	ID           int64     `db:"id"`
	DeviceID     uuid.UUID `db:"device_id"`
	Timestamp    time.Time `db:"timestamp"`
	OverallScore int       `db:"overall_score"`
	CreatedAt    time.Time `db:"created_at"`
}

type sqlDataComponent struct {
	ID        int64  `db:"id"`
	ReadingID int64  `db:"reading_id"`
	Type      string `db:"component_type"`
	Score     int    `db:"score"`
}

func (d *sqlDataReading) Model() *model.PostureReading {
	return &model.PostureReading{
		ID:           d.ID,
		DeviceID:     d.DeviceID,
		Timestamp:    d.Timestamp,
		OverallScore: d.OverallScore,
		CreatedAt:    d.CreatedAt,
	}
}

// Create persists the reading and its components in one transaction, so a
// reading is never observable without its three components.
func (s *readingStore) Create(m *model.PostureReading) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().Round(time.Second).UTC()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().Round(time.Second).UTC()
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return errors.Wrap(err, "failed to begin reading transaction")
	}

	query := `INSERT INTO posture_readings (device_id, timestamp, overall_score, created_at)
		VALUES ($1, $2, $3, $4) RETURNING id`
	if err := tx.Get(&m.ID, query, m.DeviceID, m.Timestamp, m.OverallScore, m.CreatedAt); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "failed to create posture reading")
	}

	for i := range m.Components {
		m.Components[i].ReadingID = m.ID
		query := `INSERT INTO posture_components (reading_id, component_type, score)
			VALUES ($1, $2, $3) RETURNING id`
		if err := tx.Get(&m.Components[i].ID, query, m.ID,
			string(m.Components[i].Type), m.Components[i].Score); err != nil {
			tx.Rollback()
			return errors.Wrap(err, "failed to create posture component")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit posture reading")
	}

	return nil
}

func (s *readingStore) FindLatestByDeviceID(deviceID uuid.UUID) (*model.PostureReading, error) {
	d := sqlDataReading{}
	query := `SELECT * FROM posture_readings
		WHERE device_id=$1 ORDER BY timestamp DESC LIMIT 1`
	if err := s.db.Get(&d, query, deviceID); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to find latest posture reading")
	}

	m := d.Model()
	if err := s.attachComponents(m); err != nil {
		return nil, err
	}

	return m, nil
}

func (s *readingStore) FetchByDeviceID(deviceID uuid.UUID, limit int) ([]model.PostureReading, error) {
	rows := make([]sqlDataReading, 0)
	query := `SELECT * FROM posture_readings
		WHERE device_id=$1 ORDER BY timestamp DESC`
	args := []interface{}{deviceID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to fetch posture readings")
	}

	models := make([]model.PostureReading, 0, len(rows))
	for _, d := range rows {
		m := d.Model()
		if err := s.attachComponents(m); err != nil {
			return nil, err
		}
		models = append(models, *m)
	}

	return models, nil
}

func (s *readingStore) attachComponents(m *model.PostureReading) error {
	rows := make([]sqlDataComponent, 0)
	query := "SELECT * FROM posture_components WHERE reading_id=$1 ORDER BY id"
	if err := s.db.Select(&rows, query, m.ID); err != nil {
		return errors.Wrap(err, "failed to fetch posture components")
	}

	m.Components = make([]model.PostureComponent, 0, len(rows))
	for _, c := range rows {
		m.Components = append(m.Components, model.PostureComponent{
			ID:        c.ID,
			ReadingID: c.ReadingID,
			Type:      model.ComponentType(c.Type),
			Score:     c.Score,
		})
	}

	return nil
}
