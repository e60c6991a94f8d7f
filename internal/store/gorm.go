package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vitalflow/internal/models"
)

// Gorm is the relational Store implementation
type Gorm struct {
	db *gorm.DB
}

// Open connects, migrates the schema, and returns a ready Store
func Open(dialector gorm.Dialector) (*Gorm, error) {
	conn, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	err = conn.AutoMigrate(
		&models.Patient{},
		&models.Doctor{},
		&models.Room{},
		&models.Encounter{},
		&models.VitalsReading{},
		&models.Alert{},
		&models.AlertExplanation{},
		&models.DischargePlan{},
		&models.FollowupAppointment{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if dialector.Name() == "sqlite" {
		if err := conn.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("failed to enable sqlite foreign key support: %w", err)
		}
	}

	return &Gorm{db: conn}, nil
}

// UseSqliteDialector opens the on-disk database at path, or a default
// location when path is empty.
func UseSqliteDialector(path string) gorm.Dialector {
	if path == "" {
		if env, found := os.LookupEnv("VITALFLOW_DB_PATH"); found {
			path = env
		} else {
			path = "vitalflow.db"
		}
	}
	return sqlite.Open(path)
}

// UseMemorySqliteDialector is for tests and local experiments
func UseMemorySqliteDialector() gorm.Dialector {
	return sqlite.Open("file::memory:?cache=shared")
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// ---- VitalsStore ----

func (g *Gorm) CreateVitals(ctx context.Context, v *models.VitalsReading) error {
	return g.db.WithContext(ctx).Create(v).Error
}

func (g *Gorm) VitalsSince(ctx context.Context, encounterID uint, since time.Time, limit int) ([]models.VitalsReading, error) {
	q := g.db.WithContext(ctx).
		Where("encounter_id = ?", encounterID).
		Order("timestamp desc")
	if !since.IsZero() {
		q = q.Where("timestamp >= ?", since)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var readings []models.VitalsReading
	err := q.Find(&readings).Error
	return readings, err
}

// ---- AlertStore ----

func (g *Gorm) CreateAlert(ctx context.Context, a *models.Alert) error {
	return g.db.WithContext(ctx).Create(a).Error
}

func (g *Gorm) GetAlert(ctx context.Context, id uint) (*models.Alert, error) {
	var alert models.Alert
	if err := g.db.WithContext(ctx).First(&alert, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &alert, nil
}

func (g *Gorm) AlertsSince(ctx context.Context, encounterID uint, severity models.Severity, since time.Time) ([]models.Alert, error) {
	q := g.db.WithContext(ctx).
		Where("encounter_id = ?", encounterID).
		Order("created_at desc")
	if severity != "" {
		q = q.Where("severity = ?", severity)
	}
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}

	var alerts []models.Alert
	err := q.Find(&alerts).Error
	return alerts, err
}

func (g *Gorm) ResolveAlert(ctx context.Context, id uint, at time.Time) (*models.Alert, error) {
	var alert models.Alert
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&alert, id).Error; err != nil {
			return notFound(err)
		}
		if alert.Resolved {
			// resolution is monotonic and idempotent
			return nil
		}
		alert.Resolved = true
		alert.ResolvedAt = &at
		return tx.Model(&alert).
			Updates(map[string]any{"resolved": true, "resolved_at": at}).Error
	})
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// ---- ExplanationStore ----

func (g *Gorm) HasExplanation(ctx context.Context, alertID uint) (bool, error) {
	var count int64
	err := g.db.WithContext(ctx).
		Model(&models.AlertExplanation{}).
		Where("alert_id = ?", alertID).
		Count(&count).Error
	return count > 0, err
}

func (g *Gorm) CreateExplanation(ctx context.Context, e *models.AlertExplanation) error {
	// Conditional insert: the unique index on alert_id makes a duplicate
	// delivery a no-op rather than a constraint error.
	res := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "alert_id"}},
			DoNothing: true,
		}).
		Create(e)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

func (g *Gorm) GetExplanation(ctx context.Context, alertID uint) (*models.AlertExplanation, error) {
	var exp models.AlertExplanation
	if err := g.db.WithContext(ctx).First(&exp, "alert_id = ?", alertID).Error; err != nil {
		return nil, notFound(err)
	}
	return &exp, nil
}

// ---- EncounterStore ----

func (g *Gorm) CreateEncounter(ctx context.Context, e *models.Encounter) error {
	return g.db.WithContext(ctx).Create(e).Error
}

func (g *Gorm) GetEncounter(ctx context.Context, id uint) (*models.Encounter, error) {
	var enc models.Encounter
	if err := g.db.WithContext(ctx).First(&enc, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &enc, nil
}

func (g *Gorm) ListDischargeable(ctx context.Context) ([]models.Encounter, error) {
	var encounters []models.Encounter
	err := g.db.WithContext(ctx).
		Where("status = ? AND auto_discharge_blocked = ?", models.EncounterActive, false).
		Order("id").
		Find(&encounters).Error
	return encounters, err
}

func (g *Gorm) DischargeEncounter(ctx context.Context, id uint, at time.Time) (*models.Encounter, error) {
	var enc models.Encounter
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Conditional update guards against concurrent discharge: the second
		// caller sees zero rows affected and gets ErrConflict.
		res := tx.Model(&models.Encounter{}).
			Where("id = ? AND status = ?", id, models.EncounterActive).
			Updates(map[string]any{"status": models.EncounterDischarged, "discharged_at": at})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Encounter{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrConflict
		}

		if err := tx.First(&enc, id).Error; err != nil {
			return err
		}
		if enc.RoomID != 0 {
			if err := tx.Model(&models.Room{}).
				Where("id = ?", enc.RoomID).
				Update("occupied", false).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &enc, nil
}

func (g *Gorm) SetAutoDischargeBlocked(ctx context.Context, id uint, blocked bool) error {
	res := g.db.WithContext(ctx).
		Model(&models.Encounter{}).
		Where("id = ?", id).
		Update("auto_discharge_blocked", blocked)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- PatientStore ----

func (g *Gorm) CreatePatient(ctx context.Context, p *models.Patient) error {
	return g.db.WithContext(ctx).Create(p).Error
}

func (g *Gorm) GetPatient(ctx context.Context, id uint) (*models.Patient, error) {
	var patient models.Patient
	if err := g.db.WithContext(ctx).First(&patient, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &patient, nil
}

// ---- RoomStore ----

func (g *Gorm) CreateRoom(ctx context.Context, r *models.Room) error {
	return g.db.WithContext(ctx).Create(r).Error
}

func (g *Gorm) FindFreeRoom(ctx context.Context, department string) (*models.Room, error) {
	var room models.Room
	err := g.db.WithContext(ctx).
		Where("department = ? AND occupied = ?", department, false).
		Order("room_number").
		First(&room).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &room, nil
}

func (g *Gorm) GetRoom(ctx context.Context, id uint) (*models.Room, error) {
	var room models.Room
	if err := g.db.WithContext(ctx).First(&room, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &room, nil
}

func (g *Gorm) OccupyRoom(ctx context.Context, id uint) error {
	res := g.db.WithContext(ctx).
		Model(&models.Room{}).
		Where("id = ? AND occupied = ?", id, false).
		Update("occupied", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// ---- DoctorStore ----

func (g *Gorm) CreateDoctor(ctx context.Context, d *models.Doctor) error {
	return g.db.WithContext(ctx).Create(d).Error
}

func (g *Gorm) FirstDoctor(ctx context.Context) (*models.Doctor, error) {
	var doctor models.Doctor
	if err := g.db.WithContext(ctx).Order("id").First(&doctor).Error; err != nil {
		return nil, notFound(err)
	}
	return &doctor, nil
}

// ---- PlanStore ----

func (g *Gorm) CreateDischargePlan(ctx context.Context, p *models.DischargePlan) error {
	res := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "encounter_id"}},
			DoNothing: true,
		}).
		Create(p)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

func (g *Gorm) GetDischargePlan(ctx context.Context, encounterID uint) (*models.DischargePlan, error) {
	var plan models.DischargePlan
	if err := g.db.WithContext(ctx).First(&plan, "encounter_id = ?", encounterID).Error; err != nil {
		return nil, notFound(err)
	}
	return &plan, nil
}

func (g *Gorm) CreateFollowup(ctx context.Context, f *models.FollowupAppointment) error {
	return g.db.WithContext(ctx).Create(f).Error
}

func (g *Gorm) ListFollowups(ctx context.Context, encounterID uint) ([]models.FollowupAppointment, error) {
	var followups []models.FollowupAppointment
	err := g.db.WithContext(ctx).
		Where("encounter_id = ?", encounterID).
		Order("scheduled_for").
		Find(&followups).Error
	return followups, err
}
