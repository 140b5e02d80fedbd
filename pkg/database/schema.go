package database

import (
	"context"
	"fmt"
)

// Schema DDL for the entity store. Appointments carry an exclusion-style
// backstop index so two racing inserts for the same doctor and start time
// cannot both land even if the in-process doctor lock is bypassed.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS centres (
		id UUID PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		address TEXT NOT NULL,
		phone VARCHAR(20)
	)`,

	`CREATE TABLE IF NOT EXISTS profiles (
		id UUID PRIMARY KEY,
		username VARCHAR(100) NOT NULL UNIQUE,
		role VARCHAR(20) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS profile_centres (
		profile_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		centre_id UUID NOT NULL REFERENCES centres(id) ON DELETE CASCADE,
		PRIMARY KEY (profile_id, centre_id)
	)`,

	`CREATE TABLE IF NOT EXISTS patients (
		id UUID PRIMARY KEY,
		first_name VARCHAR(100) NOT NULL,
		postname VARCHAR(100),
		last_name VARCHAR(100) NOT NULL,
		date_of_birth DATE NOT NULL,
		gender VARCHAR(1) NOT NULL,
		phone VARCHAR(20),
		address TEXT,
		emergency_contact VARCHAR(100),
		is_subscriber BOOLEAN NOT NULL DEFAULT FALSE,
		centre_id UUID REFERENCES centres(id) ON DELETE SET NULL,
		medical_history TEXT,
		allergies TEXT,
		vaccinations TEXT,
		lifestyle TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_patients_centre ON patients(centre_id)`,
	`CREATE INDEX IF NOT EXISTS idx_patients_name ON patients(last_name, first_name)`,

	`CREATE TABLE IF NOT EXISTS consultations (
		id UUID PRIMARY KEY,
		patient_id UUID NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
		doctor_id UUID NOT NULL REFERENCES profiles(id),
		centre_id UUID NOT NULL REFERENCES centres(id),
		date TIMESTAMPTZ NOT NULL DEFAULT now(),
		appointment_date TIMESTAMPTZ,
		status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
		reason TEXT NOT NULL,
		clinical_exam TEXT,
		diagnosis TEXT,
		prescription TEXT,
		follow_up_date DATE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_consultations_doctor ON consultations(doctor_id, date DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_consultations_patient ON consultations(patient_id)`,

	`CREATE TABLE IF NOT EXISTS hospitalisations (
		id UUID PRIMARY KEY,
		patient_id UUID NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
		doctor_id UUID NOT NULL REFERENCES profiles(id),
		centre_id UUID NOT NULL REFERENCES centres(id),
		admission_date TIMESTAMPTZ NOT NULL DEFAULT now(),
		discharge_date TIMESTAMPTZ,
		service VARCHAR(100) NOT NULL,
		room VARCHAR(20),
		bed VARCHAR(20),
		admission_reason TEXT NOT NULL,
		medical_notes TEXT,
		nursing_notes JSONB NOT NULL DEFAULT '[]',
		interventions JSONB NOT NULL DEFAULT '[]',
		discharge_summary TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_hosp_centre_active ON hospitalisations(centre_id) WHERE discharge_date IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_hosp_doctor ON hospitalisations(doctor_id, admission_date DESC)`,

	`CREATE TABLE IF NOT EXISTS emergencies (
		id UUID PRIMARY KEY,
		patient_id UUID NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
		doctor_id UUID REFERENCES profiles(id),
		centre_id UUID NOT NULL REFERENCES centres(id),
		admission_time TIMESTAMPTZ NOT NULL DEFAULT now(),
		reason TEXT NOT NULL,
		triage_level VARCHAR(10) NOT NULL,
		vital_signs TEXT,
		first_aid TEXT,
		initial_diagnosis TEXT,
		orientation VARCHAR(20)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_emergencies_centre ON emergencies(centre_id, admission_time DESC)`,

	`CREATE TABLE IF NOT EXISTS appointments (
		id UUID PRIMARY KEY,
		patient_id UUID NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
		doctor_id UUID NOT NULL REFERENCES profiles(id),
		centre_id UUID NOT NULL REFERENCES centres(id),
		start_time TIMESTAMPTZ NOT NULL,
		duration_minutes INT NOT NULL CHECK (duration_minutes BETWEEN 15 AND 180),
		status VARCHAR(20) NOT NULL DEFAULT 'PLANNED',
		reason TEXT,
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_doctor ON appointments(doctor_id, start_time)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_appointments_doctor_start
		ON appointments(doctor_id, start_time) WHERE status <> 'CANCELLED'`,
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	db.logger.Info("Database schema ensured")
	return nil
}
