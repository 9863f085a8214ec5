package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Upsert(ctx context.Context, table string, record interface{}) error {
	switch table {
	case store.TableClinics:
		clinic, ok := record.(models.Clinic)
		if !ok {
			return unexpectedRecord(table, record)
		}
		return s.upsertClinic(ctx, clinic)
	case store.TableUsers:
		user, ok := record.(models.User)
		if !ok {
			return unexpectedRecord(table, record)
		}
		return s.upsertUser(ctx, user)
	case store.TableAdvertisers:
		adv, ok := record.(models.Advertiser)
		if !ok {
			return unexpectedRecord(table, record)
		}
		return s.upsertAdvertiser(ctx, adv)
	case store.TableCabins:
		cabin, ok := record.(models.Cabin)
		if !ok {
			return unexpectedRecord(table, record)
		}
		return s.upsertCabin(ctx, cabin)
	case store.TableForms:
		form, ok := record.(models.RegistrationForm)
		if !ok {
			return unexpectedRecord(table, record)
		}
		return s.upsertForm(ctx, form)
	case store.TableTokens:
		token, ok := record.(models.Token)
		if !ok {
			return unexpectedRecord(table, record)
		}
		return s.upsertToken(ctx, token)
	case store.TableVideos:
		video, ok := record.(models.AdVideo)
		if !ok {
			return unexpectedRecord(table, record)
		}
		return s.upsertVideo(ctx, video)
	case store.TableGroups:
		group, ok := record.(models.ClinicGroup)
		if !ok {
			return unexpectedRecord(table, record)
		}
		return s.upsertGroup(ctx, group)
	case store.TableSpecialties:
		spec, ok := record.(models.Specialty)
		if !ok {
			return unexpectedRecord(table, record)
		}
		return s.upsertSpecialty(ctx, spec)
	default:
		return fmt.Errorf("%w: %s", store.ErrUnknownTable, table)
	}
}

func (s *Store) Delete(ctx context.Context, table, id string) error {
	if !store.IsTable(table) {
		return fmt.Errorf("%w: %s", store.ErrUnknownTable, table)
	}
	// table is checked against the fixed table list above
	_, err := s.pool.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	return err
}

func (s *Store) upsertClinic(ctx context.Context, c models.Clinic) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO clinics (id, name, phone, email, address, city, state, pincode, specialties, admin_id, logo)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			address = EXCLUDED.address,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			pincode = EXCLUDED.pincode,
			specialties = EXCLUDED.specialties,
			admin_id = EXCLUDED.admin_id,
			logo = EXCLUDED.logo
	`, c.ID, c.Name, c.Phone, c.Email, c.Address, c.City, c.State, c.Pincode, nonNil(c.Specialties), c.AdminID, nullIfEmpty(c.Logo))
	return err
}

func (s *Store) upsertUser(ctx context.Context, u models.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, phone, specialty, clinic_id, advertiser_id, avatar)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			password_hash = CASE WHEN EXCLUDED.password_hash = '' THEN users.password_hash ELSE EXCLUDED.password_hash END,
			role = EXCLUDED.role,
			phone = EXCLUDED.phone,
			specialty = EXCLUDED.specialty,
			clinic_id = EXCLUDED.clinic_id,
			advertiser_id = EXCLUDED.advertiser_id,
			avatar = EXCLUDED.avatar
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.Role, nullIfEmpty(u.Phone), nullIfEmpty(u.Specialty), nullIfEmpty(u.ClinicID), nullIfEmpty(u.AdvertiserID), nullIfEmpty(u.Avatar))
	return err
}

func (s *Store) upsertAdvertiser(ctx context.Context, a models.Advertiser) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO advertisers (id, company_name, contact_person, email, status)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET
			company_name = EXCLUDED.company_name,
			contact_person = EXCLUDED.contact_person,
			email = EXCLUDED.email,
			status = EXCLUDED.status
	`, a.ID, a.CompanyName, a.ContactPerson, a.Email, a.Status)
	return err
}

func (s *Store) upsertCabin(ctx context.Context, c models.Cabin) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cabins (id, name, clinic_id, current_doctor_id)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			clinic_id = EXCLUDED.clinic_id,
			current_doctor_id = EXCLUDED.current_doctor_id
	`, c.ID, c.Name, c.ClinicID, nullIfEmpty(c.CurrentDoctorID))
	return err
}

func (s *Store) upsertForm(ctx context.Context, f models.RegistrationForm) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO forms (id, name, clinic_id, fields, qr_code_url)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			clinic_id = EXCLUDED.clinic_id,
			fields = EXCLUDED.fields,
			qr_code_url = EXCLUDED.qr_code_url
	`, f.ID, f.Name, f.ClinicID, nonNil(f.Fields), f.QRCodeURL)
	return err
}

func (s *Store) upsertGroup(ctx context.Context, g models.ClinicGroup) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO groups (id, name, clinic_id, token_initial, doctor_ids, assistant_ids, screen_ids, cabin_ids, form_id, form_title, form_fields)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			clinic_id = EXCLUDED.clinic_id,
			token_initial = EXCLUDED.token_initial,
			doctor_ids = EXCLUDED.doctor_ids,
			assistant_ids = EXCLUDED.assistant_ids,
			screen_ids = EXCLUDED.screen_ids,
			cabin_ids = EXCLUDED.cabin_ids,
			form_id = EXCLUDED.form_id,
			form_title = EXCLUDED.form_title,
			form_fields = EXCLUDED.form_fields
	`, g.ID, g.Name, g.ClinicID, nullIfEmpty(g.TokenInitial), nonNil(g.DoctorIDs), nonNil(g.AssistantIDs), nonNil(g.ScreenIDs), nonNil(g.CabinIDs), nullIfEmpty(g.FormID), nullIfEmpty(g.FormTitle), nonNil(g.FormFields))
	return err
}

func (s *Store) upsertToken(ctx context.Context, t models.Token) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tokens (
			id, number, token_initial, patient_name, patient_email, patient_data, status, clinic_id,
			group_id, cabin_id, doctor_id, timestamp, visit_start_time, visit_end_time, last_recalled_timestamp
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
			number = EXCLUDED.number,
			token_initial = EXCLUDED.token_initial,
			patient_name = EXCLUDED.patient_name,
			patient_email = EXCLUDED.patient_email,
			patient_data = EXCLUDED.patient_data,
			status = EXCLUDED.status,
			clinic_id = EXCLUDED.clinic_id,
			group_id = EXCLUDED.group_id,
			cabin_id = EXCLUDED.cabin_id,
			doctor_id = EXCLUDED.doctor_id,
			visit_start_time = EXCLUDED.visit_start_time,
			visit_end_time = EXCLUDED.visit_end_time,
			last_recalled_timestamp = EXCLUDED.last_recalled_timestamp
	`, t.ID, t.Number, nullIfEmpty(t.TokenInitial), t.PatientName, nullIfEmpty(t.PatientEmail), t.PatientData.Map(), t.Status, t.ClinicID,
		nullIfEmpty(t.GroupID), nullIfEmpty(t.CabinID), nullIfEmpty(t.DoctorID), t.Timestamp, t.VisitStartTime, t.VisitEndTime, t.LastRecalledTimestamp)
	return err
}

func (s *Store) upsertVideo(ctx context.Context, v models.AdVideo) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO videos (id, title, url, type, advertiser_id, views, last_viewed)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			url = EXCLUDED.url,
			type = EXCLUDED.type,
			advertiser_id = EXCLUDED.advertiser_id,
			views = EXCLUDED.views,
			last_viewed = EXCLUDED.last_viewed
	`, v.ID, v.Title, v.URL, v.Type, v.AdvertiserID, v.Stats.Views, v.Stats.LastViewed)
	return err
}

func (s *Store) upsertSpecialty(ctx context.Context, sp models.Specialty) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO specialties (id, name, for_clinic, for_doctor)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			for_clinic = EXCLUDED.for_clinic,
			for_doctor = EXCLUDED.for_doctor
	`, sp.ID, sp.Name, sp.ForClinic, sp.ForDoctor)
	return err
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	rows, err := s.pool.Query(ctx, userSelect+` WHERE lower(email) = lower($1)`, email)
	if err != nil {
		return models.User{}, err
	}
	user, err := pgx.CollectOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) RecordLogin(ctx context.Context, entry models.LoginLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO login_logs (user_id, email, role, clinic_id, login_at, user_agent)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.UserID, entry.Email, entry.Role, nullIfEmpty(entry.ClinicID), entry.LoginAt, entry.UserAgent)
	return err
}

func (s *Store) CreateSession(ctx context.Context, userID string, expiresAt time.Time) (models.Session, error) {
	session := models.Session{
		SessionID: uuid.NewString(),
		UserID:    userID,
		ExpiresAt: expiresAt,
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, expires_at)
		VALUES ($1,$2,$3)
	`, session.SessionID, session.UserID, session.ExpiresAt)
	if err != nil {
		return models.Session{}, err
	}
	return session, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (models.Session, error) {
	var session models.Session
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, user_id, expires_at
		FROM sessions
		WHERE session_id = $1 AND expires_at > NOW()
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.UserID, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, store.ErrSessionNotFound
		}
		return models.Session{}, err
	}
	return session, nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	return err
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func unexpectedRecord(table string, record interface{}) error {
	return fmt.Errorf("upsert %s: unexpected record type %T", table, record)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullString(value sql.NullString) string {
	if !value.Valid {
		return ""
	}
	return value.String
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}
