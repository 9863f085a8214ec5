package postgres

import (
	"context"
	"database/sql"

	"omnitoken/clinic-service/internal/models"

	"github.com/jackc/pgx/v5"
)

const (
	clinicSelect     = `SELECT id, name, phone, email, address, city, state, pincode, specialties, admin_id, logo FROM clinics`
	userSelect       = `SELECT id, name, email, password_hash, role, phone, specialty, clinic_id, advertiser_id, avatar FROM users`
	advertiserSelect = `SELECT id, company_name, contact_person, email, status FROM advertisers`
	cabinSelect      = `SELECT id, name, clinic_id, current_doctor_id FROM cabins`
	formSelect       = `SELECT id, name, clinic_id, fields, qr_code_url FROM forms`
	groupSelect      = `SELECT id, name, clinic_id, token_initial, doctor_ids, assistant_ids, screen_ids, cabin_ids, form_id, form_title, form_fields FROM groups`
	tokenSelect      = `SELECT id, number, token_initial, patient_name, patient_email, patient_data, status, clinic_id, group_id, cabin_id, doctor_id, timestamp, visit_start_time, visit_end_time, last_recalled_timestamp FROM tokens`
	videoSelect      = `SELECT id, title, url, type, advertiser_id, views, last_viewed FROM videos`
	specialtySelect  = `SELECT id, name, for_clinic, for_doctor FROM specialties`
)

// FetchStateForUser loads the rows visible to the user's role. Everyone gets
// specialties; clinic staff get their clinic plus every video for the screens.
func (s *Store) FetchStateForUser(ctx context.Context, user models.User) (models.Snapshot, error) {
	var snap models.Snapshot
	var err error

	if snap.Specialties, err = collect(ctx, s, specialtySelect+` ORDER BY name`, scanSpecialty); err != nil {
		return models.Snapshot{}, err
	}

	switch {
	case user.Role == models.RoleCentralAdmin:
		if snap.Clinics, err = collect(ctx, s, clinicSelect, scanClinic); err != nil {
			return models.Snapshot{}, err
		}
		if snap.Users, err = collect(ctx, s, userSelect, scanUser); err != nil {
			return models.Snapshot{}, err
		}
		if snap.Advertisers, err = collect(ctx, s, advertiserSelect, scanAdvertiser); err != nil {
			return models.Snapshot{}, err
		}
		if snap.Cabins, err = collect(ctx, s, cabinSelect, scanCabin); err != nil {
			return models.Snapshot{}, err
		}
		if snap.Forms, err = collect(ctx, s, formSelect, scanForm); err != nil {
			return models.Snapshot{}, err
		}
		if snap.Tokens, err = collect(ctx, s, tokenSelect+` ORDER BY timestamp, id`, scanToken); err != nil {
			return models.Snapshot{}, err
		}
		if snap.Videos, err = collect(ctx, s, videoSelect, scanVideo); err != nil {
			return models.Snapshot{}, err
		}
		if snap.Groups, err = collect(ctx, s, groupSelect, scanGroup); err != nil {
			return models.Snapshot{}, err
		}
	case models.IsClinicStaff(user.Role) && user.ClinicID != "":
		clinicID := user.ClinicID
		if snap.Clinics, err = collect(ctx, s, clinicSelect+` WHERE id = $1`, scanClinic, clinicID); err != nil {
			return models.Snapshot{}, err
		}
		if snap.Users, err = collect(ctx, s, userSelect+` WHERE clinic_id = $1`, scanUser, clinicID); err != nil {
			return models.Snapshot{}, err
		}
		if snap.Cabins, err = collect(ctx, s, cabinSelect+` WHERE clinic_id = $1`, scanCabin, clinicID); err != nil {
			return models.Snapshot{}, err
		}
		if snap.Forms, err = collect(ctx, s, formSelect+` WHERE clinic_id = $1`, scanForm, clinicID); err != nil {
			return models.Snapshot{}, err
		}
		if snap.Tokens, err = collect(ctx, s, tokenSelect+` WHERE clinic_id = $1 ORDER BY timestamp, id`, scanToken, clinicID); err != nil {
			return models.Snapshot{}, err
		}
		if snap.Groups, err = collect(ctx, s, groupSelect+` WHERE clinic_id = $1`, scanGroup, clinicID); err != nil {
			return models.Snapshot{}, err
		}
		if snap.Videos, err = collect(ctx, s, videoSelect, scanVideo); err != nil {
			return models.Snapshot{}, err
		}
	case user.Role == models.RoleAdvertiser && user.AdvertiserID != "":
		advID := user.AdvertiserID
		if snap.Advertisers, err = collect(ctx, s, advertiserSelect+` WHERE id = $1`, scanAdvertiser, advID); err != nil {
			return models.Snapshot{}, err
		}
		if snap.Videos, err = collect(ctx, s, videoSelect+` WHERE advertiser_id = $1`, scanVideo, advID); err != nil {
			return models.Snapshot{}, err
		}
	}

	return snap, nil
}

func collect[T any](ctx context.Context, s *Store, query string, scan pgx.RowToFunc[T], args ...interface{}) ([]T, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scan)
}

func scanClinic(row pgx.CollectableRow) (models.Clinic, error) {
	var c models.Clinic
	var logo sql.NullString
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.City, &c.State, &c.Pincode, &c.Specialties, &c.AdminID, &logo)
	c.Logo = nullString(logo)
	return c, err
}

func scanUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	var phone, specialty, clinicID, advertiserID, avatar sql.NullString
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &phone, &specialty, &clinicID, &advertiserID, &avatar)
	u.Phone = nullString(phone)
	u.Specialty = nullString(specialty)
	u.ClinicID = nullString(clinicID)
	u.AdvertiserID = nullString(advertiserID)
	u.Avatar = nullString(avatar)
	return u, err
}

func scanAdvertiser(row pgx.CollectableRow) (models.Advertiser, error) {
	var a models.Advertiser
	err := row.Scan(&a.ID, &a.CompanyName, &a.ContactPerson, &a.Email, &a.Status)
	return a, err
}

func scanCabin(row pgx.CollectableRow) (models.Cabin, error) {
	var c models.Cabin
	var doctorID sql.NullString
	err := row.Scan(&c.ID, &c.Name, &c.ClinicID, &doctorID)
	c.CurrentDoctorID = nullString(doctorID)
	return c, err
}

func scanForm(row pgx.CollectableRow) (models.RegistrationForm, error) {
	var f models.RegistrationForm
	err := row.Scan(&f.ID, &f.Name, &f.ClinicID, &f.Fields, &f.QRCodeURL)
	return f, err
}

func scanGroup(row pgx.CollectableRow) (models.ClinicGroup, error) {
	var g models.ClinicGroup
	var initial, formID, formTitle sql.NullString
	err := row.Scan(&g.ID, &g.Name, &g.ClinicID, &initial, &g.DoctorIDs, &g.AssistantIDs, &g.ScreenIDs, &g.CabinIDs, &formID, &formTitle, &g.FormFields)
	g.TokenInitial = nullString(initial)
	g.FormID = nullString(formID)
	g.FormTitle = nullString(formTitle)
	return g, err
}

func scanToken(row pgx.CollectableRow) (models.Token, error) {
	var t models.Token
	var initial, email, groupID, cabinID, doctorID sql.NullString
	var start, end, recalled sql.NullTime
	var data map[string]string
	err := row.Scan(&t.ID, &t.Number, &initial, &t.PatientName, &email, &data, &t.Status, &t.ClinicID,
		&groupID, &cabinID, &doctorID, &t.Timestamp, &start, &end, &recalled)
	t.TokenInitial = nullString(initial)
	t.PatientEmail = nullString(email)
	t.PatientData = models.PatientDataFromMap(data)
	t.GroupID = nullString(groupID)
	t.CabinID = nullString(cabinID)
	t.DoctorID = nullString(doctorID)
	t.VisitStartTime = nullTimePtr(start)
	t.VisitEndTime = nullTimePtr(end)
	t.LastRecalledTimestamp = nullTimePtr(recalled)
	return t, err
}

func scanVideo(row pgx.CollectableRow) (models.AdVideo, error) {
	var v models.AdVideo
	var lastViewed sql.NullTime
	err := row.Scan(&v.ID, &v.Title, &v.URL, &v.Type, &v.AdvertiserID, &v.Stats.Views, &lastViewed)
	v.Stats.LastViewed = nullTimePtr(lastViewed)
	return v, err
}

func scanSpecialty(row pgx.CollectableRow) (models.Specialty, error) {
	var sp models.Specialty
	err := row.Scan(&sp.ID, &sp.Name, &sp.ForClinic, &sp.ForDoctor)
	return sp, err
}
