package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestFetchStateForUserScopesByRole(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	clinicA := uuid.NewString()
	clinicB := uuid.NewString()
	advID := uuid.NewString()
	otherAdv := uuid.NewString()

	mustUpsert(t, ctx, st, store.TableSpecialties, models.Specialty{ID: uuid.NewString(), Name: "Cardiology", ForClinic: true, ForDoctor: true})
	mustUpsert(t, ctx, st, store.TableClinics, models.Clinic{ID: clinicA, Name: "Alpha", Specialties: []string{"Cardiology"}})
	mustUpsert(t, ctx, st, store.TableClinics, models.Clinic{ID: clinicB, Name: "Beta"})
	mustUpsert(t, ctx, st, store.TableCabins, models.Cabin{ID: uuid.NewString(), Name: "Cabin 1", ClinicID: clinicA})
	mustUpsert(t, ctx, st, store.TableCabins, models.Cabin{ID: uuid.NewString(), Name: "Cabin 9", ClinicID: clinicB})
	mustUpsert(t, ctx, st, store.TableTokens, models.Token{
		ID:          uuid.NewString(),
		Number:      101,
		PatientName: "Asha",
		PatientData: models.PatientData{Phone: "9000000001", Extra: map[string]string{"groupId": "g"}},
		Status:      models.StatusWaiting,
		ClinicID:    clinicA,
		Timestamp:   time.Now().UTC(),
	})
	mustUpsert(t, ctx, st, store.TableAdvertisers, models.Advertiser{ID: advID, CompanyName: "Acme", ContactPerson: "Ravi", Email: "ravi@acme.test", Status: models.AdvertiserActive})
	mustUpsert(t, ctx, st, store.TableAdvertisers, models.Advertiser{ID: otherAdv, CompanyName: "Other", ContactPerson: "Mia", Email: "mia@other.test", Status: models.AdvertiserActive})
	mustUpsert(t, ctx, st, store.TableVideos, models.AdVideo{ID: uuid.NewString(), Title: "Spot", URL: "https://example.test/a.mp4", Type: models.VideoLocal, AdvertiserID: advID})
	mustUpsert(t, ctx, st, store.TableVideos, models.AdVideo{ID: uuid.NewString(), Title: "Other", URL: "https://example.test/b.mp4", Type: models.VideoLocal, AdvertiserID: otherAdv})

	central, err := st.FetchStateForUser(ctx, models.User{Role: models.RoleCentralAdmin})
	if err != nil {
		t.Fatalf("fetch central: %v", err)
	}
	if len(central.Clinics) != 2 || len(central.Cabins) != 2 || len(central.Videos) != 2 || len(central.Specialties) != 1 {
		t.Fatalf("unexpected central snapshot: %+v", central)
	}

	staff, err := st.FetchStateForUser(ctx, models.User{Role: models.RoleDoctor, ClinicID: clinicA})
	if err != nil {
		t.Fatalf("fetch staff: %v", err)
	}
	if len(staff.Clinics) != 1 || staff.Clinics[0].ID != clinicA {
		t.Fatalf("expected only clinic A, got %+v", staff.Clinics)
	}
	if len(staff.Cabins) != 1 || len(staff.Tokens) != 1 || len(staff.Videos) != 2 {
		t.Fatalf("unexpected staff snapshot: %+v", staff)
	}
	if staff.Tokens[0].PatientData.Phone != "9000000001" || staff.Tokens[0].PatientData.Extra["groupId"] != "g" {
		t.Fatalf("patient data did not round-trip: %+v", staff.Tokens[0].PatientData)
	}
	if len(staff.Advertisers) != 0 {
		t.Fatalf("staff must not see advertisers")
	}

	adv, err := st.FetchStateForUser(ctx, models.User{Role: models.RoleAdvertiser, AdvertiserID: advID})
	if err != nil {
		t.Fatalf("fetch advertiser: %v", err)
	}
	if len(adv.Advertisers) != 1 || len(adv.Videos) != 1 || adv.Videos[0].AdvertiserID != advID {
		t.Fatalf("unexpected advertiser snapshot: %+v", adv)
	}
	if len(adv.Clinics) != 0 || len(adv.Tokens) != 0 {
		t.Fatalf("advertiser must not see clinic data")
	}
}

func TestUserPasswordHashSurvivesProfileUpdate(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	user := models.User{ID: uuid.NewString(), Name: "Dr. Rao", Email: "Rao@Clinic.test", PasswordHash: "$2a$10$hash", Role: models.RoleDoctor}
	mustUpsert(t, ctx, st, store.TableUsers, user)

	user.PasswordHash = ""
	user.Name = "Dr. K. Rao"
	mustUpsert(t, ctx, st, store.TableUsers, user)

	found, err := st.FindUserByEmail(ctx, "rao@clinic.test")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if found.Name != "Dr. K. Rao" || found.PasswordHash != "$2a$10$hash" {
		t.Fatalf("unexpected user after update: %+v", found)
	}

	if _, err := st.FindUserByEmail(ctx, "nobody@clinic.test"); !errors.Is(err, store.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	live, err := st.CreateSession(ctx, "user-1", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	expired, err := st.CreateSession(ctx, "user-2", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("create expired session: %v", err)
	}

	if _, err := st.GetSession(ctx, live.SessionID); err != nil {
		t.Fatalf("get live session: %v", err)
	}
	if _, err := st.GetSession(ctx, expired.SessionID); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected expired session to be hidden, got %v", err)
	}

	removed, err := st.DeleteExpiredSessions(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("sweep sessions: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 expired session removed, got %d", removed)
	}

	if err := st.DeleteSession(ctx, live.SessionID); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := st.GetSession(ctx, live.SessionID); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected deleted session to be gone, got %v", err)
	}
}

func mustUpsert(t *testing.T, ctx context.Context, st *Store, table string, record interface{}) {
	t.Helper()
	if err := st.Upsert(ctx, table, record); err != nil {
		t.Fatalf("upsert %s: %v", table, err)
	}
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, *pgxpool.Pool, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := createSchema(ctx, dsn, schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := newPoolWithSchema(ctx, dsn, schema)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		_ = dropSchema(context.Background(), dsn, schema)
	}
	return NewStore(pool), pool, cleanup
}

func createSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	return err
}

func dropSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "DROP SCHEMA "+schema+" CASCADE")
	return err
}

func newPoolWithSchema(ctx context.Context, dsn, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	return pgxpool.NewWithConfig(ctx, cfg)
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	dir := filepath.Join("..", "..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(content)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return err
		}
	}
	return nil
}
