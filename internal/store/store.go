package store

import (
	"context"
	"time"

	"omnitoken/clinic-service/internal/models"
)

const (
	TableClinics     = "clinics"
	TableUsers       = "users"
	TableAdvertisers = "advertisers"
	TableCabins      = "cabins"
	TableForms       = "forms"
	TableTokens      = "tokens"
	TableVideos      = "videos"
	TableGroups      = "groups"
	TableSpecialties = "specialties"
)

var Tables = []string{
	TableClinics,
	TableUsers,
	TableAdvertisers,
	TableCabins,
	TableForms,
	TableTokens,
	TableVideos,
	TableGroups,
	TableSpecialties,
}

func IsTable(name string) bool {
	for _, table := range Tables {
		if table == name {
			return true
		}
	}
	return false
}

// RemoteStore is the relational mirror of the entity state.
type RemoteStore interface {
	Upsert(ctx context.Context, table string, record interface{}) error
	Delete(ctx context.Context, table, id string) error
	FetchStateForUser(ctx context.Context, user models.User) (models.Snapshot, error)
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
	RecordLogin(ctx context.Context, entry models.LoginLog) error
	CreateSession(ctx context.Context, userID string, expiresAt time.Time) (models.Session, error)
	GetSession(ctx context.Context, sessionID string) (models.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
	Ping(ctx context.Context) error
}
