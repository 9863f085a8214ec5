package syncer

import "omnitoken/clinic-service/internal/models"

const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// Syncer mirrors local mutations somewhere else. Implementations must not
// block the caller on network I/O and never report failures back to it.
type Syncer interface {
	Upsert(table string, record interface{})
	Delete(table, id string)
}

type Change struct {
	Op       string
	Table    string
	ID       string
	ClinicID string
	Record   interface{}
}

func NewUpsert(table string, record interface{}) Change {
	return Change{Op: OpUpsert, Table: table, ID: RecordID(record), ClinicID: ClinicOf(record), Record: record}
}

func NewDelete(table, id string) Change {
	return Change{Op: OpDelete, Table: table, ID: id}
}

// Fanout forwards every mutation to each syncer in order.
type Fanout []Syncer

func (f Fanout) Upsert(table string, record interface{}) {
	for _, s := range f {
		s.Upsert(table, record)
	}
}

func (f Fanout) Delete(table, id string) {
	for _, s := range f {
		s.Delete(table, id)
	}
}

// ListenerFunc adapts a plain function into a Syncer.
type ListenerFunc func(change Change)

func (f ListenerFunc) Upsert(table string, record interface{}) {
	f(NewUpsert(table, record))
}

func (f ListenerFunc) Delete(table, id string) {
	f(NewDelete(table, id))
}

// Discard drops every mutation; used when no remote store is configured.
type Discard struct{}

func (Discard) Upsert(string, interface{}) {}

func (Discard) Delete(string, string) {}

func RecordID(record interface{}) string {
	switch r := record.(type) {
	case models.Clinic:
		return r.ID
	case models.User:
		return r.ID
	case models.Advertiser:
		return r.ID
	case models.Cabin:
		return r.ID
	case models.RegistrationForm:
		return r.ID
	case models.Token:
		return r.ID
	case models.AdVideo:
		return r.ID
	case models.ClinicGroup:
		return r.ID
	case models.Specialty:
		return r.ID
	default:
		return ""
	}
}

// ClinicOf returns the owning clinic for clinic-scoped records.
func ClinicOf(record interface{}) string {
	switch r := record.(type) {
	case models.Clinic:
		return r.ID
	case models.User:
		return r.ClinicID
	case models.Cabin:
		return r.ClinicID
	case models.RegistrationForm:
		return r.ClinicID
	case models.Token:
		return r.ClinicID
	case models.ClinicGroup:
		return r.ClinicID
	default:
		return ""
	}
}
