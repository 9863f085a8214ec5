package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPatientDataKeepsUnknownKeys(t *testing.T) {
	raw := []byte(`{"phone":"9876543210","age":"41","groupId":"g-1","referral":"camp"}`)

	var data PatientData
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if data.Phone != "9876543210" || data.Age != "41" {
		t.Fatalf("unexpected named fields: %+v", data)
	}
	if data.Extra["groupId"] != "g-1" || data.Extra["referral"] != "camp" {
		t.Fatalf("expected extras to survive, got %+v", data.Extra)
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var values map[string]string
	if err := json.Unmarshal(encoded, &values); err != nil {
		t.Fatalf("decode map: %v", err)
	}
	if len(values) != 4 || values["referral"] != "camp" {
		t.Fatalf("unexpected wire map: %v", values)
	}
	if _, ok := values["gender"]; ok {
		t.Fatalf("empty fields must not be emitted")
	}
}

func TestDisplayNumber(t *testing.T) {
	if got := (Token{Number: 101, TokenInitial: "GM"}).DisplayNumber(); got != "GM-101" {
		t.Fatalf("expected GM-101, got %s", got)
	}
	if got := (Token{Number: 102}).DisplayNumber(); got != "102" {
		t.Fatalf("expected 102, got %s", got)
	}
}

func TestCallTimePrefersRecall(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	recall := start.Add(45 * time.Second)
	token := Token{VisitStartTime: &start}
	if !token.CallTime().Equal(start) {
		t.Fatalf("expected visit start as call time")
	}
	token.LastRecalledTimestamp = &recall
	if !token.CallTime().Equal(recall) {
		t.Fatalf("expected recall time as call time")
	}
}

func TestSnapshotCloneIsIndependent(t *testing.T) {
	snap := Snapshot{
		Clinics: []Clinic{{ID: "c1", Specialties: []string{"Cardiology"}}},
		Groups:  []ClinicGroup{{ID: "g1", DoctorIDs: []string{"d1"}}},
	}
	clone := snap.Clone()
	clone.Clinics[0].Specialties[0] = "Dermatology"
	clone.Groups[0].DoctorIDs[0] = "d2"

	if snap.Clinics[0].Specialties[0] != "Cardiology" || snap.Groups[0].DoctorIDs[0] != "d1" {
		t.Fatalf("clone shares backing arrays with source")
	}
}
