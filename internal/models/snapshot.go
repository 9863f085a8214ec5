package models

// Snapshot is the full normalized entity state, or a role-scoped subset of it.
type Snapshot struct {
	Clinics     []Clinic           `json:"clinics"`
	Users       []User             `json:"users"`
	Advertisers []Advertiser       `json:"advertisers"`
	Cabins      []Cabin            `json:"cabins"`
	Forms       []RegistrationForm `json:"forms"`
	Tokens      []Token            `json:"tokens"`
	Videos      []AdVideo          `json:"videos"`
	Groups      []ClinicGroup      `json:"groups"`
	Specialties []Specialty        `json:"specialties"`
}

// Clone returns a copy whose slices can be mutated without touching s.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Clinics:     cloneClinics(s.Clinics),
		Users:       append([]User(nil), s.Users...),
		Advertisers: append([]Advertiser(nil), s.Advertisers...),
		Cabins:      append([]Cabin(nil), s.Cabins...),
		Forms:       cloneForms(s.Forms),
		Tokens:      cloneTokens(s.Tokens),
		Videos:      append([]AdVideo(nil), s.Videos...),
		Groups:      cloneGroups(s.Groups),
		Specialties: append([]Specialty(nil), s.Specialties...),
	}
}

func cloneClinics(in []Clinic) []Clinic {
	out := append([]Clinic(nil), in...)
	for i := range out {
		out[i].Specialties = append([]string(nil), out[i].Specialties...)
	}
	return out
}

func cloneForms(in []RegistrationForm) []RegistrationForm {
	out := append([]RegistrationForm(nil), in...)
	for i := range out {
		out[i].Fields = append([]string(nil), out[i].Fields...)
	}
	return out
}

func cloneTokens(in []Token) []Token {
	out := append([]Token(nil), in...)
	for i := range out {
		out[i].PatientData = PatientDataFromMap(out[i].PatientData.Map())
	}
	return out
}

func cloneGroups(in []ClinicGroup) []ClinicGroup {
	out := append([]ClinicGroup(nil), in...)
	for i := range out {
		out[i].DoctorIDs = append([]string(nil), out[i].DoctorIDs...)
		out[i].AssistantIDs = append([]string(nil), out[i].AssistantIDs...)
		out[i].ScreenIDs = append([]string(nil), out[i].ScreenIDs...)
		out[i].CabinIDs = append([]string(nil), out[i].CabinIDs...)
		out[i].FormFields = append([]string(nil), out[i].FormFields...)
	}
	return out
}
