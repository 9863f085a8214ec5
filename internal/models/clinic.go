package models

type Clinic struct {
	ID          string   `json:"id"`
	Name        string   `json:"name" validate:"required"`
	Phone       string   `json:"phone"`
	Email       string   `json:"email" validate:"omitempty,email"`
	Address     string   `json:"address"`
	City        string   `json:"city"`
	State       string   `json:"state"`
	Pincode     string   `json:"pincode"`
	Specialties []string `json:"specialties"`
	AdminID     string   `json:"admin_id"`
	Logo        string   `json:"logo,omitempty"`
}

type Cabin struct {
	ID              string `json:"id"`
	Name            string `json:"name" validate:"required"`
	ClinicID        string `json:"clinic_id" validate:"required"`
	CurrentDoctorID string `json:"current_doctor_id,omitempty"`
}

type ClinicGroup struct {
	ID           string   `json:"id"`
	Name         string   `json:"name" validate:"required"`
	ClinicID     string   `json:"clinic_id" validate:"required"`
	TokenInitial string   `json:"token_initial,omitempty" validate:"omitempty,max=3,alphanum,uppercase"`
	DoctorIDs    []string `json:"doctor_ids"`
	AssistantIDs []string `json:"assistant_ids"`
	ScreenIDs    []string `json:"screen_ids"`
	CabinIDs     []string `json:"cabin_ids"`
	FormID       string   `json:"form_id,omitempty"`
	FormTitle    string   `json:"form_title,omitempty"`
	FormFields   []string `json:"form_fields,omitempty"`
}

// HasMember reports whether the user is assigned to the group in any capacity.
func (g ClinicGroup) HasMember(userID string) bool {
	return containsID(g.DoctorIDs, userID) || containsID(g.AssistantIDs, userID) || containsID(g.ScreenIDs, userID)
}

func (g ClinicGroup) HasScreen(userID string) bool {
	return containsID(g.ScreenIDs, userID)
}

func (g ClinicGroup) HasCabin(cabinID string) bool {
	return containsID(g.CabinIDs, cabinID)
}

type RegistrationForm struct {
	ID        string   `json:"id"`
	Name      string   `json:"name" validate:"required"`
	ClinicID  string   `json:"clinic_id" validate:"required"`
	Fields    []string `json:"fields"`
	QRCodeURL string   `json:"qr_code_url"`
}

type Specialty struct {
	ID        string `json:"id"`
	Name      string `json:"name" validate:"required"`
	ForClinic bool   `json:"for_clinic"`
	ForDoctor bool   `json:"for_doctor"`
}

func containsID(values []string, value string) bool {
	for _, item := range values {
		if item == value {
			return true
		}
	}
	return false
}
