package models

import (
	"encoding/json"
	"sort"
)

const (
	FieldName   = "name"
	FieldPhone  = "phone"
	FieldEmail  = "email"
	FieldAge    = "age"
	FieldGender = "gender"
	FieldNotes  = "notes"
)

// FieldOptions lists the registration form fields in display order.
var FieldOptions = []FieldOption{
	{ID: FieldName, Label: "Patient Name"},
	{ID: FieldPhone, Label: "Phone Number"},
	{ID: FieldEmail, Label: "Email Address"},
	{ID: FieldAge, Label: "Age"},
	{ID: FieldGender, Label: "Gender"},
}

type FieldOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

func FieldIDs() []string {
	ids := make([]string, 0, len(FieldOptions))
	for _, field := range FieldOptions {
		ids = append(ids, field.ID)
	}
	return ids
}

// PatientData holds the demographic snapshot captured at registration.
// On the wire it is a flat string map; keys other than the named ones
// survive in Extra.
type PatientData struct {
	Phone  string
	Email  string
	Age    string
	Gender string
	Notes  string
	Extra  map[string]string
}

func PatientDataFromMap(values map[string]string) PatientData {
	var data PatientData
	for key, value := range values {
		switch key {
		case FieldPhone:
			data.Phone = value
		case FieldEmail:
			data.Email = value
		case FieldAge:
			data.Age = value
		case FieldGender:
			data.Gender = value
		case FieldNotes:
			data.Notes = value
		default:
			if data.Extra == nil {
				data.Extra = make(map[string]string)
			}
			data.Extra[key] = value
		}
	}
	return data
}

func (p PatientData) Map() map[string]string {
	values := make(map[string]string, len(p.Extra)+5)
	for key, value := range p.Extra {
		values[key] = value
	}
	setIfPresent(values, FieldPhone, p.Phone)
	setIfPresent(values, FieldEmail, p.Email)
	setIfPresent(values, FieldAge, p.Age)
	setIfPresent(values, FieldGender, p.Gender)
	setIfPresent(values, FieldNotes, p.Notes)
	return values
}

func (p PatientData) Get(key string) string {
	return p.Map()[key]
}

// Keys returns the populated keys in sorted order.
func (p PatientData) Keys() []string {
	values := p.Map()
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (p PatientData) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Map())
}

func (p *PatientData) UnmarshalJSON(data []byte) error {
	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*p = PatientDataFromMap(values)
	return nil
}

func setIfPresent(values map[string]string, key, value string) {
	if value != "" {
		values[key] = value
	}
}
