package profile

import "time"

// Profile is the patient document stored per identity.
type Profile struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	Phone            string     `json:"phone"`
	Age              string     `json:"age"`
	BloodType        string     `json:"bloodType"`
	EmergencyContact string     `json:"emergencyContact"`
	EmergencyPhone   string     `json:"emergencyPhone"`
	Allergies        []string   `json:"allergies"`
	Conditions       []string   `json:"conditions"`
	Medications      []string   `json:"medications"`
	Location         *Location  `json:"location"`
	CreatedAt        *time.Time `json:"createdAt,omitempty"`
	UpdatedAt        *time.Time `json:"updatedAt,omitempty"`
}

// Location is the last-known position stored on a profile.
type Location struct {
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Address   string     `json:"address"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Fields are the values for a full profile write. Zero values are written
// as empty strings, empty lists and a null location.
type Fields struct {
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	Phone            string    `json:"phone"`
	Age              string    `json:"age"`
	BloodType        string    `json:"bloodType"`
	EmergencyContact string    `json:"emergencyContact"`
	EmergencyPhone   string    `json:"emergencyPhone"`
	Allergies        []string  `json:"allergies"`
	Conditions       []string  `json:"conditions"`
	Medications      []string  `json:"medications"`
	Location         *Location `json:"location"`
}

// Update is a partial profile change; nil fields are left untouched.
type Update struct {
	Email            *string   `json:"email,omitempty"`
	Name             *string   `json:"name,omitempty"`
	Phone            *string   `json:"phone,omitempty"`
	Age              *string   `json:"age,omitempty"`
	BloodType        *string   `json:"bloodType,omitempty"`
	EmergencyContact *string   `json:"emergencyContact,omitempty"`
	EmergencyPhone   *string   `json:"emergencyPhone,omitempty"`
	Allergies        *[]string `json:"allergies,omitempty"`
	Conditions       *[]string `json:"conditions,omitempty"`
	Medications      *[]string `json:"medications,omitempty"`
	Location         *Location `json:"location,omitempty"`
}

// MedicalData is the medical section of a profile. All six fields are
// written together.
type MedicalData struct {
	BloodType        string   `json:"bloodType"`
	Allergies        []string `json:"allergies"`
	Conditions       []string `json:"conditions"`
	Medications      []string `json:"medications"`
	EmergencyContact string   `json:"emergencyContact"`
	EmergencyPhone   string   `json:"emergencyPhone"`
}

// Diagnostics is the probe document written by Diagnose.
type Diagnostics struct {
	OK bool       `json:"ok"`
	TS *time.Time `json:"ts,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u Update) IsEmpty() bool {
	return len(u.patch()) == 0
}

// Fields returns the update as full-write fields, with unset values zero.
func (u Update) Fields() Fields {
	var f Fields
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setList := func(dst *[]string, src *[]string) {
		if src != nil {
			*dst = *src
		}
	}
	setString(&f.Email, u.Email)
	setString(&f.Name, u.Name)
	setString(&f.Phone, u.Phone)
	setString(&f.Age, u.Age)
	setString(&f.BloodType, u.BloodType)
	setString(&f.EmergencyContact, u.EmergencyContact)
	setString(&f.EmergencyPhone, u.EmergencyPhone)
	setList(&f.Allergies, u.Allergies)
	setList(&f.Conditions, u.Conditions)
	setList(&f.Medications, u.Medications)
	f.Location = u.Location
	return f
}

// patch returns the set fields keyed by document field name.
func (u Update) patch() map[string]interface{} {
	p := map[string]interface{}{}
	putString := func(key string, v *string) {
		if v != nil {
			p[key] = *v
		}
	}
	putList := func(key string, v *[]string) {
		if v != nil {
			p[key] = list(*v)
		}
	}
	putString("email", u.Email)
	putString("name", u.Name)
	putString("phone", u.Phone)
	putString("age", u.Age)
	putString("bloodType", u.BloodType)
	putString("emergencyContact", u.EmergencyContact)
	putString("emergencyPhone", u.EmergencyPhone)
	putList("allergies", u.Allergies)
	putList("conditions", u.Conditions)
	putList("medications", u.Medications)
	if u.Location != nil {
		p["location"] = locationDoc(u.Location)
	}
	return p
}

// fieldNames lists the keys of a patch in a stable order.
func fieldNames(patch map[string]interface{}) []string {
	var names []string
	for _, key := range documentFields {
		if _, ok := patch[key]; ok {
			names = append(names, key)
		}
	}
	return names
}

var documentFields = []string{
	"email", "name", "phone", "age", "bloodType", "emergencyContact",
	"emergencyPhone", "allergies", "conditions", "medications", "location",
}

func list(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func locationDoc(l *Location) interface{} {
	if l == nil {
		return nil
	}
	doc := map[string]interface{}{
		"latitude":  l.Latitude,
		"longitude": l.Longitude,
		"address":   l.Address,
	}
	if l.Timestamp != nil {
		doc["timestamp"] = *l.Timestamp
	}
	return doc
}
