package domain

import "strings"

// Address is embedded into vendor and order rows with a column prefix.
type Address struct {
	Name    string `gorm:"size:255" json:"name,omitempty"`
	Street1 string `gorm:"size:255" json:"street1"`
	Street2 string `gorm:"size:255" json:"street2,omitempty"`
	City    string `gorm:"size:128" json:"city"`
	State   string `gorm:"size:64" json:"state"`
	Zip     string `gorm:"size:32" json:"zip"`
	Country string `gorm:"size:8" json:"country"`
	Phone   string `gorm:"size:64" json:"phone,omitempty"`
	Email   string `gorm:"size:255" json:"email,omitempty"`
}

// MissingFields reports which of the fields a carrier needs are blank.
func (a Address) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(a.Street1) == "" {
		missing = append(missing, "street")
	}
	if strings.TrimSpace(a.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(a.State) == "" {
		missing = append(missing, "state")
	}
	if strings.TrimSpace(a.Zip) == "" {
		missing = append(missing, "zip")
	}
	return missing
}

func (a Address) CountryOrDefault() string {
	if c := strings.TrimSpace(a.Country); c != "" {
		return strings.ToUpper(c)
	}
	return "US"
}
