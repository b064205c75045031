package sheets

// Unit is one row of the units sheet. Field order mirrors the 30-column
// layout of the spreadsheet; column A is reserved.
type Unit struct {
	ID              int    `json:"id,omitempty"`
	Term            string `json:"term"`
	Permission      string `json:"permission"`
	Pictures        string `json:"pictures"`
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	Address         string `json:"address"`
	Apartment       string `json:"apartment"`
	Neighborhood    string `json:"neighborhood"`
	Town            string `json:"town"`
	AppointmentType string `json:"appointmentType"`
	AppointmentTime string `json:"appointmentTime"`
	Notes           string `json:"notes"`
	RentSale        string `json:"rentSale"`
	Type            string `json:"type"`
	PropertyContact string `json:"propertyContact"`
	Email           string `json:"email"`
	Website         string `json:"website"`
	Rent            string `json:"rent"`
	LeaseTerm       string `json:"leaseTerm"`
	Utilities       string `json:"utilities"`
	Sqft            string `json:"sqft"`
	Bedroom         string `json:"bedroom"`
	Bath            string `json:"bath"`
	Appliances      string `json:"appliances"`
	Amenities       string `json:"amenities"`
	Pets            string `json:"pets"`
	Posted          string `json:"posted"`
	Commission      string `json:"commission"`
	UnitID          string `json:"unitId"`
}

// Tenant is one row of the tenants sheet.
type Tenant struct {
	ID    int    `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Unit  string `json:"unit"`
}

func cell(row []interface{}, i int) string {
	if i >= len(row) {
		return ""
	}
	if s, ok := row[i].(string); ok {
		return s
	}
	return ""
}

func unitFromRow(row []interface{}) Unit {
	return Unit{
		Term:            cell(row, 1),
		Permission:      cell(row, 2),
		Pictures:        cell(row, 3),
		Name:            cell(row, 4),
		Phone:           cell(row, 5),
		Address:         cell(row, 6),
		Apartment:       cell(row, 7),
		Neighborhood:    cell(row, 8),
		Town:            cell(row, 9),
		AppointmentType: cell(row, 10),
		AppointmentTime: cell(row, 11),
		Notes:           cell(row, 12),
		RentSale:        cell(row, 13),
		Type:            cell(row, 14),
		PropertyContact: cell(row, 15),
		Email:           cell(row, 16),
		Website:         cell(row, 17),
		Rent:            cell(row, 18),
		LeaseTerm:       cell(row, 19),
		Utilities:       cell(row, 20),
		Sqft:            cell(row, 21),
		Bedroom:         cell(row, 22),
		Bath:            cell(row, 23),
		Appliances:      cell(row, 24),
		Amenities:       cell(row, 25),
		Pets:            cell(row, 26),
		Posted:          cell(row, 27),
		Commission:      cell(row, 28),
		UnitID:          cell(row, 29),
	}
}

func (u Unit) row() []interface{} {
	return []interface{}{
		"", u.Term, u.Permission, u.Pictures, u.Name, u.Phone, u.Address,
		u.Apartment, u.Neighborhood, u.Town, u.AppointmentType,
		u.AppointmentTime, u.Notes, u.RentSale, u.Type, u.PropertyContact,
		u.Email, u.Website, u.Rent, u.LeaseTerm, u.Utilities, u.Sqft,
		u.Bedroom, u.Bath, u.Appliances, u.Amenities, u.Pets, u.Posted,
		u.Commission, u.UnitID,
	}
}

func tenantFromRow(row []interface{}) Tenant {
	return Tenant{
		Name:  cell(row, 1),
		Email: cell(row, 2),
		Phone: cell(row, 3),
		Unit:  cell(row, 4),
	}
}

func (t Tenant) row() []interface{} {
	return []interface{}{"", t.Name, t.Email, t.Phone, t.Unit}
}
