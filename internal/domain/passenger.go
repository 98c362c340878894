package domain

// BankCard is a payment card registered by a passenger.
type BankCard struct {
	ID          int64   `json:"id"`
	Number      string  `json:"number"`
	Balance     float64 `json:"balance"`
	PassengerID int64   `json:"passengerId"`
}

// Passenger is the passenger profile owned by the Passenger service.
type Passenger struct {
	ID        int64      `json:"id"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	Rating    float64    `json:"rating"`
	BankCards []BankCard `json:"bankCards"`
}

// BankCard returns the passenger's card with the given id.
func (p *Passenger) BankCard(id int64) (*BankCard, bool) {
	for i := range p.BankCards {
		if p.BankCards[i].ID == id {
			return &p.BankCards[i], true
		}
	}
	return nil, false
}
