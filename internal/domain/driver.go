package domain

// Car is the vehicle registered to a driver.
type Car struct {
	DriverID int64  `json:"driverId"`
	Model    string `json:"model"`
	Colour   string `json:"colour"`
	Number   string `json:"number"`
}

// Driver is the driver profile owned by the Driver service.
type Driver struct {
	ID        int64   `json:"id"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Rating    float64 `json:"rating"`
	Available bool    `json:"available"`
	Car       *Car    `json:"carDto,omitempty"`
}
