package domain

// SearchRequest asks the Driver service to find a driver for a pending ride.
type SearchRequest struct {
	RideID string `json:"rideId"`
}

// DriverFound reports the driver matched to a ride.
type DriverFound struct {
	DriverID  int64  `json:"id"`
	RideID    string `json:"rideId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Car       *Car   `json:"carDto,omitempty"`
}

// DriverNotFound reports that no driver was available for a ride.
type DriverNotFound struct {
	RideID string `json:"rideId"`
}
