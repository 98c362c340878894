package domain

import "time"

// PromoCode is a named discount valid within a time window.
// Discount is the multiplier applied to the base fare (0.8 = 20% off).
type PromoCode struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Discount float64   `json:"discount"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// ActiveAt reports whether the code can be applied at t.
func (p *PromoCode) ActiveAt(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}
