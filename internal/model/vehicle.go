package model

// Vehicle describes the vehicle a quote or work order refers to. On a quote
// it is the descriptor entered by staff; on a work order it is an immutable
// snapshot copied at approval time.
type Vehicle struct {
	Brand   string `gorm:"size:100;not null" json:"brand"`
	Model   string `gorm:"size:100;not null" json:"model"`
	Year    int    `gorm:"not null" json:"year"`
	Plate   string `gorm:"size:32;not null" json:"plate"`
	Mileage int    `json:"mileage"`
}
