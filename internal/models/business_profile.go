package models

// BusinessProfile is template data for rendered artifacts and email senders
type BusinessProfile struct {
	UserID        int64  `json:"user_id"`
	Name          string `json:"name"`
	Address       string `json:"address"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	LicenseNumber string `json:"license_number"`
	LogoKey       string `json:"logo_key,omitempty"`
}
