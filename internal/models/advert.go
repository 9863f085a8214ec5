package models

import "time"

type Advertiser struct {
	ID            string `json:"id"`
	CompanyName   string `json:"company_name" validate:"required"`
	ContactPerson string `json:"contact_person" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	Status        string `json:"status" validate:"omitempty,oneof=active inactive"`
}

const (
	AdvertiserActive   = "active"
	AdvertiserInactive = "inactive"
)

type AdVideo struct {
	ID           string     `json:"id"`
	Title        string     `json:"title" validate:"required"`
	URL          string     `json:"url" validate:"required"`
	Type         string     `json:"type" validate:"required,oneof=youtube local b2"`
	AdvertiserID string     `json:"advertiser_id" validate:"required"`
	Stats        VideoStats `json:"stats"`
}

type VideoStats struct {
	Views      int        `json:"views"`
	LastViewed *time.Time `json:"last_viewed,omitempty"`
}

const (
	VideoYouTube = "youtube"
	VideoLocal   = "local"
	VideoB2      = "b2"
)
