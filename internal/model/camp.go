package model

import "time"

// BloodCamp описывает запланированную акцию по сдаче крови.
type BloodCamp struct {
	ID            string    `bson:"_id" json:"id"`
	Name          string    `bson:"name" json:"name"`
	Description   string    `bson:"description,omitempty" json:"description,omitempty"`
	Date          string    `bson:"date" json:"date"`
	StartTime     string    `bson:"start_time" json:"startTime"`
	EndTime       string    `bson:"end_time" json:"endTime"`
	Address       string    `bson:"address" json:"address"`
	City          string    `bson:"city" json:"city"`
	State         string    `bson:"state,omitempty" json:"state,omitempty"`
	ContactNumber string    `bson:"contact_number" json:"contactNumber"`
	Email         string    `bson:"email,omitempty" json:"email,omitempty"`
	Active        bool      `bson:"active" json:"active"`
	CreatedBy     string    `bson:"created_by" json:"createdBy"`
	CreatedAt     time.Time `bson:"created_at" json:"createdAt"`
}

// CampDonation фиксирует сдачу крови донором на акции.
// BloodType копируется из профиля в момент донации и далее не меняется.
type CampDonation struct {
	ID        string       `bson:"_id" json:"id"`
	CampID    string       `bson:"camp_id" json:"campId"`
	DonorID   string       `bson:"donor_id" json:"donorId"`
	BloodType BloodType    `bson:"blood_type" json:"bloodType"`
	DonatedAt time.Time    `bson:"donated_at" json:"donatedAt"`
	Donor     *UserSummary `bson:"-" json:"donor,omitempty"`
}

// BloodTypeCount содержит количество донаций одной группы крови.
type BloodTypeCount struct {
	BloodType BloodType `bson:"_id" json:"bloodType"`
	Units     int       `bson:"units" json:"units"`
}

// DonationSource различает два журнала донаций.
type DonationSource string

const (
	DonationSourceRequest DonationSource = "request"
	DonationSourceCamp    DonationSource = "camp"
)
