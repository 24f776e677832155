package model

import "time"

// RequestStatus описывает состояние запроса на кровь.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusAccepted  RequestStatus = "accepted"
	RequestStatusFulfilled RequestStatus = "fulfilled"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// Open сообщает, может ли запрос ещё принимать донации.
func (s RequestStatus) Open() bool {
	return s == RequestStatusPending || s == RequestStatusAccepted
}

// Urgency описывает срочность запроса.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Valid сообщает, является ли срочность одной из известных.
func (u Urgency) Valid() bool {
	return u == UrgencyLow || u == UrgencyMedium || u == UrgencyHigh
}

// DonationEvent фиксирует вклад одного донора в запрос. После записи не изменяется.
type DonationEvent struct {
	DonorID      string       `bson:"donor_id" json:"donorId"`
	DonorRole    Role         `bson:"donor_role" json:"donorRole"`
	UnitsDonated int          `bson:"units_donated" json:"unitsDonated"`
	DonatedAt    time.Time    `bson:"donated_at" json:"donatedAt"`
	Donor        *UserSummary `bson:"-" json:"donor,omitempty"`
}

// Request описывает запрос на кровь и учёт полученных единиц.
type Request struct {
	ID            string          `bson:"_id" json:"id"`
	RequesterID   string          `bson:"requester_id" json:"requesterId"`
	RequesterRole Role            `bson:"requester_role" json:"requesterRole"`
	BloodType     BloodType       `bson:"blood_type" json:"bloodType"`
	TotalUnits    int             `bson:"total_units" json:"totalUnits"`
	UnitsLeft     int             `bson:"units_left" json:"unitsLeft"`
	Location      GeoPoint        `bson:"location" json:"location"`
	MaxDistanceKm float64         `bson:"max_distance_km" json:"maxDistanceKm"`
	Urgency       Urgency         `bson:"urgency" json:"urgency"`
	Notes         string          `bson:"notes,omitempty" json:"notes,omitempty"`
	HospitalName  string          `bson:"hospital_name,omitempty" json:"hospitalName,omitempty"`
	Status        RequestStatus   `bson:"status" json:"status"`
	Donations     []DonationEvent `bson:"donations" json:"donations"`
	Version       int64           `bson:"version" json:"version"`
	CreatedAt     time.Time       `bson:"created_at" json:"createdAt"`
	AcceptedAt    *time.Time      `bson:"accepted_at,omitempty" json:"acceptedAt,omitempty"`
	FulfilledAt   *time.Time      `bson:"fulfilled_at,omitempty" json:"fulfilledAt,omitempty"`
	CancelledAt   *time.Time      `bson:"cancelled_at,omitempty" json:"cancelledAt,omitempty"`
}

// HasDonor сообщает, присутствует ли донор среди донаций запроса.
func (r *Request) HasDonor(donorID string) bool {
	for _, d := range r.Donations {
		if d.DonorID == donorID {
			return true
		}
	}
	return false
}

// DonatedUnits возвращает сумму единиц по всем донациям.
func (r *Request) DonatedUnits() int {
	sum := 0
	for _, d := range r.Donations {
		sum += d.UnitsDonated
	}
	return sum
}

// RequestTransition описывает условное изменение запроса: ожидаемую версию и новое состояние.
// Хранилище применяет его только если версия записи совпадает с ExpectedVersion.
type RequestTransition struct {
	ExpectedVersion int64
	Status          RequestStatus
	Donation        *DonationEvent
	AcceptedAt      *time.Time
	FulfilledAt     *time.Time
	CancelledAt     *time.Time
}

// DonorMatch описывает донора-кандидата с расстоянием до точки запроса.
type DonorMatch struct {
	User       User    `json:"user"`
	DistanceKm float64 `json:"distanceKm"`
}

// RequestMatch описывает открытый запрос с расстоянием до донора.
type RequestMatch struct {
	Request    Request `json:"request"`
	DistanceKm float64 `json:"distanceKm"`
}
