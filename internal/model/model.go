// Package model содержит доменные сущности сервиса донорства крови.
package model

import "time"

// Role описывает вид участника системы.
type Role string

const (
	RoleDonor              Role = "donor"
	RoleMedicalInstitution Role = "medical_institution"
)

// Valid сообщает, является ли роль одной из известных.
func (r Role) Valid() bool {
	return r == RoleDonor || r == RoleMedicalInstitution
}

// BloodType описывает группу крови с резус-фактором.
type BloodType string

const (
	BloodTypeAPos  BloodType = "A+"
	BloodTypeANeg  BloodType = "A-"
	BloodTypeBPos  BloodType = "B+"
	BloodTypeBNeg  BloodType = "B-"
	BloodTypeABPos BloodType = "AB+"
	BloodTypeABNeg BloodType = "AB-"
	BloodTypeOPos  BloodType = "O+"
	BloodTypeONeg  BloodType = "O-"
)

// BloodTypes перечисляет все допустимые группы крови.
var BloodTypes = []BloodType{
	BloodTypeAPos, BloodTypeANeg,
	BloodTypeBPos, BloodTypeBNeg,
	BloodTypeABPos, BloodTypeABNeg,
	BloodTypeOPos, BloodTypeONeg,
}

// Valid сообщает, является ли группа крови одной из известных.
func (b BloodType) Valid() bool {
	for _, v := range BloodTypes {
		if b == v {
			return true
		}
	}
	return false
}

// User представляет зарегистрированного участника: донора или медицинское учреждение.
type User struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Email     string    `bson:"email" json:"email"`
	Phone     string    `bson:"phone,omitempty" json:"phone,omitempty"`
	Role      Role      `bson:"role" json:"role"`
	BloodType BloodType `bson:"blood_type,omitempty" json:"bloodType,omitempty"`
	Location  *GeoPoint `bson:"location,omitempty" json:"location,omitempty"`
	Available bool      `bson:"available" json:"available"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// Summary возвращает краткие сведения о пользователе для вложения в ответы.
func (u User) Summary() UserSummary {
	return UserSummary{
		ID:        u.ID,
		Name:      u.Name,
		Role:      u.Role,
		BloodType: u.BloodType,
	}
}

// UserSummary содержит публичные поля пользователя.
type UserSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	BloodType BloodType `json:"bloodType,omitempty"`
}

// Principal описывает аутентифицированного участника, от имени которого выполняется операция.
type Principal struct {
	UserID string
	Role   Role
}
