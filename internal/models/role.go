package models

type Role string

const (
	RoleUser       Role = "user"
	RoleSpecialist Role = "specialist"
	RoleAdmin      Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleSpecialist, RoleAdmin:
		return true
	}
	return false
}

type RoleSet struct {
	Roles        []Role `json:"roles"`
	IsUser       bool   `json:"is_user"`
	IsSpecialist bool   `json:"is_specialist"`
	IsAdmin      bool   `json:"is_admin"`
}

func NewRoleSet(roles []Role) RoleSet {
	set := RoleSet{Roles: roles}
	for _, r := range roles {
		switch r {
		case RoleUser:
			set.IsUser = true
		case RoleSpecialist:
			set.IsSpecialist = true
		case RoleAdmin:
			set.IsAdmin = true
		}
	}
	if set.Roles == nil {
		set.Roles = []Role{}
	}
	return set
}

// CanModerate reports whether the holder may use the specialist/admin panel.
func (s RoleSet) CanModerate() bool {
	return s.IsSpecialist || s.IsAdmin
}
