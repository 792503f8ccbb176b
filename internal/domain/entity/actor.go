package entity

// Role identifies which kind of actor triggers a mutation
type Role string

const (
	RoleParent Role = "PARENT"
	RoleTutor  Role = "TUTOR"
	RoleAdmin  Role = "ADMIN"
	// RoleSystem is used for cascades and date-driven transitions
	RoleSystem Role = "SYSTEM"
)

var validRoles = map[Role]bool{
	RoleParent: true,
	RoleTutor:  true,
	RoleAdmin:  true,
	RoleSystem: true,
}

// IsValid returns true if the role is one of the known actor roles
func (r Role) IsValid() bool {
	return validRoles[r]
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// Actor is the caller identity supplied by the session layer.
// Role authenticity is not verified here.
type Actor struct {
	Role Role   `json:"role"`
	ID   string `json:"id"`
}

// System returns the actor used for internally triggered transitions
func System() Actor {
	return Actor{Role: RoleSystem, ID: "system"}
}

// EntityType names the kind of record a transition or event refers to
type EntityType string

const (
	EntityRequirement    EntityType = "requirement"
	EntityAssociation    EntityType = "tutor_association"
	EntityDemo           EntityType = "demo_session"
	EntityDemoReschedule EntityType = "demo_reschedule"
	EntityClass          EntityType = "class"
)

// String returns the string representation of the entity type
func (t EntityType) String() string {
	return string(t)
}
