package domain

// ActorKind distinguishes who initiated an operation.
type ActorKind string

const (
	ActorKindUser   ActorKind = "user"
	ActorKindStaff  ActorKind = "staff"
	ActorKindSystem ActorKind = "system"
)

// Actor identifies the initiator of a ticket operation.
type Actor struct {
	ID   string
	Kind ActorKind
}

// SystemActor is the initiator of sweep-driven transitions.
var SystemActor = Actor{ID: "system", Kind: ActorKindSystem}
