package domain

// ActorKind tags who is calling.
type ActorKind string

const (
	ActorClient          ActorKind = "client"
	ActorServiceProvider ActorKind = "service_provider"
)

// Valid reports whether k is a known actor kind.
func (k ActorKind) Valid() bool {
	return k == ActorClient || k == ActorServiceProvider
}

// Actor is a resolved caller. Handlers branch on Kind instead of looking
// the id up in two separate tables.
type Actor struct {
	ID        string    `json:"id"`
	Kind      ActorKind `json:"kind" enum:"client,service_provider"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt string    `json:"created_at" format:"date-time"`
}

func (a Actor) Client() bool          { return a.Kind == ActorClient }
func (a Actor) ServiceProvider() bool { return a.Kind == ActorServiceProvider }
