// Package audit records who did what. Writing is fire-and-forget: a failed
// audit write is logged and never fails the action that caused it.
package audit

import (
	"log/slog"

	"servotv/internal/db"
)

type ActorType string

const (
	ActorAdmin    ActorType = "admin"
	ActorReseller ActorType = "reseller"
	ActorUser     ActorType = "user"
)

// Actor is a tagged identity instead of a bare (string, id) pair, so call
// sites cannot record an actor type the log schema does not know.
type Actor struct {
	Type ActorType
	ID   string
}

func Admin(id string) Actor    { return Actor{Type: ActorAdmin, ID: id} }
func Reseller(id string) Actor { return Actor{Type: ActorReseller, ID: id} }
func User(id string) Actor     { return Actor{Type: ActorUser, ID: id} }

type Entry struct {
	Actor        Actor
	Action       string
	Description  string
	ResourceType string
	ResourceID   string
	IPAddress    string
}

type Recorder struct {
	repo *db.AuditRepository
}

func NewRecorder(repo *db.AuditRepository) *Recorder {
	return &Recorder{repo: repo}
}

func (r *Recorder) Record(e Entry) {
	err := r.repo.Insert(db.AuditRecord{
		ActorType:    string(e.Actor.Type),
		ActorID:      e.Actor.ID,
		Action:       e.Action,
		Description:  e.Description,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		IPAddress:    e.IPAddress,
	})
	if err != nil {
		slog.Error("error writing audit record", "action", e.Action, "actor", e.Actor.Type, "error", err)
	}
}
