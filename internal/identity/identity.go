// Package identity gives each learner a stable anonymous id.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"

	"github.com/orbitlearn/orbitvoice/internal/kv"
)

// Key is the storage key holding the user id.
const Key = "user_id"

// User is the resolved learner.
type User struct {
	ID string

	// IsNew is true when the id was generated by this call.
	IsNew bool
}

// Registrar announces a new learner to the backend.
type Registrar interface {
	CreateUser(ctx context.Context, id, name string) error
}

// CreateOrGet returns the stored user id, generating and storing a random
// UUID when none exists or the stored value is not a UUID.
func CreateOrGet(ctx context.Context, store kv.Store) (User, error) {
	data, err := store.Get(ctx, Key)
	switch {
	case err == nil:
		id := strings.TrimSpace(string(data))
		if _, perr := uuid.Parse(id); perr == nil {
			return User{ID: id}, nil
		}
		slog.Warn("identity: discarding malformed user id", "value", id)
	case !errors.Is(err, kv.ErrNotFound):
		return User{}, fmt.Errorf("identity: load: %w", err)
	}

	id := uuid.NewString()
	if err := store.Set(ctx, Key, []byte(id)); err != nil {
		return User{}, fmt.Errorf("identity: save: %w", err)
	}
	return User{ID: id, IsNew: true}, nil
}

// Ensure resolves the learner and, for a newly generated id, registers it
// under a random display name. Registration failures are logged; the id is
// still usable.
func Ensure(ctx context.Context, store kv.Store, reg Registrar) (User, error) {
	u, err := CreateOrGet(ctx, store)
	if err != nil || !u.IsNew || reg == nil {
		return u, err
	}
	name := RandomName()
	if err := reg.CreateUser(ctx, u.ID, name); err != nil {
		slog.Warn("identity: registration failed", "user", u.ID, "err", err)
		return u, nil
	}
	slog.Info("identity: registered learner", "user", u.ID, "name", name)
	return u, nil
}

var (
	firstNames = []string{
		"Orbit", "Nova", "Luna", "Neo", "Zen", "Astro", "Astra", "Vega", "Sol", "Cosmo",
		"Echo", "Lyra", "Sora", "Kairo", "Iris", "Juno", "Cleo", "Theo", "Sage", "Wren",
		"Ezra", "Maya", "Nora", "Rhea", "Zeno", "Comet", "Orion", "Atlas", "Nimbus", "Indigo",
	}
	lastNames = []string{
		"Learner", "Scholar", "Thinker", "Reader", "Writer", "Builder", "Explorer", "Seeker",
		"Dreamer", "Climber", "Engineer", "Designer", "Fox", "Owl", "Falcon", "Otter",
		"Voyager", "Pilot", "Scout", "Guardian", "Sage", "Wizard", "Photon", "Neuron",
	}
)

// RandomName returns a display name such as "Nova Scholar".
func RandomName() string {
	return firstNames[rand.IntN(len(firstNames))] + " " + lastNames[rand.IntN(len(lastNames))]
}
