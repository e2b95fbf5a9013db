package apps

import (
	"context"
	"errors"
	"time"

	"hookrelay.io/internal/ids"
)

var (
	ErrNotFound      = errors.New("apps: not found")
	ErrAlreadyExists = errors.New("apps: already exists")
	ErrInvalidInput  = errors.New("apps: invalid input")
)

// Application is an organization-owned endpoint group that may be addressed
// by its canonical id or by its caller-assigned uid.
type Application struct {
	ID        ids.ApplicationID  `json:"id"`
	OrgID     ids.OrganizationID `json:"-"`
	UID       ids.ApplicationUID `json:"uid,omitempty"`
	Name      string             `json:"name"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Store describes persistence operations on applications. Every lookup is
// scoped to an organization.
type Store interface {
	Create(ctx context.Context, app *Application) error
	FindApp(ctx context.Context, orgID ids.OrganizationID, idOrUID ids.ApplicationIDOrUID) (*Application, error)
	List(ctx context.Context, orgID ids.OrganizationID) ([]*Application, error)
	Delete(ctx context.Context, orgID ids.OrganizationID, appID ids.ApplicationID) error

	// PutSecret and GetSecret store values encrypted at rest.
	PutSecret(ctx context.Context, appID ids.ApplicationID, name string, value []byte) error
	GetSecret(ctx context.Context, appID ids.ApplicationID, name string) ([]byte, error)
}

// Prepare fills defaults and validates app before it is stored.
func Prepare(app *Application, now time.Time) error {
	if app == nil || app.Name == "" {
		return ErrInvalidInput
	}
	if err := app.OrgID.Validate(); err != nil {
		return ErrInvalidInput
	}
	if app.ID == "" {
		app.ID = ids.NewApplicationID()
	}
	if err := app.ID.Validate(); err != nil {
		return ErrInvalidInput
	}
	if app.UID != "" {
		if err := app.UID.Validate(); err != nil {
			return ErrInvalidInput
		}
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now.UTC()
	}
	app.UpdatedAt = now.UTC()
	return nil
}

// Matches reports whether app is named by idOrUID.
func (a *Application) Matches(idOrUID ids.ApplicationIDOrUID) bool {
	v := string(idOrUID)
	return v != "" && (string(a.ID) == v || (a.UID != "" && string(a.UID) == v))
}
