package auth

import (
	"context"
	"errors"

	"hookrelay.io/internal/apierr"
	"hookrelay.io/internal/apps"
	"hookrelay.io/internal/ids"
)

// Authenticator turns a raw bearer token into Permissions. *Tokens implements it.
type Authenticator interface {
	Authenticate(token string) (Permissions, error)
}

// AppFinder resolves an application by id or uid within one organization.
// A miss is reported as apps.ErrNotFound.
type AppFinder interface {
	FindApp(ctx context.Context, orgID ids.OrganizationID, idOrUID ids.ApplicationIDOrUID) (*apps.Application, error)
}

// Request carries the parts of an inbound call the guards need.
type Request struct {
	Token string
	// AppID is the app_id path parameter; HasAppID is false when the route has none.
	AppID    string
	HasAppID bool
}

// Authorization is the outcome of a successful guard. App is nil for
// OrganizationGuard.
type Authorization struct {
	Permissions Permissions
	App         *apps.Application
}

// Guard authorizes a request.
type Guard interface {
	Authorize(ctx context.Context, req Request) (Authorization, error)
}

// OrganizationGuard admits organization tokens only.
type OrganizationGuard struct {
	auth Authenticator
}

func NewOrganizationGuard(auth Authenticator) OrganizationGuard {
	return OrganizationGuard{auth: auth}
}

func (g OrganizationGuard) Authorize(_ context.Context, req Request) (Authorization, error) {
	perms, err := g.auth.Authenticate(req.Token)
	if err != nil {
		return Authorization{}, err
	}
	switch perms.Type() {
	case KeyTypeOrganization:
		return Authorization{Permissions: perms}, nil
	default:
		return Authorization{}, apierr.PermissionDenied()
	}
}

// OrganizationAppGuard admits organization tokens and resolves the path
// application inside the caller's organization.
type OrganizationAppGuard struct {
	org  OrganizationGuard
	apps AppFinder
}

func NewOrganizationAppGuard(auth Authenticator, finder AppFinder) OrganizationAppGuard {
	return OrganizationAppGuard{org: NewOrganizationGuard(auth), apps: finder}
}

func (g OrganizationAppGuard) Authorize(ctx context.Context, req Request) (Authorization, error) {
	authz, err := g.org.Authorize(ctx, req)
	if err != nil {
		return Authorization{}, err
	}
	app, err := resolveApp(ctx, g.apps, authz.Permissions, req)
	if err != nil {
		return Authorization{}, err
	}
	authz.App = app
	return authz, nil
}

// ApplicationGuard admits both token types. Application tokens are narrowed
// to their own application: any other application, in any organization, is
// reported as not found so existence cannot be probed.
type ApplicationGuard struct {
	auth Authenticator
	apps AppFinder
}

func NewApplicationGuard(auth Authenticator, finder AppFinder) ApplicationGuard {
	return ApplicationGuard{auth: auth, apps: finder}
}

func (g ApplicationGuard) Authorize(ctx context.Context, req Request) (Authorization, error) {
	perms, err := g.auth.Authenticate(req.Token)
	if err != nil {
		return Authorization{}, err
	}
	app, err := resolveApp(ctx, g.apps, perms, req)
	if err != nil {
		return Authorization{}, err
	}
	if permitted, ok := perms.AppID(); ok && permitted != app.ID {
		return Authorization{}, apierr.NotFound()
	}
	return Authorization{Permissions: perms, App: app}, nil
}

var errMissingAppParam = errors.New("auth: app_id path parameter is missing")

func resolveApp(ctx context.Context, finder AppFinder, perms Permissions, req Request) (*apps.Application, error) {
	if !req.HasAppID {
		return nil, apierr.Internal(errMissingAppParam)
	}
	idOrUID := ids.ApplicationIDOrUID(req.AppID)
	if err := idOrUID.Validate(); err != nil {
		return nil, apierr.BadRequest("validation", "`app_id` is not a valid application id or uid")
	}
	app, err := finder.FindApp(ctx, perms.OrgID(), idOrUID)
	if errors.Is(err, apps.ErrNotFound) {
		return nil, apierr.NotFound()
	}
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, apierr.NotFound()
	}
	return app, nil
}
