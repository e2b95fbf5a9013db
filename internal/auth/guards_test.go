package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hookrelay.io/internal/apierr"
	"hookrelay.io/internal/apps"
	"hookrelay.io/internal/envelope"
	"hookrelay.io/internal/ids"
)

type finderFunc func(ctx context.Context, orgID ids.OrganizationID, idOrUID ids.ApplicationIDOrUID) (*apps.Application, error)

func (f finderFunc) FindApp(ctx context.Context, orgID ids.OrganizationID, idOrUID ids.ApplicationIDOrUID) (*apps.Application, error) {
	return f(ctx, orgID, idOrUID)
}

type guardFixture struct {
	tokens *Tokens
	store  *apps.InMemory
	orgA   ids.OrganizationID
	orgB   ids.OrganizationID
	appA1  *apps.Application
	appA2  *apps.Application
	appB1  *apps.Application
}

func newGuardFixture(t *testing.T) guardFixture {
	t.Helper()
	ctx := context.Background()
	f := guardFixture{
		tokens: newTestTokens(t, testSecret),
		store:  apps.NewInMemory(envelope.NewNoop()),
		orgA:   ids.NewOrganizationID(),
		orgB:   ids.NewOrganizationID(),
	}
	f.appA1 = &apps.Application{OrgID: f.orgA, Name: "a1", UID: "first"}
	f.appA2 = &apps.Application{OrgID: f.orgA, Name: "a2", UID: "second"}
	f.appB1 = &apps.Application{OrgID: f.orgB, Name: "b1", UID: "first"}
	for _, app := range []*apps.Application{f.appA1, f.appA2, f.appB1} {
		require.NoError(t, f.store.Create(ctx, app))
	}
	return f
}

func (f guardFixture) orgToken(t *testing.T, org ids.OrganizationID) string {
	t.Helper()
	token, err := f.tokens.GenerateOrgToken(org)
	require.NoError(t, err)
	return token
}

func (f guardFixture) appToken(t *testing.T, app *apps.Application) string {
	t.Helper()
	token, err := f.tokens.GenerateAppToken(app.OrgID, app.ID)
	require.NoError(t, err)
	return token
}

func appRequest(token, appID string) Request {
	return Request{Token: token, AppID: appID, HasAppID: true}
}

func TestOrganizationGuard(t *testing.T) {
	f := newGuardFixture(t)
	g := NewOrganizationGuard(f.tokens)

	authz, err := g.Authorize(context.Background(), Request{Token: f.orgToken(t, f.orgA)})
	require.NoError(t, err)
	assert.Equal(t, f.orgA, authz.Permissions.OrgID())
	assert.Nil(t, authz.App)

	_, err = g.Authorize(context.Background(), Request{Token: f.appToken(t, f.appA1)})
	assert.ErrorIs(t, err, apierr.ErrPermissionDenied)

	_, err = g.Authorize(context.Background(), Request{Token: "garbage"})
	assert.ErrorIs(t, err, apierr.ErrUnauthorized)
}

func TestOrganizationAppGuard(t *testing.T) {
	f := newGuardFixture(t)
	g := NewOrganizationAppGuard(f.tokens, f.store)
	ctx := context.Background()

	authz, err := g.Authorize(ctx, appRequest(f.orgToken(t, f.orgA), string(f.appA1.ID)))
	require.NoError(t, err)
	assert.Equal(t, f.appA1.ID, authz.App.ID)

	authz, err = g.Authorize(ctx, appRequest(f.orgToken(t, f.orgA), "second"))
	require.NoError(t, err)
	assert.Equal(t, f.appA2.ID, authz.App.ID)

	// uid "first" exists in both orgs; each org sees its own
	authz, err = g.Authorize(ctx, appRequest(f.orgToken(t, f.orgB), "first"))
	require.NoError(t, err)
	assert.Equal(t, f.appB1.ID, authz.App.ID)

	_, err = g.Authorize(ctx, appRequest(f.orgToken(t, f.orgB), string(f.appA1.ID)))
	assert.ErrorIs(t, err, apierr.ErrNotFound)

	_, err = g.Authorize(ctx, appRequest(f.appToken(t, f.appA1), string(f.appA1.ID)))
	assert.ErrorIs(t, err, apierr.ErrPermissionDenied)

	_, err = g.Authorize(ctx, appRequest(f.orgToken(t, f.orgA), "bad id!"))
	assert.ErrorIs(t, err, apierr.ErrBadRequest)

	_, err = g.Authorize(ctx, Request{Token: f.orgToken(t, f.orgA)})
	assert.ErrorIs(t, err, apierr.ErrInternal)
}

func TestApplicationGuard(t *testing.T) {
	f := newGuardFixture(t)
	g := NewApplicationGuard(f.tokens, f.store)
	ctx := context.Background()

	// organization tokens reach any app of their org
	authz, err := g.Authorize(ctx, appRequest(f.orgToken(t, f.orgA), string(f.appA2.ID)))
	require.NoError(t, err)
	assert.Equal(t, f.appA2.ID, authz.App.ID)

	// app token reaches its own app by id and by uid
	authz, err = g.Authorize(ctx, appRequest(f.appToken(t, f.appA1), string(f.appA1.ID)))
	require.NoError(t, err)
	assert.Equal(t, f.appA1.ID, authz.App.ID)
	assert.Equal(t, KeyTypeApplication, authz.Permissions.Type())

	_, err = g.Authorize(ctx, appRequest(f.appToken(t, f.appA1), "first"))
	require.NoError(t, err)

	// same org, different app: not found, never permission denied
	_, err = g.Authorize(ctx, appRequest(f.appToken(t, f.appA1), string(f.appA2.ID)))
	require.ErrorIs(t, err, apierr.ErrNotFound)
	assert.NotErrorIs(t, err, apierr.ErrPermissionDenied)

	// different org
	_, err = g.Authorize(ctx, appRequest(f.appToken(t, f.appA1), string(f.appB1.ID)))
	assert.ErrorIs(t, err, apierr.ErrNotFound)

	// nonexistent app looks the same as a foreign one
	_, err = g.Authorize(ctx, appRequest(f.appToken(t, f.appA1), string(ids.NewApplicationID())))
	assert.ErrorIs(t, err, apierr.ErrNotFound)
}

func TestGuardsPropagateFinderErrors(t *testing.T) {
	f := newGuardFixture(t)
	boom := errors.New("storage unavailable")
	finder := finderFunc(func(context.Context, ids.OrganizationID, ids.ApplicationIDOrUID) (*apps.Application, error) {
		return nil, boom
	})

	for name, g := range map[string]Guard{
		"org+app": NewOrganizationAppGuard(f.tokens, finder),
		"app":     NewApplicationGuard(f.tokens, finder),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := g.Authorize(context.Background(), appRequest(f.orgToken(t, f.orgA), "first"))
			assert.Same(t, boom, err)
		})
	}
}

func TestGuardsPassContextToFinder(t *testing.T) {
	f := newGuardFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewApplicationGuard(f.tokens, f.store)
	_, err := g.Authorize(ctx, appRequest(f.orgToken(t, f.orgA), "first"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcreteScenario(t *testing.T) {
	tokens := newTestTokens(t, "0123456789abcdef0123456789abcdef")
	org := ids.OrganizationID("org_AAAAAAAAAAAAAAAAAAAAAAAAAA")

	token, err := tokens.GenerateOrgToken(org)
	require.NoError(t, err)

	perms, err := tokens.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, KeyTypeOrganization, perms.Type())
	assert.Equal(t, org, perms.OrgID())

	g := NewOrganizationAppGuard(tokens, apps.NewInMemory(envelope.NewNoop()))
	_, err = g.Authorize(context.Background(), appRequest(token, string(ids.NewApplicationID())))
	assert.ErrorIs(t, err, apierr.ErrNotFound)
}
