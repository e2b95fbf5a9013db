package apps

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hookrelay.io/internal/envelope"
	"hookrelay.io/internal/ids"
)

func (s *InMemory) rawSecret(appID ids.ApplicationID, name string) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secrets[appID][name]
}

func testCipher(t *testing.T) envelope.Cipher {
	t.Helper()
	var key [envelope.KeySize]byte
	_, err := rand.Read(key[:])
	require.NoError(t, err)
	return envelope.New(key)
}

func TestInMemoryFindIsTenantScoped(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory(envelope.NewNoop())

	orgA, orgB := ids.NewOrganizationID(), ids.NewOrganizationID()
	app := &Application{OrgID: orgA, UID: "billing", Name: "Billing"}
	require.NoError(t, store.Create(ctx, app))
	require.NoError(t, app.ID.Validate())

	got, err := store.FindApp(ctx, orgA, ids.ApplicationIDOrUID(app.ID))
	require.NoError(t, err)
	assert.Equal(t, app.ID, got.ID)

	got, err = store.FindApp(ctx, orgA, "billing")
	require.NoError(t, err)
	assert.Equal(t, app.ID, got.ID)

	_, err = store.FindApp(ctx, orgB, ids.ApplicationIDOrUID(app.ID))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.FindApp(ctx, orgB, "billing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryCreateValidation(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory(envelope.NewNoop())
	org := ids.NewOrganizationID()

	assert.ErrorIs(t, store.Create(ctx, &Application{OrgID: org}), ErrInvalidInput)
	assert.ErrorIs(t, store.Create(ctx, &Application{OrgID: "bad", Name: "x"}), ErrInvalidInput)
	assert.ErrorIs(t, store.Create(ctx, &Application{OrgID: org, Name: "x", UID: "has space"}), ErrInvalidInput)

	require.NoError(t, store.Create(ctx, &Application{OrgID: org, Name: "x", UID: "dup"}))
	assert.ErrorIs(t, store.Create(ctx, &Application{OrgID: org, Name: "y", UID: "dup"}), ErrAlreadyExists)
	// uids are unique per organization only
	assert.NoError(t, store.Create(ctx, &Application{OrgID: ids.NewOrganizationID(), Name: "z", UID: "dup"}))
}

func TestInMemoryListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory(envelope.NewNoop())
	org := ids.NewOrganizationID()

	a := &Application{OrgID: org, Name: "a"}
	b := &Application{OrgID: org, Name: "b"}
	other := &Application{OrgID: ids.NewOrganizationID(), Name: "c"}
	for _, app := range []*Application{a, b, other} {
		require.NoError(t, store.Create(ctx, app))
	}

	list, err := store.List(ctx, org)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	assert.ErrorIs(t, store.Delete(ctx, other.OrgID, a.ID), ErrNotFound)
	require.NoError(t, store.Delete(ctx, org, a.ID))
	_, err = store.FindApp(ctx, org, ids.ApplicationIDOrUID(a.ID))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemorySecretsAreEncrypted(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory(testCipher(t))
	app := &Application{OrgID: ids.NewOrganizationID(), Name: "a"}
	require.NoError(t, store.Create(ctx, app))

	secret := []byte("whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw")
	require.NoError(t, store.PutSecret(ctx, app.ID, "signing", secret))

	raw := store.rawSecret(app.ID, "signing")
	assert.NotContains(t, string(raw), string(secret))
	assert.Len(t, raw, envelope.NonceSize+len(secret)+16)

	got, err := store.GetSecret(ctx, app.ID, "signing")
	require.NoError(t, err)
	assert.Equal(t, secret, got)

	_, err = store.GetSecret(ctx, app.ID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.PutSecret(ctx, ids.NewApplicationID(), "x", nil), ErrNotFound)
}

func TestInMemoryFindHonoursCancellation(t *testing.T) {
	store := NewInMemory(envelope.NewNoop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.FindApp(ctx, ids.NewOrganizationID(), "anything")
	assert.ErrorIs(t, err, context.Canceled)
}

type countingStore struct {
	Store
	finds int
}

func (c *countingStore) FindApp(ctx context.Context, orgID ids.OrganizationID, idOrUID ids.ApplicationIDOrUID) (*Application, error) {
	c.finds++
	return c.Store.FindApp(ctx, orgID, idOrUID)
}

func TestCachedFindApp(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{Store: NewInMemory(envelope.NewNoop())}
	cached := NewCached(backing, 16, time.Minute)

	org := ids.NewOrganizationID()
	app := &Application{OrgID: org, Name: "a", UID: "alpha"}
	require.NoError(t, cached.Create(ctx, app))

	for i := 0; i < 3; i++ {
		got, err := cached.FindApp(ctx, org, "alpha")
		require.NoError(t, err)
		assert.Equal(t, app.ID, got.ID)
	}
	assert.Equal(t, 1, backing.finds)

	// another tenant asking for the same uid never hits the cached entry
	_, err := cached.FindApp(ctx, ids.NewOrganizationID(), "alpha")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, backing.finds)

	require.NoError(t, cached.Delete(ctx, org, app.ID))
	assert.Equal(t, 0, cached.Len())
	_, err = cached.FindApp(ctx, org, "alpha")
	assert.ErrorIs(t, err, ErrNotFound)
}

// pausingStore holds FindApp after the read until release is closed.
type pausingStore struct {
	Store
	read    chan struct{}
	release chan struct{}
}

func (p *pausingStore) FindApp(ctx context.Context, orgID ids.OrganizationID, idOrUID ids.ApplicationIDOrUID) (*Application, error) {
	app, err := p.Store.FindApp(ctx, orgID, idOrUID)
	if p.read != nil {
		close(p.read)
		p.read = nil
		<-p.release
	}
	return app, err
}

func TestCachedDeleteWinsOverInflightLookup(t *testing.T) {
	ctx := context.Background()
	backing := &pausingStore{Store: NewInMemory(envelope.NewNoop())}
	cached := NewCached(backing, 16, time.Minute)

	org := ids.NewOrganizationID()
	app := &Application{OrgID: org, Name: "a"}
	require.NoError(t, cached.Create(ctx, app))

	read := make(chan struct{})
	backing.read, backing.release = read, make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := cached.FindApp(ctx, org, ids.ApplicationIDOrUID(app.ID))
		done <- err
	}()

	<-read
	require.NoError(t, cached.Delete(ctx, org, app.ID))
	close(backing.release)
	require.NoError(t, <-done)

	assert.Equal(t, 0, cached.Len())
	got, err := cached.FindApp(ctx, org, ids.ApplicationIDOrUID(app.ID))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, got)
}
