package apps

import (
	"context"
	"sort"
	"sync"
	"time"

	"hookrelay.io/internal/envelope"
	"hookrelay.io/internal/ids"
	"hookrelay.io/internal/obs"
)

// InMemory implements Store with in-process concurrency safety. Secrets are
// held in their encrypted form, as a durable store would hold them.
type InMemory struct {
	mu      sync.RWMutex
	cipher  envelope.Cipher
	now     func() time.Time
	apps    map[ids.ApplicationID]*Application
	secrets map[ids.ApplicationID]map[string][]byte
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory(cipher envelope.Cipher) *InMemory {
	return &InMemory{
		cipher:  cipher,
		now:     time.Now,
		apps:    make(map[ids.ApplicationID]*Application),
		secrets: make(map[ids.ApplicationID]map[string][]byte),
	}
}

func (s *InMemory) Create(ctx context.Context, app *Application) error {
	if err := Prepare(app, s.now()); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[app.ID]; ok {
		return ErrAlreadyExists
	}
	if app.UID != "" {
		for _, existing := range s.apps {
			if existing.OrgID == app.OrgID && existing.UID == app.UID {
				return ErrAlreadyExists
			}
		}
	}
	stored := *app
	s.apps[app.ID] = &stored
	return nil
}

func (s *InMemory) FindApp(ctx context.Context, orgID ids.OrganizationID, idOrUID ids.ApplicationIDOrUID) (*Application, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, app := range s.apps {
		if app.OrgID == orgID && app.Matches(idOrUID) {
			out := *app
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemory) List(ctx context.Context, orgID ids.OrganizationID) ([]*Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*Application
	for _, app := range s.apps {
		if app.OrgID == orgID {
			out := *app
			res = append(res, &out)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *InMemory) Delete(ctx context.Context, orgID ids.OrganizationID, appID ids.ApplicationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[appID]
	if !ok || app.OrgID != orgID {
		return ErrNotFound
	}
	delete(s.apps, appID)
	delete(s.secrets, appID)
	return nil
}

func (s *InMemory) PutSecret(ctx context.Context, appID ids.ApplicationID, name string, value []byte) error {
	if name == "" {
		return ErrInvalidInput
	}
	sealed, err := s.cipher.Encrypt(value)
	obs.ObserveCipher("encrypt", err)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[appID]; !ok {
		return ErrNotFound
	}
	bucket, ok := s.secrets[appID]
	if !ok {
		bucket = make(map[string][]byte)
		s.secrets[appID] = bucket
	}
	bucket[name] = sealed
	return nil
}

func (s *InMemory) GetSecret(ctx context.Context, appID ids.ApplicationID, name string) ([]byte, error) {
	s.mu.RLock()
	sealed, ok := s.secrets[appID][name]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	plain, err := s.cipher.Decrypt(sealed)
	obs.ObserveCipher("decrypt", err)
	return plain, err
}

