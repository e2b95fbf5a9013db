package ids

import (
	"errors"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	OrganizationPrefix = "org_"
	ApplicationPrefix  = "app_"

	minPayloadLen = 20
	maxPayloadLen = 32
	maxUIDLen     = 256
)

// Reserved organizations.
const (
	// DefaultOrgID is the organization used when bootstrapping tokens for tooling and tests.
	DefaultOrgID OrganizationID = "org_23rb8YdGqMT0qIzpgGwdXfHirMu"
	// ManagementOrgID is the subject of short-lived management tokens.
	ManagementOrgID OrganizationID = "org_00000000000SvixManagement00"
)

// ErrInvalidFormat reports an identifier that does not have the expected shape.
var ErrInvalidFormat = errors.New("ids: invalid format")

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Validate checks that id is prefix followed by a bounded alphanumeric payload.
func Validate(id, prefix string) error {
	if prefix == "" || !strings.HasPrefix(id, prefix) {
		return ErrInvalidFormat
	}
	payload := id[len(prefix):]
	if len(payload) < minPayloadLen || len(payload) > maxPayloadLen {
		return ErrInvalidFormat
	}
	for i := 0; i < len(payload); i++ {
		if !isAlphanumeric(payload[i]) {
			return ErrInvalidFormat
		}
	}
	return nil
}

// OrganizationID identifies a tenant.
type OrganizationID string

// NewOrganizationID returns a fresh organization id.
func NewOrganizationID() OrganizationID {
	return OrganizationID(OrganizationPrefix + New())
}

func (id OrganizationID) Validate() error { return Validate(string(id), OrganizationPrefix) }
func (id OrganizationID) String() string  { return string(id) }

// ApplicationID identifies an application owned by an organization.
type ApplicationID string

// NewApplicationID returns a fresh application id.
func NewApplicationID() ApplicationID {
	return ApplicationID(ApplicationPrefix + New())
}

func (id ApplicationID) Validate() error { return Validate(string(id), ApplicationPrefix) }
func (id ApplicationID) String() string  { return string(id) }

// ApplicationUID is a caller-chosen unique name for an application within its organization.
type ApplicationUID string

// Validate accepts 1..256 characters from [a-zA-Z0-9-_.].
func (uid ApplicationUID) Validate() error {
	if len(uid) == 0 || len(uid) > maxUIDLen {
		return ErrInvalidFormat
	}
	for i := 0; i < len(uid); i++ {
		c := uid[i]
		if isAlphanumeric(c) || c == '-' || c == '_' || c == '.' {
			continue
		}
		return ErrInvalidFormat
	}
	return nil
}

// ApplicationIDOrUID is a path value naming an application by canonical id or by uid.
type ApplicationIDOrUID string

// Validate requires app_ prefixed values to be well-formed application ids and
// everything else to be a well-formed uid.
func (v ApplicationIDOrUID) Validate() error {
	if strings.HasPrefix(string(v), ApplicationPrefix) {
		if err := ApplicationID(v).Validate(); err == nil {
			return nil
		}
	}
	return ApplicationUID(v).Validate()
}

func isAlphanumeric(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
