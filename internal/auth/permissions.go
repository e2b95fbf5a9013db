package auth

import (
	"fmt"

	"hookrelay.io/internal/apierr"
	"hookrelay.io/internal/ids"
)

// KeyType is the kind of principal a token authenticates.
type KeyType int

const (
	KeyTypeOrganization KeyType = iota + 1
	KeyTypeApplication
)

func (k KeyType) String() string {
	switch k {
	case KeyTypeOrganization:
		return "organization"
	case KeyTypeApplication:
		return "application"
	default:
		return "unknown"
	}
}

// Permissions is the resolved authorization context of one request. An
// application id is present exactly when the key type is application. Values
// are built only through the constructors below and are never mutated.
type Permissions struct {
	keyType KeyType
	orgID   ids.OrganizationID
	appID   ids.ApplicationID
}

// OrganizationPermissions validates orgID and returns organization permissions.
func OrganizationPermissions(orgID ids.OrganizationID) (Permissions, error) {
	if err := orgID.Validate(); err != nil {
		return Permissions{}, err
	}
	return Permissions{keyType: KeyTypeOrganization, orgID: orgID}, nil
}

// ApplicationPermissions validates both ids and returns application permissions.
func ApplicationPermissions(orgID ids.OrganizationID, appID ids.ApplicationID) (Permissions, error) {
	if err := orgID.Validate(); err != nil {
		return Permissions{}, err
	}
	if err := appID.Validate(); err != nil {
		return Permissions{}, err
	}
	return Permissions{keyType: KeyTypeApplication, orgID: orgID, appID: appID}, nil
}

func (p Permissions) Type() KeyType { return p.keyType }

func (p Permissions) OrgID() ids.OrganizationID { return p.orgID }

// AppID returns the application the token is narrowed to, if any.
func (p Permissions) AppID() (ids.ApplicationID, bool) {
	return p.appID, p.keyType == KeyTypeApplication
}

func (p Permissions) String() string {
	if p.keyType == KeyTypeApplication {
		return fmt.Sprintf("%s:%s/%s", p.keyType, p.orgID, p.appID)
	}
	return fmt.Sprintf("%s:%s", p.keyType, p.orgID)
}

func badToken(field, idType string) error {
	return apierr.BadRequest("bad_token", fmt.Sprintf("`%s` is not a valid %s id", field, idType))
}

func missingSubject() error {
	return apierr.Unauthorized("Invalid token (missing `sub`).")
}

// ResolvePermissions maps verified claims to Permissions. The presence of the
// org claim is what makes a token application scoped, so it is checked first.
func ResolvePermissions(claims *Claims) (Permissions, error) {
	if claims == nil {
		return Permissions{}, invalidToken()
	}

	if claims.Org != nil {
		orgID := ids.OrganizationID(*claims.Org)
		if err := orgID.Validate(); err != nil {
			return Permissions{}, badToken("org", "organization")
		}
		if claims.Subject == "" {
			return Permissions{}, missingSubject()
		}
		appID := ids.ApplicationID(claims.Subject)
		if err := appID.Validate(); err != nil {
			return Permissions{}, badToken("sub", "application")
		}
		return Permissions{keyType: KeyTypeApplication, orgID: orgID, appID: appID}, nil
	}

	if claims.Subject == "" {
		return Permissions{}, missingSubject()
	}
	orgID := ids.OrganizationID(claims.Subject)
	if err := orgID.Validate(); err != nil {
		return Permissions{}, badToken("sub", "organization")
	}
	return Permissions{keyType: KeyTypeOrganization, orgID: orgID}, nil
}
