package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"hookrelay.io/internal/apierr"
	"hookrelay.io/internal/apps"
	"hookrelay.io/internal/audit"
	"hookrelay.io/internal/auth"
	"hookrelay.io/internal/ids"
	"hookrelay.io/internal/obs"
)

type createAppRequest struct {
	Name string `json:"name"`
	UID  string `json:"uid,omitempty"`
}

type listAppsResponse struct {
	Data []*apps.Application `json:"data"`
}

type portalAccessResponse struct {
	Token string `json:"token"`
}

type secretRequest struct {
	Value string `json:"value"`
}

type secretResponse struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (a *API) listApps(w http.ResponseWriter, r *http.Request, authz auth.Authorization) {
	list, err := a.store.List(r.Context(), authz.Permissions.OrgID())
	if err != nil {
		writeAPIError(w, r, storeError(err))
		return
	}
	if list == nil {
		list = []*apps.Application{}
	}
	writeJSON(w, http.StatusOK, listAppsResponse{Data: list})
}

func (a *API) createApp(w http.ResponseWriter, r *http.Request, authz auth.Authorization) {
	var req createAppRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeAPIError(w, r, apierr.BadRequest("validation", "`name` is required"))
		return
	}
	uid := ids.ApplicationUID(strings.TrimSpace(req.UID))
	if uid != "" {
		if err := uid.Validate(); err != nil {
			writeAPIError(w, r, apierr.BadRequest("validation", "`uid` is not a valid application uid"))
			return
		}
		// A uid shaped like an application id would shadow lookups by id.
		if ids.ApplicationID(uid).Validate() == nil {
			writeAPIError(w, r, apierr.BadRequest("validation", "`uid` must not look like an application id"))
			return
		}
	}

	app := &apps.Application{OrgID: authz.Permissions.OrgID(), UID: uid, Name: req.Name}
	if err := a.store.Create(r.Context(), app); err != nil {
		writeAPIError(w, r, storeError(err))
		return
	}
	_ = audit.LogEvent(r.Context(), "app.created", map[string]any{"app": app.ID.String()})
	writeJSON(w, http.StatusCreated, app)
}

func (a *API) getApp(w http.ResponseWriter, r *http.Request, authz auth.Authorization) {
	writeJSON(w, http.StatusOK, authz.App)
}

func (a *API) deleteApp(w http.ResponseWriter, r *http.Request, authz auth.Authorization) {
	if err := a.store.Delete(r.Context(), authz.Permissions.OrgID(), authz.App.ID); err != nil {
		writeAPIError(w, r, storeError(err))
		return
	}
	_ = audit.LogEvent(r.Context(), "app.deleted", map[string]any{"app": authz.App.ID.String()})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) appPortalAccess(w http.ResponseWriter, r *http.Request, authz auth.Authorization) {
	token, err := a.tokens.GenerateAppToken(authz.Permissions.OrgID(), authz.App.ID)
	if err != nil {
		writeAPIError(w, r, apierr.Internal(err))
		return
	}
	obs.ObserveTokenMinted("application")
	_ = audit.LogEvent(r.Context(), "auth.app_token_minted", map[string]any{"app": authz.App.ID.String()})
	writeJSON(w, http.StatusOK, portalAccessResponse{Token: token})
}

func (a *API) putSecret(w http.ResponseWriter, r *http.Request, authz auth.Authorization) {
	name, ok := secretName(r)
	if !ok {
		writeAPIError(w, r, apierr.BadRequest("validation", "`name` is not a valid secret name"))
		return
	}
	var req secretRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, err)
		return
	}
	if err := a.store.PutSecret(r.Context(), authz.App.ID, name, []byte(req.Value)); err != nil {
		writeAPIError(w, r, storeError(err))
		return
	}
	_ = audit.LogEvent(r.Context(), "app.secret_stored", map[string]any{"app": authz.App.ID.String(), "secret": name})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getSecret(w http.ResponseWriter, r *http.Request, authz auth.Authorization) {
	name, ok := secretName(r)
	if !ok {
		writeAPIError(w, r, apierr.BadRequest("validation", "`name` is not a valid secret name"))
		return
	}
	value, err := a.store.GetSecret(r.Context(), authz.App.ID, name)
	if err != nil {
		writeAPIError(w, r, storeError(err))
		return
	}
	writeJSON(w, http.StatusOK, secretResponse{Name: name, Value: string(value)})
}

func secretName(r *http.Request) (string, bool) {
	name := mux.Vars(r)["name"]
	if name == "" || len(name) > 64 {
		return "", false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return "", false
		}
	}
	return name, true
}
