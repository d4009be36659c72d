package handle

import (
	"errors"
	"net/http"

	"guild-roster/api/internal/roster"
)

var errNoStore = errors.New("no roster store configured")

type SheetRequest struct {
	SessionID string `json:"session_id"`
	Sheet     string `json:"sheet,omitempty"`
	// Action is load (default) or save.
	Action string `json:"action,omitempty"`
	Column string `json:"column,omitempty"`
}

// Sheet loads a sheet into the session or saves the session roster.
func (h *Handle) Sheet(w http.ResponseWriter, r *http.Request) {
	var req SheetRequest
	if !decode(w, r, &req) {
		return
	}
	if h.store == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": errNoStore.Error()})
		return
	}
	sess, err := h.session(req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	switch req.Action {
	case "", "load":
		err = sess.LoadSheet(r.Context(), h.store, req.Sheet)
	case "save":
		err = sess.SaveSheet(r.Context(), h.store)
	default:
		err = &roster.ValidationError{Field: "action", Msg: "want load or save"}
	}
	if err == nil && req.Column != "" {
		err = sess.SetColumn(req.Column)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sheet": sess.Sheet(), "members": sess.Roster.Len(), "column": sess.Column()})
}

// Growth compares the session roster with ?previous=<sheet>.
func (h *Handle) Growth(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": errNoStore.Error()})
		return
	}
	q := r.URL.Query()
	sess, err := h.session(q.Get("session_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	prevName := q.Get("previous")
	if prevName == "" {
		writeError(w, &roster.ValidationError{Field: "previous", Msg: "missing previous sheet"})
		return
	}
	prev, err := h.store.Load(r.Context(), prevName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"current": sess.Sheet(), "previous": prevName, "rows": roster.Growth(sess.Roster, prev)})
}
