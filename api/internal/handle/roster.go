package handle

import (
	"net/http"

	"guild-roster/api/internal/board"
	"guild-roster/api/internal/roster"
)

type Member struct {
	Name   string           `json:"name"`
	Values map[string]int64 `json:"values"`
	Total  int64            `json:"total"`
}

type RosterResponse struct {
	SessionID string   `json:"session_id"`
	Sheet     string   `json:"sheet,omitempty"`
	Column    string   `json:"column"`
	Columns   []string `json:"columns"`
	Members   []Member `json:"members"`
}

func members(columns []string, ents []roster.Entity) []Member {
	out := make([]Member, 0, len(ents))
	for _, e := range ents {
		m := Member{Name: e.Name, Values: make(map[string]int64, len(columns)), Total: e.Total()}
		for i, c := range columns {
			m.Values[c] = e.Values[i]
		}
		out = append(out, m)
	}
	return out
}

// Roster lists the session roster. ?q= filters by name, ?zeros=1 keeps only
// members with an empty column.
func (h *Handle) Roster(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sess, err := h.session(q.Get("session_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var ents []roster.Entity
	switch {
	case q.Get("zeros") == "1":
		ents = sess.Roster.WithZeros()
	case q.Get("q") != "":
		ents = sess.Roster.Filter(q.Get("q"))
	default:
		ents = sess.Roster.Entities()
	}
	cols := sess.Roster.Columns()
	writeJSON(w, http.StatusOK, RosterResponse{
		SessionID: sess.ID,
		Sheet:     sess.Sheet(),
		Column:    sess.Column(),
		Columns:   cols,
		Members:   members(cols, ents),
	})
}

type PendingResponse struct {
	BatchID string            `json:"batch_id"`
	Column  string            `json:"column"`
	Pending []board.Candidate `json:"pending"`
}

func (h *Handle) Pending(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r.URL.Query().Get("session_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	column, pending := sess.Ledger.Pending()
	if pending == nil {
		pending = []board.Candidate{}
	}
	writeJSON(w, http.StatusOK, PendingResponse{BatchID: sess.Ledger.Batch(), Column: column, Pending: pending})
}

type DecisionInput struct {
	Index  int    `json:"index"`
	Action string `json:"action"`
	Name   string `json:"name"`
	Value  *int64 `json:"value,omitempty"`
}

// ConfirmRequest decides candidates of one scan batch. BatchID is the
// batch_id of the scan report or of /v1/pending; indexes refer to it.
type ConfirmRequest struct {
	SessionID string          `json:"session_id"`
	BatchID   string          `json:"batch_id"`
	Decisions []DecisionInput `json:"decisions"`
}

type ConfirmResponse struct {
	roster.ApplyResult
	Warning string `json:"warning,omitempty"`
}

func (h *Handle) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.session(req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.BatchID == "" {
		writeError(w, &roster.ValidationError{Field: "batch_id", Msg: "required"})
		return
	}
	decisions := make([]roster.Decision, 0, len(req.Decisions))
	for _, d := range req.Decisions {
		a, err := roster.ParseAction(d.Action)
		if err != nil {
			writeError(w, err)
			return
		}
		decisions = append(decisions, roster.Decision{Index: d.Index, Action: a, Name: d.Name, Value: d.Value})
	}
	res, err := sess.Confirm(req.BatchID, decisions)
	if err != nil {
		writeError(w, err)
		return
	}
	out := ConfirmResponse{ApplyResult: res}
	if err := res.StaleErr(); err != nil {
		out.Warning = err.Error()
	}
	h.log.Info("decisions applied", "session", sess.ID, "batch", req.BatchID, "created", res.Created, "mapped", res.Mapped, "stale", len(res.Stale))
	writeJSON(w, http.StatusOK, out)
}

type SessionRequest struct {
	SessionID string `json:"session_id"`
}

func (h *Handle) Discard(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.session(req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	n := sess.Ledger.Len()
	sess.Ledger.Discard()
	writeJSON(w, http.StatusOK, map[string]int{"discarded": n})
}
