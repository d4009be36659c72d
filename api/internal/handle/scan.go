package handle

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"guild-roster/api/internal/ocr"
	"guild-roster/api/internal/roster"
	"guild-roster/api/internal/scan"
	"guild-roster/api/internal/util"
)

const defaultScanTimeout = 180 * time.Second

type ImageInput struct {
	ID       string `json:"id"`
	ImageB64 string `json:"image_b64"`
	MIME     string `json:"mime,omitempty"`
}

type ScanRequest struct {
	// SessionID continues a session; empty starts a new one.
	SessionID string       `json:"session_id,omitempty"`
	Column    string       `json:"column,omitempty"`
	Guild     string       `json:"guild,omitempty"`
	Engine    string       `json:"engine,omitempty"`
	Images    []ImageInput `json:"images"`
}

type ScanResponse struct {
	SessionID string       `json:"session_id"`
	Report    *scan.Report `json:"report"`
}

func (h *Handle) Scan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Images) == 0 {
		writeError(w, &roster.ValidationError{Field: "images", Msg: "no images"})
		return
	}
	batch := scan.Batch{Column: req.Column, Images: make([]ocr.Image, 0, len(req.Images))}
	for i, in := range req.Images {
		data, hint, err := util.DecodeBase64MaybeDataURL(in.ImageB64)
		if err != nil || len(data) == 0 {
			writeError(w, &roster.ValidationError{Field: fmt.Sprintf("images[%d].image_b64", i), Msg: "bad image_b64"})
			return
		}
		batch.Images = append(batch.Images, ocr.Image{ID: in.ID, Data: data, MIME: util.PickMIME(in.MIME, hint, data)})
	}
	if req.Engine != "" {
		e, ok := h.engines.Lookup(req.Engine)
		if !ok {
			writeError(w, &roster.ValidationError{Field: "engine", Msg: fmt.Sprintf("unknown engine %q", req.Engine)})
			return
		}
		batch.Engine = e
	}

	var sess *scan.Session
	if req.SessionID != "" {
		var err error
		if sess, err = h.session(req.SessionID); err != nil {
			writeError(w, err)
			return
		}
	} else {
		sess = h.sessions.Create()
	}
	if req.Guild != "" {
		sess.SetGuild(req.Guild)
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout(r, defaultScanTimeout))
	defer cancel()
	rep, err := h.svc.RunBatch(ctx, sess, batch)
	if err != nil {
		writeError(w, err)
		return
	}
	if n := rep.Failed(); n > 0 && n == len(rep.Images) {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":      "ocr failed for every image: " + rep.Images[0].Err.Error(),
			"session_id": sess.ID,
		})
		return
	}
	writeJSON(w, http.StatusOK, ScanResponse{SessionID: sess.ID, Report: rep})
}
