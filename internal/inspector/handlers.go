package inspector

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/vcslab/packv4/internal/packv4"
)

// PackSummary is one entry in the GET /api/packs response.
type PackSummary struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	Error      string `json:"error,omitempty"`
	NumObjects int    `json:"num_objects"`
}

// handlePacks lists every pack the manager currently knows about.
func (s *Server) handlePacks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	infos := s.mgr.List()
	out := make([]PackSummary, len(infos))
	for i, p := range infos {
		out[i] = PackSummary{
			ID:         p.ID,
			State:      p.State.String(),
			Error:      p.Error,
			NumObjects: p.NumObjects,
		}
	}

	writeJSON(w, http.StatusOK, out)
}

// ObjectResponse is the GET /api/object response body.
type ObjectResponse struct {
	Pack   string `json:"pack"`
	Offset int64  `json:"offset"`
	Kind   string `json:"kind"`

	// Text holds the canonical reconstructed commit text. Only set for
	// kind=commit.
	Text string `json:"text,omitempty"`
	// MessageHTML is a goldmark-rendered view of the commit message tail,
	// purely for display — never part of the canonical decode output.
	MessageHTML string `json:"message_html,omitempty"`

	// Hex holds the reconstructed tree entry bytes, hex-encoded since tree
	// output is binary (path, NUL, 20-byte hash per entry). Only set for
	// kind=tree.
	Hex string `json:"hex,omitempty"`
}

// handleObject decodes a single object identified by pack, offset, size,
// and kind query parameters.
func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	pack := q.Get("pack")
	if pack == "" {
		http.Error(w, "missing pack parameter", http.StatusBadRequest)
		return
	}

	offset, err := strconv.ParseInt(q.Get("offset"), 10, 64)
	if err != nil {
		http.Error(w, "invalid offset parameter", http.StatusBadRequest)
		return
	}
	size, err := strconv.ParseInt(q.Get("size"), 10, 64)
	if err != nil {
		http.Error(w, "invalid size parameter", http.StatusBadRequest)
		return
	}

	var kind packv4.ObjectKind
	switch q.Get("kind") {
	case "commit":
		kind = packv4.KindCommit
	case "tree":
		kind = packv4.KindTree
	default:
		http.Error(w, "kind must be commit or tree", http.StatusBadRequest)
		return
	}

	data, err := s.mgr.Decode(pack, offset, size, kind)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	resp := ObjectResponse{Pack: pack, Offset: offset, Kind: q.Get("kind")}
	switch kind {
	case packv4.KindCommit:
		resp.Text = string(data)
		if html, err := renderMessageHTML(commitMessage(data)); err == nil {
			resp.MessageHTML = html
		} else {
			s.logger.Warn("message render failed", "pack", pack, "offset", offset, "err", err)
		}
	case packv4.KindTree:
		resp.Hex = hex.EncodeToString(data)
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
