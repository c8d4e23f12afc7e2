package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/bookkeeping/internal/storage/writethrough"
)

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 800*time.Millisecond)
	defer cancel()
	if s.ready != nil {
		if err := s.ready.Ready(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// pending handles GET /v1/admin/pending
func (s *Server) pending(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		toJSON(w, http.StatusOK, toPendingResponse(writethrough.Pending{}))
		return
	}
	toJSON(w, http.StatusOK, toPendingResponse(s.sync.Pending()))
}

// resync handles POST /v1/admin/resync. Partial failures answer 503 with
// whatever is still pending.
func (s *Server) resync(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		toJSON(w, http.StatusOK, resyncResponse{Pushed: toPendingResponse(writethrough.Pending{}), Pending: toPendingResponse(writethrough.Pending{})})
		return
	}
	pushed, err := s.sync.Resync(r.Context())
	out := resyncResponse{Pushed: toPendingResponse(pushed), Pending: toPendingResponse(s.sync.Pending())}
	if err != nil {
		out.Error = err.Error()
		toJSON(w, http.StatusServiceUnavailable, out)
		return
	}
	toJSON(w, http.StatusOK, out)
}

func toPendingResponse(p writethrough.Pending) pendingResponse {
	out := pendingResponse{
		Entries:       append([]string{}, p.Entries...),
		Receipts:      ids(p.Receipts),
		Disbursements: ids(p.Disbursements),
	}
	return out
}

func ids(in []uuid.UUID) []string {
	out := make([]string, 0, len(in))
	for _, id := range in {
		out = append(out, id.String())
	}
	return out
}
