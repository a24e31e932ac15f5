package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/fixdesk/fixdesk/internal/rbac"
)

func TestQueryResponseCarriesEveryEntryField(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, Entry{
		Ref:      "aud-7c1",
		BranchID: 10, ActorID: 4,
		Action: "jobs:deliver", Entity: "job_card", EntityID: "42",
		Meta: map[string]any{"otp": "verified"},
	}))

	h := NewHandler(slog.Default(), svc, rbac.NewMiddleware())
	r := chi.NewRouter()
	r.Route("/audit", h.MountRoutes)

	mgr := rbac.NewPrincipal(4, 1, rbac.RoleManager, []int64{10})
	req := httptest.NewRequest(http.MethodGet, "/audit/", nil)
	req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), mgr))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Entries []map[string]any `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)

	got := resp.Entries[0]
	require.Equal(t, "aud-7c1", got["ref"])
	require.Equal(t, float64(10), got["branch_id"])
	require.Equal(t, float64(4), got["actor_id"])
	require.Equal(t, "jobs:deliver", got["action"])
	require.Equal(t, "job_card", got["entity"])
	require.Equal(t, "42", got["entity_id"])
	require.Equal(t, map[string]any{"otp": "verified"}, got["meta"])
	require.NotEmpty(t, got["at"])
}
