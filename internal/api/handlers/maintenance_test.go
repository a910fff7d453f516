package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bigkaa/goaudiostore/internal/service"
)

// fakeReconciler — управляемый ReconcileRunner.
type fakeReconciler struct {
	report   *service.ReconcileReport
	inFlight bool
	err      error
}

func (f *fakeReconciler) RunOnce(_ context.Context) (*service.ReconcileReport, bool, error) {
	return f.report, f.inFlight, f.err
}

// TestReconcile проверяет ответы maintenance endpoint.
func TestReconcile(t *testing.T) {
	report := &service.ReconcileReport{
		BlobsChecked: 2,
		Issues: []service.ReconcileIssue{
			{Type: service.IssueOrphanedFile, FileName: "audio-1.wav"},
		},
		Summary: service.ReconcileSummary{OrphanedFiles: 1},
	}

	tests := []struct {
		name   string
		runner *fakeReconciler
		status int
		code   string
	}{
		{"ok", &fakeReconciler{report: report}, http.StatusOK, ""},
		{"in progress", &fakeReconciler{inFlight: true}, http.StatusConflict, "RECONCILE_IN_PROGRESS"},
		{"failure", &fakeReconciler{err: errors.New("диск")}, http.StatusInternalServerError, "STORE_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewMaintenanceHandler(tt.runner)
			rec := httptest.NewRecorder()
			h.Reconcile(rec, httptest.NewRequest(http.MethodPost, "/api/maintenance/reconcile", nil))

			if rec.Code != tt.status {
				t.Fatalf("статус = %d, ожидался %d", rec.Code, tt.status)
			}
			if tt.code != "" {
				if code := errorCode(t, rec); code != tt.code {
					t.Errorf("code = %s, ожидался %s", code, tt.code)
				}
				return
			}

			var got service.ReconcileReport
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if got.Summary.OrphanedFiles != 1 || len(got.Issues) != 1 {
				t.Errorf("отчёт: %+v", got)
			}
		})
	}
}
