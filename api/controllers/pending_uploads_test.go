package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/spoolhub-backend/internal/uploads"
	"github.com/angelmondragon/spoolhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/spoolhub-backend/pkg/errors"
	"github.com/angelmondragon/spoolhub-backend/pkg/pagination"
	"github.com/angelmondragon/spoolhub-backend/pkg/types"
)

func TestPendingUploadsList(t *testing.T) {
	userID := uuid.New()
	svc := &testUploadsService{
		listFn: func(_ context.Context, ownerID uuid.UUID, page pagination.Params) (uploads.PendingListDTO, error) {
			if ownerID != userID {
				t.Fatalf("unexpected owner %s", ownerID)
			}
			if page.Limit != 2 || page.Cursor != "next-page" {
				t.Fatalf("unexpected page %+v", page)
			}
			return uploads.PendingListDTO{
				Items:          []uploads.PendingUploadDTO{{ID: uuid.New(), Status: enums.PendingUploadStatusReady}},
				ProcessedCount: 1,
				TotalCount:     3,
				NextCursor:     "after",
			}, nil
		},
	}
	req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/uploads/pending?limit=2&cursor=next-page", nil), userID)
	resp := httptest.NewRecorder()
	PendingUploadsList(svc, testLogger())(resp, req)

	var list uploads.PendingListDTO
	decodeData(t, resp.Body.Bytes(), &list)
	if len(list.Items) != 1 || list.TotalCount != 3 || list.NextCursor != "after" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestPendingUploadsListRejectsBadLimit(t *testing.T) {
	svc := &testUploadsService{
		listFn: func(context.Context, uuid.UUID, pagination.Params) (uploads.PendingListDTO, error) {
			t.Fatal("service must not be called")
			return uploads.PendingListDTO{}, nil
		},
	}
	req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/uploads/pending?limit=0", nil), uuid.New())
	resp := httptest.NewRecorder()
	PendingUploadsList(svc, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestPendingUploadUpdate(t *testing.T) {
	pendingID := uuid.New()
	svc := &testUploadsService{
		updateFn: func(_ context.Context, _ uuid.UUID, id uuid.UUID, data types.ExtractedData) (uploads.PendingUploadDTO, error) {
			if id != pendingID {
				t.Fatalf("unexpected id %s", id)
			}
			if data.Brand != "Prusament" || data.Material != "PETG" {
				t.Fatalf("unexpected data %+v", data)
			}
			return uploads.PendingUploadDTO{ID: id, Status: enums.PendingUploadStatusReady, ExtractedData: &data}, nil
		},
	}
	body := strings.NewReader(`{"brand":"Prusament","material":"PETG","colorHex":"#ff8800"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/uploads/pending/"+pendingID.String(), body)
	req = withRoute(asUser(req, uuid.New()), map[string]string{"pendingId": pendingID.String()})
	resp := httptest.NewRecorder()
	PendingUploadUpdate(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestPendingUploadUpdateRejectsBadInput(t *testing.T) {
	svc := &testUploadsService{}
	cases := map[string]struct {
		id   string
		body string
	}{
		"bad id":        {id: "nope", body: `{}`},
		"bad color":     {id: uuid.NewString(), body: `{"colorHex":"orange"}`},
		"unknown field": {id: uuid.NewString(), body: `{"spoolColour":"red"}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPatch, "/api/v1/uploads/pending/"+tc.id, strings.NewReader(tc.body))
			req = withRoute(asUser(req, uuid.New()), map[string]string{"pendingId": tc.id})
			resp := httptest.NewRecorder()
			PendingUploadUpdate(svc, testLogger())(resp, req)

			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", resp.Code)
			}
			if got := errorCode(t, resp.Body.Bytes()); got != string(pkgerrors.CodeValidation) {
				t.Fatalf("unexpected code %s", got)
			}
		})
	}
}

func TestPendingUploadsMarkImported(t *testing.T) {
	first, second := uuid.New(), uuid.New()
	svc := &testUploadsService{
		markImportedFn: func(_ context.Context, _ uuid.UUID, ids []uuid.UUID) (int, error) {
			if len(ids) != 2 || ids[0] != first || ids[1] != second {
				t.Fatalf("unexpected ids %v", ids)
			}
			return 1, nil
		},
	}
	body := strings.NewReader(`{"ids":["` + first.String() + `","` + second.String() + `"]}`)
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/uploads/pending/imported", body), uuid.New())
	resp := httptest.NewRecorder()
	PendingUploadsMarkImported(svc, testLogger())(resp, req)

	var result map[string]int
	decodeData(t, resp.Body.Bytes(), &result)
	if result["updatedCount"] != 1 {
		t.Fatalf("unexpected result %v", result)
	}
}

func TestPendingUploadsMarkImportedValidatesIDs(t *testing.T) {
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/uploads/pending/imported", strings.NewReader(`{"ids":["x"]}`)), uuid.New())
	resp := httptest.NewRecorder()
	PendingUploadsMarkImported(&testUploadsService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestPendingUploadsClear(t *testing.T) {
	svc := &testUploadsService{
		clearFn: func(context.Context, uuid.UUID) (int, error) { return 4, nil },
	}
	req := asUser(httptest.NewRequest(http.MethodDelete, "/api/v1/uploads/pending", nil), uuid.New())
	resp := httptest.NewRecorder()
	PendingUploadsClear(svc, testLogger())(resp, req)

	var result map[string]int
	decodeData(t, resp.Body.Bytes(), &result)
	if result["deletedCount"] != 4 {
		t.Fatalf("unexpected result %v", result)
	}
}
