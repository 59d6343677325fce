package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/screentime-api/internal/dto"
	appErrors "github.com/noah-isme/screentime-api/pkg/errors"
)

type fakeDashboardSrv struct {
	resp *dto.ClassDashboardResponse
	hit  bool
	err  error
}

func (f *fakeDashboardSrv) ClassDashboard(context.Context, string) (*dto.ClassDashboardResponse, bool, error) {
	return f.resp, f.hit, f.err
}

func TestDashboardHandlerClass(t *testing.T) {
	h := NewDashboardHandler(&fakeDashboardSrv{
		resp: &dto.ClassDashboardResponse{ClassID: "c1", ClassName: "7A", StudentCount: 3, AveragePoints: 10.83, NeedsAttention: 1},
		hit:  true,
	})
	r := newRouter()
	r.GET("/classes/:id/dashboard", h.Class)

	w := perform(r, http.MethodGet, "/classes/c1/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Equal(t, true, env.Meta["cache_hit"])
	assert.Contains(t, env.Meta, "processing_time_ms")

	var summary dto.ClassDashboardResponse
	decodeData(t, env, &summary)
	assert.Equal(t, 3, summary.StudentCount)
	assert.Equal(t, 1, summary.NeedsAttention)
}

func TestDashboardHandlerUnknownClass(t *testing.T) {
	h := NewDashboardHandler(&fakeDashboardSrv{err: appErrors.Clone(appErrors.ErrUnknownClass, "class not found")})
	r := newRouter()
	r.GET("/classes/:id/dashboard", h.Class)

	w := perform(r, http.MethodGet, "/classes/zz/dashboard", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
