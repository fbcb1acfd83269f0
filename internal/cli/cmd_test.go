package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripplanner/internal/auth"
	"tripplanner/internal/config"
	"tripplanner/internal/model"
	"tripplanner/internal/store"
)

// testApp wires an App with no provider and an in-memory cache.
func testApp(t *testing.T, stdin string) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.LLM.Endpoint = ""
	app, err := NewApp(cfg)
	require.NoError(t, err)
	out := &bytes.Buffer{}
	app.In = strings.NewReader(stdin)
	app.Out = out
	return app, out
}

func execute(app *App, args ...string) error {
	root := NewRootCmd(app)
	root.SetArgs(args)
	root.SetOut(app.Out)
	root.SetErr(app.Out)
	return root.Execute()
}

func TestOptimizeCmd_StdinAndFlags(t *testing.T) {
	in := `{"places":[
		{"id":"far","name":"Far","location":{"lat":10.03,"lng":20}},
		{"id":"near","name":"Near","location":{"lat":10.01,"lng":20}}
	]}`
	app, out := testApp(t, in)
	require.NoError(t, execute(app, "optimize", "--start", "10,20", "--mode", "walking", "--return"))

	var route model.OptimizedRoute
	require.NoError(t, json.Unmarshal(out.Bytes(), &route))
	assert.Equal(t, []string{"near", "far"}, route.OptimizedOrder)
	assert.True(t, route.ReturnTripIncluded)
	for _, seg := range route.Segments {
		assert.Equal(t, model.ModeWalking, seg.Mode)
	}
}

func TestOptimizeCmd_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"start":{"lat":1,"lng":1},"places":[{"id":"a","name":"A","location":{"lat":1.01,"lng":1}}]}`), 0o600))
	app, out := testApp(t, "")
	require.NoError(t, execute(app, "optimize", "-f", path))
	assert.Contains(t, out.String(), `"optimizedOrder": [`)
}

func TestOptimizeCmd_Errors(t *testing.T) {
	app, _ := testApp(t, `{"places":[]}`)
	assert.ErrorContains(t, execute(app, "optimize", "--start", "ten,20"), "point")

	app, _ = testApp(t, `not json`)
	assert.ErrorContains(t, execute(app, "optimize"), "decode input")

	app, _ = testApp(t, `{"start":{"lat":1,"lng":1},"places":[]}`)
	assert.Error(t, execute(app, "optimize", "--mode", "teleport"))
}

func TestScheduleCmd(t *testing.T) {
	in := `{"start":{"lat":48.85,"lng":2.35},"startTime":"2025-06-01T09:00:00Z",
		"stops":[{"place":{"id":"a","name":"A","location":{"lat":48.86,"lng":2.35}},"slot":"morning"}]}`
	app, out := testApp(t, in)
	require.NoError(t, execute(app, "schedule"))
	assert.Contains(t, out.String(), `"placeId": "a"`)
}

func TestSuggestCmd_FallsBackWithoutProvider(t *testing.T) {
	app, out := testApp(t, "")
	require.NoError(t, execute(app, "suggest", "--day", "2", "--destination", "Porto"))
	var got struct {
		Source string `json:"source"`
		Day    int    `json:"day"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "fallback", got.Source)
	assert.Equal(t, 2, got.Day)

	assert.ErrorContains(t, execute(app, "suggest"), "--destination")
}

func TestTokenCmd(t *testing.T) {
	app, out := testApp(t, "")
	assert.ErrorContains(t, execute(app, "token", "--user", "ann"), "AUTH_HMAC_SECRET")

	app.Config.Auth.HMACSecret = "s3cret"
	require.NoError(t, execute(app, "token", "--user", "ann", "--role", "admin"))
	p, err := auth.NewVerifier("hmac", "s3cret", "").Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, auth.Principal{UserID: "ann", Role: "admin"}, p)
}

func TestMigrateCmd_NeedsDatabase(t *testing.T) {
	app, _ := testApp(t, "")
	assert.ErrorContains(t, execute(app, "migrate"), "DATABASE_URL")
}

func TestVersionCmd(t *testing.T) {
	app, out := testApp(t, "")
	require.NoError(t, execute(app, "version"))
	assert.Contains(t, out.String(), `"version": "dev"`)
}

func TestImportPlacesCmd(t *testing.T) {
	app, _ := testApp(t, "id,name\n1,A\n")
	assert.ErrorContains(t, execute(app, "import-places"), "DATABASE_URL or MONGO_URL")

	csv := "id,name,category,lat,lng\np1,Sagrada Familia,church,41.4036,2.1744\n,,bar,41.4,2.17\n"
	app, out := testApp(t, csv)
	mem := store.NewMemory()
	app.Places = mem
	require.NoError(t, execute(app, "import-places", "--batch", "1"))

	var res struct {
		Upserted int      `json:"upserted"`
		Rejected []string `json:"rejected"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, 1, res.Upserted)
	assert.Len(t, res.Rejected, 1)

	got, err := mem.SearchPlaces(context.Background(), "sagrada", 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
