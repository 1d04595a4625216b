package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"card-league-system/middleware"
	"card-league-system/models"
	"card-league-system/notify"
	"card-league-system/repository"
	"card-league-system/services"
	"card-league-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct {
	keys []string
}

func (f *fakeStorage) UploadEvidence(_ context.Context, key string, _ *multipart.FileHeader) (string, error) {
	f.keys = append(f.keys, key)
	return "https://cdn.example.com/" + key, nil
}

type testEnv struct {
	app     *fiber.App
	store   *repository.MemoryStore
	storage *fakeStorage
	season  *models.Season
}

func newTestEnv(t *testing.T, submissionsPerMinute int) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := repository.NewMemoryStore()
	catalog, err := models.LoadCatalog("")
	require.NoError(t, err)
	require.NoError(t, services.SeedCatalog(ctx, store, catalog))

	resolver := utils.NewDeckTypeResolver(catalog.DeckTypes)
	leaders := services.NewLeadershipAssigner(store, nil, logger)
	orch := services.NewCompletionOrchestrator(
		services.NewDeckStatsAggregator(store, logger),
		leaders,
		services.NewAchievementEvaluator(store, logger),
		store, nil, logger,
	)
	storage := &fakeStorage{}
	engine := services.NewConsensusEngine(store, orch, resolver, storage, notify.Nop{}, nil, logger)
	matches := services.NewMatchService(store, logger)
	season, err := matches.OpenSeason(ctx, "Summer Cup", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	app := fiber.New()
	SetupMatchRoutes(app, engine, middleware.UserRateLimitMiddleware(middleware.PerMinute(submissionsPerMinute)), logger)
	SetupStandingsRoutes(app, services.NewStandingsService(store, resolver, logger), logger)
	SetupAdminRoutes(app, matches, services.NewReconciler(store, leaders, logger), logger)

	return &testEnv{app: app, store: store, storage: storage, season: season}
}

func (e *testEnv) do(t *testing.T, method, path, user, roles string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	return e.send(t, req, user, roles)
}

func (e *testEnv) send(t *testing.T, req *http.Request, user, roles string) (int, map[string]any) {
	t.Helper()
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	if roles != "" {
		req.Header.Set("X-User-Roles", roles)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (e *testEnv) schedule(t *testing.T, p1, p2 string) string {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/admin/matches", "league-admin", "admin", services.ScheduleInput{
		SeasonID: e.season.ID, Player1ID: p1, Player2ID: p2, MatchDate: "2026-06-14", MatchTime: "18:30",
	})
	require.Equal(t, http.StatusCreated, status, body)
	return body["id"].(string)
}

func evidence(winner, deckType string) map[string]any {
	return map[string]any{
		"image_ref":     "https://cdn.example.com/shot.png",
		"damage_points": 120,
		"winner_id":     winner,
		"deck_type":     deckType,
	}
}

func TestEvidenceAgreementCompletesMatch(t *testing.T) {
	env := newTestEnv(t, 100)
	id := env.schedule(t, "ash", "misty")

	status, body := env.do(t, http.MethodPost, "/matches/"+id+"/evidence", "ash", "", evidence("ash", "flame"))
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "one_submitted", body["state"])

	status, body = env.do(t, http.MethodPost, "/matches/"+id+"/evidence", "misty", "", evidence("ash", "water"))
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "completed", body["state"])
	require.NotNil(t, body["completion"])

	status, body = env.do(t, http.MethodGet, "/matches/"+id, "misty", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "completed", body["state"])
	assert.Equal(t, "ash", body["match"].(map[string]any)["winner_id"])

	status, body = env.do(t, http.MethodGet, "/seasons/"+env.season.ID+"/deck-types/fire/leaderboard", "misty", "", nil)
	require.Equal(t, http.StatusOK, status)
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "ash", entries[0].(map[string]any)["user_id"])

	status, body = env.do(t, http.MethodGet, "/seasons/"+env.season.ID+"/players/ash/achievements", "ash", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, body["current"])
	assert.Equal(t, "poke-ball", body["current"].(map[string]any)["id"])

	status, body = env.do(t, http.MethodGet, "/seasons/"+env.season.ID+"/gym-badges", "ash", "", nil)
	require.Equal(t, http.StatusOK, status)
	holders := map[string]any{}
	for _, b := range body["gym_badges"].([]any) {
		badge := b.(map[string]any)
		holders[badge["category"].(string)] = badge["holder_id"]
	}
	assert.Equal(t, "ash", holders["fire"])
	assert.Nil(t, holders["water"], "a loss alone does not lead a deck type")
}

func TestEvidenceMismatchAndManualComplete(t *testing.T) {
	env := newTestEnv(t, 100)
	id := env.schedule(t, "ash", "misty")

	_, _ = env.do(t, http.MethodPost, "/matches/"+id+"/evidence", "ash", "", evidence("ash", "fire"))
	status, body := env.do(t, http.MethodPost, "/matches/"+id+"/evidence", "misty", "", evidence("misty", "water"))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "winner_mismatch", body["state"])
	mismatch := body["mismatch"].(map[string]any)
	assert.Equal(t, "ash", mismatch["player1_pick"])
	assert.Equal(t, "misty", mismatch["player2_pick"])

	status, body = env.do(t, http.MethodPost, "/matches/"+id+"/complete", "ash", "", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "winner_mismatch", body["kind"])
}

func TestEvidenceErrors(t *testing.T) {
	env := newTestEnv(t, 100)
	id := env.schedule(t, "ash", "misty")

	status, _ := env.do(t, http.MethodPost, "/matches/"+id+"/evidence", "brock", "", evidence("ash", "fire"))
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = env.do(t, http.MethodPost, "/matches/"+id+"/evidence", "ash", "", evidence("ash", "not-a-deck-type-at-all"))
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodGet, "/matches/does-not-exist", "ash", "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = env.do(t, http.MethodGet, "/matches/"+id, "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.do(t, http.MethodPost, "/admin/matches/"+id+"/cancel", "league-admin", "admin", map[string]string{"reason": "no show"})
	require.Equal(t, http.StatusOK, status)
	status, _ = env.do(t, http.MethodPost, "/matches/"+id+"/evidence", "ash", "", evidence("ash", "fire"))
	assert.Equal(t, http.StatusConflict, status)
}

func TestEvidenceMultipartUpload(t *testing.T) {
	env := newTestEnv(t, 100)
	id := env.schedule(t, "ash", "misty")

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("damage_points", "90"))
	require.NoError(t, w.WriteField("winner_id", "misty"))
	part, err := w.CreateFormFile("screenshot", "result.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG fake"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/matches/"+id+"/evidence", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	status, body := env.send(t, req, "ash", "")
	require.Equal(t, http.StatusOK, status, body)

	require.Len(t, env.storage.keys, 1)
	assert.Contains(t, env.storage.keys[0], "evidence/summer-cup/"+id+"/ash-")
	slot := body["match"].(map[string]any)["player1_slot"].(map[string]any)
	assert.Equal(t, "https://cdn.example.com/"+env.storage.keys[0], slot["evidence_image_ref"])
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := newTestEnv(t, 100)

	status, _ := env.do(t, http.MethodPost, "/admin/matches", "ash", "player", services.ScheduleInput{
		SeasonID: env.season.ID, Player1ID: "ash", Player2ID: "misty", MatchDate: "2026-06-14",
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = env.do(t, http.MethodPost, "/admin/matches", "league-admin", "admin", services.ScheduleInput{
		SeasonID: env.season.ID, Player1ID: "ash", Player2ID: "misty", MatchDate: "14/06/2026",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := env.do(t, http.MethodPost, "/admin/seasons/"+env.season.ID+"/reconcile", "league-admin", "admin", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, env.season.ID, body["season_id"])

	status, _ = env.do(t, http.MethodPost, "/admin/seasons/missing/reconcile", "league-admin", "admin", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSubmissionRateLimit(t *testing.T) {
	env := newTestEnv(t, 1)
	id := env.schedule(t, "ash", "misty")

	status, _ := env.do(t, http.MethodPost, "/matches/"+id+"/evidence", "ash", "", map[string]any{"damage_points": 10})
	require.Equal(t, http.StatusOK, status)
	status, _ = env.do(t, http.MethodPost, "/matches/"+id+"/evidence", "ash", "", map[string]any{"damage_points": 20})
	assert.Equal(t, http.StatusTooManyRequests, status)
}

func TestDeckTypes(t *testing.T) {
	env := newTestEnv(t, 100)
	status, body := env.do(t, http.MethodGet, "/deck-types", "ash", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["deck_types"], 10)
}

func TestEvidenceMultipartRejectedBeforeUpload(t *testing.T) {
	env := newTestEnv(t, 100)
	id := env.schedule(t, "ash", "misty")

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("damage_points", "-5"))
	require.NoError(t, w.WriteField("winner_id", "gary"))
	part, err := w.CreateFormFile("screenshot", "result.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG fake"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/matches/"+id+"/evidence", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	status, _ := env.send(t, req, "ash", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Empty(t, env.storage.keys, "nothing is stored for a rejected submission")
}
