// handlers/match_routes.go
package handlers

import (
	"log/slog"
	"strconv"
	"strings"

	"card-league-system/middleware"
	"card-league-system/models"
	"card-league-system/services"

	"github.com/gofiber/fiber/v2"
)

// evidenceRequest is the JSON body of an evidence submission. Multipart
// submissions carry the same fields as form values plus a screenshot file.
type evidenceRequest struct {
	ImageRef     *string `json:"image_ref"`
	DamagePoints *int    `json:"damage_points"`
	WinnerID     *string `json:"winner_id"`
	DeckType     *string `json:"deck_type"`
	Slot         string  `json:"slot"`
}

type submissionResponse struct {
	*services.SubmissionResult
	Mismatch *mismatchView `json:"mismatch,omitempty"`
}

type mismatchView struct {
	Player1Pick string `json:"player1_pick"`
	Player2Pick string `json:"player2_pick"`
}

// parseSlot accepts "", "1", "2", "player1" or "player2". Empty means the caller's own slot.
func parseSlot(raw string) (models.Slot, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return 0, nil
	case "1", "player1":
		return models.SlotPlayer1, nil
	case "2", "player2":
		return models.SlotPlayer2, nil
	}
	return 0, &services.ValidationError{Field: "slot", Reason: "must be player1 or player2"}
}

func optionalForm(c *fiber.Ctx, key string) *string {
	v := strings.TrimSpace(c.FormValue(key))
	if v == "" {
		return nil
	}
	return &v
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm)
}

// readEvidence decodes either body shape and uploads the screenshot, if any.
func readEvidence(c *fiber.Ctx, engine *services.ConsensusEngine, matchID string, actor services.Actor) (services.EvidenceInput, models.Slot, error) {
	var in services.EvidenceInput

	if !isMultipart(c) {
		var req evidenceRequest
		if err := c.BodyParser(&req); err != nil {
			return in, 0, &services.ValidationError{Field: "body", Reason: "invalid JSON"}
		}
		slot, err := parseSlot(req.Slot)
		if err != nil {
			return in, 0, err
		}
		in = services.EvidenceInput{
			ImageRef:        req.ImageRef,
			DamagePoints:    req.DamagePoints,
			WinnerSelection: req.WinnerID,
			DeckType:        req.DeckType,
		}
		return in, slot, nil
	}

	slot, err := parseSlot(c.FormValue("slot"))
	if err != nil {
		return in, 0, err
	}
	in.ImageRef = optionalForm(c, "image_ref")
	in.WinnerSelection = optionalForm(c, "winner_id")
	in.DeckType = optionalForm(c, "deck_type")
	if raw := optionalForm(c, "damage_points"); raw != nil {
		n, err := strconv.Atoi(*raw)
		if err != nil {
			return in, 0, &services.ValidationError{Field: "damage_points", Reason: "must be an integer"}
		}
		in.DamagePoints = &n
	}

	if fh, err := c.FormFile("screenshot"); err == nil {
		if err := engine.CheckEvidence(c.UserContext(), matchID, actor, slot, in); err != nil {
			return in, 0, err
		}
		ref, err := engine.UploadEvidence(c.UserContext(), matchID, actor, slot, fh)
		if err != nil {
			return in, 0, err
		}
		in.ImageRef = &ref
	}
	return in, slot, nil
}

// SetupMatchRoutes registers the participant side of the consensus protocol.
// submitLimit guards evidence submissions.
func SetupMatchRoutes(app *fiber.App, engine *services.ConsensusEngine, submitLimit fiber.Handler, logger *slog.Logger) {
	matches := app.Group("/matches", middleware.UserContextMiddleware(logger))

	matches.Get("/:id", func(c *fiber.Ctx) error {
		m, state, err := engine.GetMatch(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(fiber.Map{"match": m, "state": state})
	})

	matches.Post("/:id/evidence", submitLimit, func(c *fiber.Ctx) error {
		matchID := c.Params("id")
		actor := actorFrom(c)

		in, slot, err := readEvidence(c, engine, matchID, actor)
		if err != nil {
			return respondError(c, logger, err)
		}
		res, err := engine.SubmitEvidence(c.UserContext(), matchID, actor, slot, in)
		if err != nil {
			return respondError(c, logger, err)
		}

		out := submissionResponse{SubmissionResult: res}
		if res.Mismatch != nil {
			out.Mismatch = &mismatchView{Player1Pick: res.Mismatch.Player1Pick, Player2Pick: res.Mismatch.Player2Pick}
		}
		return c.JSON(out)
	})

	matches.Post("/:id/complete", func(c *fiber.Ctx) error {
		outcome, err := engine.CompleteMatchAndRecompute(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(outcome)
	})
}
