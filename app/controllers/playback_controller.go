package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kimgyuhyun/ott-project-sub001/app/repository"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/apperrors"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/playback"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/usercontext"
)

// HandleStreamURL issues a signed, expiring manifest URL for an episode,
// capped at the quality tier the viewer's plan entitles them to.
func HandleStreamURL(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return respondError(c, apperrors.Unauthorized("login required"))
	}

	episodeID, err := paramUint(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	requestedQuality := c.Query("quality")

	members, _ := membershipServices()
	factory := repository.GetGlobalFactory()
	authorizer := playback.NewAuthorizerFromEnv(factory.GetEpisodeRepository(), members, factory.GetPlanRepository())

	grant, err := authorizer.Authorize(c.UserContext(), userCtx.UserID, episodeID, requestedQuality, time.Now())
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(grant)
}
