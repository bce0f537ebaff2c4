package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kimgyuhyun/ott-project-sub001/app/repository"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/session"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/usercontext"
)

// UserContextMiddleware resolves the session into a UserContext for every
// request. Login itself lives in the account service; only the session
// cookie is consumed here. A session naming a user that no longer exists
// reads as anonymous.
func UserContextMiddleware(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		c.Locals(usercontext.KeyUserContext, usercontext.UserContext{IsLoggedIn: false})
		return c.Next()
	}

	userID := sess.Get(usercontext.KeyUserID)
	if userID == nil {
		c.Locals(usercontext.KeyUserContext, usercontext.UserContext{IsLoggedIn: false})
		return c.Next()
	}

	uid, ok := userID.(uint)
	if !ok || uid == 0 {
		c.Locals(usercontext.KeyUserContext, usercontext.UserContext{IsLoggedIn: false})
		return c.Next()
	}

	user, err := repository.GetGlobalFactory().GetUserRepository().GetByID(uid)
	if err != nil {
		c.Locals(usercontext.KeyUserContext, usercontext.UserContext{IsLoggedIn: false})
		return c.Next()
	}

	username := session.GetSessionValue(c, usercontext.KeyUsername)
	if username == "" {
		username = user.Name
	}
	c.Locals(usercontext.KeyUserContext, usercontext.UserContext{
		UserID:     uid,
		Username:   username,
		IsLoggedIn: true,
	})
	return c.Next()
}
