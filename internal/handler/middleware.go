package handler

import (
	"strings"

	"lapor-service/internal/apperror"
	"lapor-service/internal/auth"
	"lapor-service/internal/model"

	"github.com/gin-gonic/gin"
)

const actorKey = "actor"

// Authenticate resolves the request actor from a bearer token, the token query
// parameter (EventSource cannot set headers) or, when trustGateway is set,
// the X-User-ID and X-User-Role headers added by the API gateway.
func Authenticate(tokens *auth.TokenService, trustGateway bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := resolveActor(c, tokens, trustGateway)
		if err != nil {
			respondError(c, err)
			c.Abort()
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func resolveActor(c *gin.Context, tokens *auth.TokenService, trustGateway bool) (*model.Actor, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokens == nil {
			return nil, apperror.Unauthorized("invalid authorization header")
		}
		return tokens.Parse(strings.TrimSpace(token))
	}

	if token := c.Query("token"); token != "" && tokens != nil {
		return tokens.Parse(token)
	}

	if trustGateway {
		if userID := c.GetHeader("X-User-ID"); userID != "" {
			return auth.ParseActor(userID, c.GetHeader("X-User-Role"))
		}
	}

	return nil, apperror.Unauthorized("unauthorized")
}

// actorFrom returns the actor stored by Authenticate.
func actorFrom(c *gin.Context) *model.Actor {
	v, ok := c.Get(actorKey)
	if !ok {
		return nil
	}
	actor, _ := v.(*model.Actor)
	return actor
}
