package handlers

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"dolphinpod/internal/apperr"
	dbpkg "dolphinpod/internal/db"
	httpctx "dolphinpod/internal/http/ctx"
	"dolphinpod/internal/http/respond"
	"dolphinpod/internal/identity"
)

// IdentityVerifier checks a Google ID token.
type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (identity.Identity, error)
}

// SessionIssuer hands out session tokens.
type SessionIssuer interface {
	Issue(userID uint) (string, time.Time, error)
}

type googleLoginRequest struct {
	IDToken    string `json:"idToken"`
	IDTokenAlt string `json:"id_token"`
}

type loginResponse struct {
	ID        uint      `json:"id"`
	Email     string    `json:"email"`
	Nickname  string    `json:"nickname"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Created   bool      `json:"created"`
	Message   string    `json:"message"`
}

// GoogleLogin verifies the Google ID token, creates the account on first
// login and returns a session token for subsequent requests.
func GoogleLogin(db *gorm.DB, verifier IdentityVerifier, sessions SessionIssuer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req googleLoginRequest
		if !decodeBody(ctx, &req) {
			return
		}
		token := req.IDToken
		if token == "" {
			token = req.IDTokenAlt
		}
		if token == "" {
			respond.Error(ctx, apperr.Validation("idToken is required"))
			return
		}

		id, err := verifier.Verify(ctx, token)
		if err != nil {
			respond.Error(ctx, err)
			return
		}

		user, isNew, err := dbpkg.GetOrCreateUser(db.WithContext(ctx), id.Email, id.Name, id.Picture)
		if err != nil {
			respond.Error(ctx, err)
			return
		}

		session, exp, err := sessions.Issue(user.ID)
		if err != nil {
			respond.Error(ctx, apperr.Internal(err))
			return
		}

		l := httpctx.Logger(ctx)
		l.Info().Uint("user_id", user.ID).Bool("created", isNew).Msg("google login")

		msg := "login successful"
		if isNew {
			msg = "account created"
		}
		ok(ctx, loginResponse{
			ID:        user.ID,
			Email:     user.Email,
			Nickname:  user.Nickname,
			Token:     session,
			ExpiresAt: exp,
			Created:   isNew,
			Message:   msg,
		})
	}
}
