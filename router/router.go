// Package router wires the HTTP route tree: every handler, grouped by
// auth requirement, behind the middleware chain that SetupRouter installs.
package router

import (
	"github.com/pollrelay/pollengine/config"
	"github.com/pollrelay/pollengine/handlers"
	"github.com/pollrelay/pollengine/internal/ratelimit"
	"github.com/pollrelay/pollengine/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies bundles everything SetupRouter needs to attach routes,
// grounded on the teacher's router.Dependencies pattern, narrowed to
// the poll domain's four handlers.
type Dependencies struct {
	Config        *config.Config
	Validator     middleware.Validator
	Limiter       ratelimit.Limiter
	PollHandler   *handlers.PollHandler
	VoteHandler   *handlers.VoteHandler
	LiveHandler   *handlers.LiveHandler
	HealthHandler *handlers.HealthHandler
}

// SetupRouter builds the gin engine and attaches every route named in
// spec §6, grouped under /api/v1/polls plus top-level health/metrics
// endpoints.
func SetupRouter(deps *Dependencies) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies(deps.Config.Server.TrustedProxies)

	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.SecurityHeadersMiddleware(deps.Config))
	r.Use(middleware.CORSMiddleware(&deps.Config.Server))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(deps.Limiter, ratelimit.BucketAPIGeneral, middleware.ByClientIP))

	r.GET("/health/liveness", deps.HealthHandler.LivenessCheck)
	r.GET("/health/readiness", deps.HealthHandler.ReadinessCheck)
	r.GET("/health", deps.HealthHandler.DetailedHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	optionalAuth := middleware.OptionalAuth(deps.Validator)
	requireAuth := middleware.RequireAuth(deps.Validator)
	voteLimited := middleware.RateLimiter(deps.Limiter, ratelimit.BucketVote, middleware.ByClientIP)
	pollCreateLimited := middleware.RateLimiter(deps.Limiter, ratelimit.BucketPollCreation, middleware.ByClientIP)
	emailCheckLimited := middleware.RateLimiter(deps.Limiter, ratelimit.BucketEmailCheck, middleware.ByClientIP)

	v1 := r.Group("/api/v1")
	{
		polls := v1.Group("/polls")
		polls.Use(optionalAuth)
		{
			polls.POST("", pollCreateLimited, deps.PollHandler.CreatePollHandler)
			polls.GET("/email-check", emailCheckLimited, deps.PollHandler.EmailCheckHandler)
			polls.GET("/my-polls", requireAuth, deps.PollHandler.MyPollsHandler)
			polls.GET("/shared-polls", requireAuth, deps.PollHandler.SharedPollsHandler)

			// Public-token surface: read, live viewer counts, and voting.
			polls.GET("/public/:token", deps.PollHandler.GetPublicPollHandler)
			polls.GET("/public/:token/results", deps.PollHandler.ResultsHandler)
			polls.GET("/public/:token/live", deps.LiveHandler.ConnectPublicHandler)
			polls.POST("/public/:token/vote", voteLimited, deps.VoteHandler.CastVoteHandler)
			polls.POST("/public/:token/vote-bulk", voteLimited, deps.VoteHandler.CastVoteHandler)
			polls.DELETE("/public/:token/vote", deps.VoteHandler.WithdrawVoteHandler)
			polls.GET("/public/:token/my-votes", deps.VoteHandler.MyVotesHandler)

			// Admin-token surface: the creator's management console.
			polls.GET("/admin/:token", deps.PollHandler.GetAdminPollHandler)
			polls.PATCH("/admin/:token", deps.PollHandler.UpdatePollHandler)
			polls.DELETE("/admin/:token", deps.PollHandler.DeletePollHandler)
			polls.POST("/admin/:token/finalize", deps.PollHandler.FinalizePollHandler)
			polls.POST("/admin/:token/remind", deps.PollHandler.RemindHandler)
			polls.GET("/admin/:token/results", deps.PollHandler.ResultsHandler)
			polls.GET("/admin/:token/live", deps.LiveHandler.ConnectAdminHandler)
			polls.POST("/admin/:token/options", deps.PollHandler.AddOptionHandler)
			polls.PATCH("/admin/:token/options/:id", deps.PollHandler.UpdateOptionHandler)
			polls.DELETE("/admin/:token/options/:id", deps.PollHandler.DeleteOptionHandler)
		}

		votes := v1.Group("/votes")
		votes.Use(optionalAuth)
		{
			votes.GET("/edit/:editToken", deps.VoteHandler.GetEditTokenHandler)
			votes.PUT("/edit/:editToken", voteLimited, deps.VoteHandler.PutEditTokenHandler)
		}
	}

	return r
}
