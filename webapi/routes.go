package webapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// router returns a chi router with the API routes and appropriate
// middlewares mounted.
func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer,
		LoggerMiddleware(s.logger),

		// All responses are in JSON unless a handler says otherwise.
		HeadersMiddleware,
	)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/pipeline", func(r chi.Router) {
			r.Post("/", s.createPipeline)
			r.Get("/", s.listPipelines)

			r.Route("/{id}", func(r chi.Router) {
				r.Use(PipelineIDMiddleware)

				r.Get("/", s.getPipeline)
				r.Put("/", s.updatePipeline)
				r.Delete("/", s.deletePipeline)

				r.Get("/config", s.getRawConfig)
				r.Get("/composer", s.getRawComposer)
				r.Get("/jenkinsfile", s.getRawJenkinsfile)

				r.Get("/config_jepl", s.getRenderedConfig)
				r.Get("/composer_jepl", s.getRenderedComposer)
				r.Get("/jenkinsfile_jepl", s.getRenderedJenkinsfile)
				r.Get("/commands_scripts", s.getCommandsScripts)
				r.Get("/compressed_files", s.getCompressedFiles)

				r.Post("/run", s.runPipeline)
				r.Get("/status", s.getStatus)
				r.Post("/pull_request", s.createPullRequest)

				r.Post("/badge", s.issueBadge)
				r.Get("/badge", s.getBadge)
			})
		})
	})

	return r
}
