package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	api "github.com/prepverse/prepverse-lms/internal/api/http"
	"github.com/prepverse/prepverse-lms/internal/audit"
	"github.com/prepverse/prepverse-lms/internal/auth"
	"github.com/prepverse/prepverse-lms/internal/catalog"
	"github.com/prepverse/prepverse-lms/internal/config"
	"github.com/prepverse/prepverse-lms/internal/db"
	"github.com/prepverse/prepverse-lms/internal/entitlement"
	"github.com/prepverse/prepverse-lms/internal/quiz"
	"github.com/prepverse/prepverse-lms/internal/rbac"
	"github.com/prepverse/prepverse-lms/internal/storage"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	// --- Domain wiring ---
	ent := entitlement.NewChecker(dbh)
	catalogStore := catalog.NewSQLStore(dbh)
	quizStore := quiz.NewSQLStore(dbh, ent)
	recorder := audit.NewRecorder(dbh)
	authSvc := auth.NewAuthService(cfg.AuthSecret, cfg.TokenTTL)

	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Post("/api/auth/register", api.RegisterHandler(dbh, authSvc))
	r.Post("/api/auth/login", api.LoginHandler(dbh, authSvc))

	// Authenticated surface (JWT → identity in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc, dbh))

		// Catalog browse
		pr.Get("/api/courses", api.ListCoursesHandler(catalogStore))
		pr.Get("/api/courses/{courseID}", api.GetCourseHandler(catalogStore, ent, dbh))
		pr.Get("/api/subsections/{subsectionID}", api.GetSubsectionHandler(catalogStore, ent, dbh))
		pr.Get("/api/subsections/{subsectionID}/file", api.GetSubsectionFileHandler(catalogStore, ent, dbh, bs))

		// Storefront
		pr.Get("/api/packages", api.ListPackagesHandler(catalogStore))
		pr.Get("/api/packages/{packageID}", api.GetPackageHandler(catalogStore))
		pr.With(rbac.RequireStudent()).
			Post("/api/packages/{packageID}/purchase", api.PurchasePackageHandler(catalogStore, recorder))
		pr.With(rbac.RequireStudent()).
			Get("/api/me/purchases", api.ListMyPurchasesHandler(catalogStore))

		// Quizzes
		pr.Get("/api/courses/{courseID}/quizzes", api.ListCourseQuizzesHandler(quizStore, catalogStore, ent, dbh))
		pr.With(rbac.RequireTeacherOrAdmin()).
			Post("/api/courses/{courseID}/quizzes", api.CreateQuizHandler(quizStore, dbh))
		pr.Get("/api/quizzes/{quizID}", api.GetQuizHandler(quizStore, ent, dbh))
		pr.With(rbac.RequireTeacherOrAdmin()).
			Patch("/api/quizzes/{quizID}", api.UpdateQuizHandler(quizStore, dbh))
		pr.With(rbac.RequireTeacherOrAdmin()).
			Delete("/api/quizzes/{quizID}", api.DeleteQuizHandler(quizStore, dbh))
		pr.With(rbac.RequireTeacherOrAdmin()).
			Post("/api/quizzes/{quizID}/questions", api.AddQuestionHandler(quizStore, dbh))

		// Submissions
		pr.With(rbac.RequireStudent()).
			Post("/api/quizzes/{quizID}/submissions", api.SubmitQuizHandler(quizStore, recorder))
		pr.With(rbac.RequireStudent()).
			Get("/api/me/submissions", api.ListMySubmissionsHandler(quizStore))
		pr.With(rbac.RequireTeacherOrAdmin()).
			Get("/api/quizzes/{quizID}/submissions", api.ListQuizSubmissionsHandler(quizStore, dbh))

		// Authoring & administration
		pr.Route("/api/admin", func(ar chi.Router) {
			ar.With(rbac.RequireTeacherOrAdmin()).
				Get("/courses", api.ListCoursesAdminHandler(catalogStore))
			ar.With(rbac.RequireTeacherOrAdmin()).
				Post("/courses", api.CreateCourseHandler(catalogStore))
			ar.With(rbac.RequireTeacherOrAdmin()).
				Get("/courses/{courseID}", api.GetCourseAdminHandler(catalogStore))
			ar.With(rbac.RequireTeacherOrAdmin()).
				Put("/courses/{courseID}", api.UpdateCourseHandler(catalogStore, dbh))
			ar.With(rbac.RequireTeacherOrAdmin()).
				Delete("/courses/{courseID}", api.DeleteCourseHandler(catalogStore, dbh))

			ar.With(rbac.RequireTeacherOrAdmin()).
				Get("/sections", api.ListSectionsHandler(catalogStore))
			ar.With(rbac.RequireTeacherOrAdmin()).
				Get("/sections/{sectionID}", api.GetSectionHandler(catalogStore))
			ar.With(rbac.RequireTeacherOrAdmin()).
				Get("/subsections", api.ListSubsectionsHandler(catalogStore))
			ar.With(rbac.RequireTeacherOrAdmin()).
				Post("/courses/{courseID}/sections", api.CreateSectionHandler(catalogStore, dbh))
			ar.With(rbac.RequireTeacherOrAdmin()).
				Put("/sections/{sectionID}", api.UpdateSectionHandler(catalogStore, dbh))
			ar.With(rbac.RequireTeacherOrAdmin()).
				Delete("/sections/{sectionID}", api.DeleteSectionHandler(catalogStore, dbh))
			ar.With(rbac.RequireTeacherOrAdmin()).
				Post("/sections/{sectionID}/subsections", api.CreateSubsectionHandler(catalogStore, dbh, bs))
			ar.With(rbac.RequireTeacherOrAdmin()).
				Put("/subsections/{subsectionID}", api.UpdateSubsectionHandler(catalogStore, dbh, bs))
			ar.With(rbac.RequireTeacherOrAdmin()).
				Delete("/subsections/{subsectionID}", api.DeleteSubsectionHandler(catalogStore, dbh))

			ar.With(rbac.RequireAdmin()).
				Get("/packages", api.ListPackagesAdminHandler(catalogStore))
			ar.With(rbac.RequireAdmin()).
				Post("/packages", api.CreatePackageHandler(catalogStore))
			ar.With(rbac.RequireAdmin()).
				Put("/packages/{packageID}", api.UpdatePackageHandler(catalogStore))
			ar.With(rbac.RequireAdmin()).
				Delete("/packages/{packageID}", api.DeletePackageHandler(catalogStore))
			ar.With(rbac.RequireAdmin()).
				Put("/purchases/{purchaseID}/status", api.SetPurchaseStatusHandler(catalogStore))
		})
	})

	log.Printf("gateway listening on %s (driver=%s)", cfg.HTTPAddr, cfg.DBDriver)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Fatal(srv.ListenAndServe())
}
