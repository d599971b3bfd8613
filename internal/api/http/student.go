package http

import (
	"database/sql"
	"io"

	nethttp "net/http"

	"github.com/prepverse/prepverse-lms/internal/apperr"
	"github.com/prepverse/prepverse-lms/internal/catalog"
	"github.com/prepverse/prepverse-lms/internal/entitlement"
	"github.com/prepverse/prepverse-lms/internal/rbac"
	"github.com/prepverse/prepverse-lms/internal/storage"
)

func ListCoursesHandler(store *catalog.SQLStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		courses, err := store.ListCourses(r.Context(), true)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, courses)
	}
}

// GetCourseHandler is the browse view: the outline is open to any signed-in
// user, but without an entitlement the video and pdf references are blanked.
func GetCourseHandler(store *catalog.SQLStore, ent *entitlement.Checker, dbh *sql.DB) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		identity, _ := rbac.IdentityFromContext(r.Context())
		courseID, err := urlID(r, "courseID")
		if err != nil {
			writeError(w, err)
			return
		}
		c, err := store.GetCourse(r.Context(), courseID, false)
		if err != nil {
			writeError(w, err)
			return
		}
		if !(rbac.IsTeacherOrAdmin(identity) && rbac.CanModifyCourse(r.Context(), dbh, identity, courseID)) {
			ok, err := ent.HasAccess(r.Context(), identity.ID, courseID)
			if err != nil {
				writeError(w, err)
				return
			}
			if !ok {
				c.StripContentRefs()
			}
		}
		writeJSON(w, nethttp.StatusOK, c)
	}
}

// requireContentAccess resolves the owning course of a sub-section and
// applies the entitlement gate. Course staff pass without a purchase.
func requireContentAccess(r *nethttp.Request, store *catalog.SQLStore, ent *entitlement.Checker, dbh *sql.DB, subsectionID int64) error {
	identity, _ := rbac.IdentityFromContext(r.Context())
	courseID, err := store.CourseOfSubsection(r.Context(), subsectionID)
	if err != nil {
		return err
	}
	if rbac.IsTeacherOrAdmin(identity) && rbac.CanModifyCourse(r.Context(), dbh, identity, courseID) {
		return nil
	}
	ok, err := ent.HasAccess(r.Context(), identity.ID, courseID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrNoEntitlement
	}
	return nil
}

func GetSubsectionHandler(store *catalog.SQLStore, ent *entitlement.Checker, dbh *sql.DB) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		subsectionID, err := urlID(r, "subsectionID")
		if err != nil {
			writeError(w, err)
			return
		}
		if err := requireContentAccess(r, store, ent, dbh, subsectionID); err != nil {
			writeError(w, err)
			return
		}
		sub, err := store.GetSubsection(r.Context(), subsectionID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, sub)
	}
}

// GetSubsectionFileHandler streams the stored pdf. Video lessons have no
// file; asking for one is not found.
func GetSubsectionFileHandler(store *catalog.SQLStore, ent *entitlement.Checker, dbh *sql.DB, blobs storage.BlobStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		subsectionID, err := urlID(r, "subsectionID")
		if err != nil {
			writeError(w, err)
			return
		}
		if err := requireContentAccess(r, store, ent, dbh, subsectionID); err != nil {
			writeError(w, err)
			return
		}
		sub, err := store.GetSubsection(r.Context(), subsectionID)
		if err != nil {
			writeError(w, err)
			return
		}
		if sub.ContentType != catalog.ContentPDF || sub.PDFKey == nil {
			writeError(w, apperr.ErrNotFound)
			return
		}
		rc, err := blobs.Get(*sub.PDFKey)
		if err != nil {
			writeError(w, apperr.ErrNotFound)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.Copy(w, rc)
	}
}
