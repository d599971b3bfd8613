package http

import (
	"database/sql"
	"strings"

	nethttp "net/http"

	"github.com/google/uuid"

	"github.com/prepverse/prepverse-lms/internal/apperr"
	"github.com/prepverse/prepverse-lms/internal/catalog"
	"github.com/prepverse/prepverse-lms/internal/rbac"
	"github.com/prepverse/prepverse-lms/internal/storage"
)

const maxPDFBytes = 32 << 20

func CreateSectionHandler(store *catalog.SQLStore, dbh *sql.DB) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		identity, _ := rbac.IdentityFromContext(r.Context())
		courseID, err := urlID(r, "courseID")
		if err != nil {
			writeError(w, err)
			return
		}
		if !rbac.CanModifyCourse(r.Context(), dbh, identity, courseID) {
			writeError(w, apperr.ErrForbidden)
			return
		}
		var req struct {
			Title string `json:"title" validate:"required"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, validationErrors(err))
			return
		}
		sec, err := store.CreateSection(r.Context(), courseID, req.Title)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusCreated, sec)
	}
}

func ListSectionsHandler(store *catalog.SQLStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		secs, err := store.ListSections(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, secs)
	}
}

func GetSectionHandler(store *catalog.SQLStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		sectionID, err := urlID(r, "sectionID")
		if err != nil {
			writeError(w, err)
			return
		}
		sec, err := store.GetSection(r.Context(), sectionID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, sec)
	}
}

func ListSubsectionsHandler(store *catalog.SQLStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		subs, err := store.ListSubsections(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, subs)
	}
}

// canModifySection resolves the owning course and applies the course rule.
// Sections outside the caller's courses look absent.
func canModifySection(r *nethttp.Request, store *catalog.SQLStore, dbh *sql.DB, sectionID int64) error {
	identity, _ := rbac.IdentityFromContext(r.Context())
	sec, err := store.GetSection(r.Context(), sectionID)
	if err != nil {
		return err
	}
	if !rbac.CanModifyCourse(r.Context(), dbh, identity, sec.CourseID) {
		return apperr.ErrNotFound
	}
	return nil
}

func UpdateSectionHandler(store *catalog.SQLStore, dbh *sql.DB) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		sectionID, err := urlID(r, "sectionID")
		if err != nil {
			writeError(w, err)
			return
		}
		if err := canModifySection(r, store, dbh, sectionID); err != nil {
			writeError(w, err)
			return
		}
		var req struct {
			Title string `json:"title" validate:"required"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, validationErrors(err))
			return
		}
		sec, err := store.UpdateSectionTitle(r.Context(), sectionID, req.Title)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, sec)
	}
}

func DeleteSectionHandler(store *catalog.SQLStore, dbh *sql.DB) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		sectionID, err := urlID(r, "sectionID")
		if err != nil {
			writeError(w, err)
			return
		}
		if err := canModifySection(r, store, dbh, sectionID); err != nil {
			writeError(w, err)
			return
		}
		if err := store.DeleteSection(r.Context(), sectionID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(nethttp.StatusNoContent)
	}
}

// subsectionInput reads either a JSON body (video lessons) or a multipart
// form carrying the pdf_file part (pdf lessons). The uploaded blob lands in
// the store before the row insert; a failed insert leaves an unreferenced
// blob, never a dangling row.
func subsectionInput(r *nethttp.Request, blobs storage.BlobStore, sectionID int64) (catalog.SubsectionInput, error) {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "multipart/form-data") {
		var req struct {
			Title       string  `json:"title"`
			ContentType string  `json:"content_type"`
			VideoURL    *string `json:"video_url"`
		}
		if err := decodeJSON(r, &req); err != nil {
			return catalog.SubsectionInput{}, err
		}
		return catalog.SubsectionInput{
			SectionID:   sectionID,
			Title:       req.Title,
			ContentType: req.ContentType,
			VideoURL:    req.VideoURL,
		}, nil
	}

	if err := r.ParseMultipartForm(maxPDFBytes); err != nil {
		return catalog.SubsectionInput{}, apperr.FieldErrors{"body": "invalid multipart form"}
	}
	in := catalog.SubsectionInput{
		SectionID:   sectionID,
		Title:       r.FormValue("title"),
		ContentType: r.FormValue("content_type"),
	}
	if v := strings.TrimSpace(r.FormValue("video_url")); v != "" {
		in.VideoURL = &v
	}
	file, hdr, err := r.FormFile("pdf_file")
	if err != nil {
		// Missing file is a validation outcome, not a transport error.
		return in, nil
	}
	defer file.Close()
	if !strings.HasSuffix(strings.ToLower(hdr.Filename), ".pdf") {
		return catalog.SubsectionInput{}, apperr.FieldErrors{"pdf_file": "must be a .pdf file"}
	}
	key := "subsections/" + uuid.NewString() + ".pdf"
	if _, err := blobs.Put(key, file); err != nil {
		return catalog.SubsectionInput{}, err
	}
	in.PDFKey = &key
	return in, nil
}

func CreateSubsectionHandler(store *catalog.SQLStore, dbh *sql.DB, blobs storage.BlobStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		sectionID, err := urlID(r, "sectionID")
		if err != nil {
			writeError(w, err)
			return
		}
		if err := canModifySection(r, store, dbh, sectionID); err != nil {
			writeError(w, err)
			return
		}
		in, err := subsectionInput(r, blobs, sectionID)
		if err != nil {
			writeError(w, err)
			return
		}
		sub, err := store.CreateSubsection(r.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusCreated, sub)
	}
}

func canModifySubsection(r *nethttp.Request, store *catalog.SQLStore, dbh *sql.DB, subsectionID int64) (catalog.Subsection, error) {
	identity, _ := rbac.IdentityFromContext(r.Context())
	sub, err := store.GetSubsection(r.Context(), subsectionID)
	if err != nil {
		return catalog.Subsection{}, err
	}
	courseID, err := store.CourseOfSubsection(r.Context(), subsectionID)
	if err != nil {
		return catalog.Subsection{}, err
	}
	if !rbac.CanModifyCourse(r.Context(), dbh, identity, courseID) {
		return catalog.Subsection{}, apperr.ErrNotFound
	}
	return sub, nil
}

func UpdateSubsectionHandler(store *catalog.SQLStore, dbh *sql.DB, blobs storage.BlobStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		subsectionID, err := urlID(r, "subsectionID")
		if err != nil {
			writeError(w, err)
			return
		}
		cur, err := canModifySubsection(r, store, dbh, subsectionID)
		if err != nil {
			writeError(w, err)
			return
		}
		in, err := subsectionInput(r, blobs, cur.SectionID)
		if err != nil {
			writeError(w, err)
			return
		}
		// A pdf update without a fresh upload keeps the stored blob.
		if in.ContentType == catalog.ContentPDF && in.PDFKey == nil {
			in.PDFKey = cur.PDFKey
		}
		sub, err := store.UpdateSubsection(r.Context(), subsectionID, in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, sub)
	}
}

func DeleteSubsectionHandler(store *catalog.SQLStore, dbh *sql.DB) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		subsectionID, err := urlID(r, "subsectionID")
		if err != nil {
			writeError(w, err)
			return
		}
		if _, err := canModifySubsection(r, store, dbh, subsectionID); err != nil {
			writeError(w, err)
			return
		}
		if err := store.DeleteSubsection(r.Context(), subsectionID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(nethttp.StatusNoContent)
	}
}
