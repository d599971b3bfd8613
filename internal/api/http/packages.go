package http

import (
	nethttp "net/http"

	"github.com/prepverse/prepverse-lms/internal/audit"
	"github.com/prepverse/prepverse-lms/internal/catalog"
	"github.com/prepverse/prepverse-lms/internal/rbac"
)

// packageView adds the derived discount to the wire shape.
type packageView struct {
	catalog.Package
	DiscountPercent *float64 `json:"discount_percent,omitempty"`
}

func viewPackage(p catalog.Package) packageView {
	return packageView{Package: p, DiscountPercent: p.DiscountPercent()}
}

func viewPackages(ps []catalog.Package) []packageView {
	out := make([]packageView, 0, len(ps))
	for _, p := range ps {
		out = append(out, viewPackage(p))
	}
	return out
}

type packageRequest struct {
	Title           string  `json:"title" validate:"required"`
	Description     string  `json:"description"`
	IsPublished     bool    `json:"is_published"`
	Featured        bool    `json:"featured"`
	IsFree          bool    `json:"is_free"`
	PriceCents      int64   `json:"price_cents"`
	DiscountedCents *int64  `json:"discounted_cents"`
	CourseIDs       []int64 `json:"course_ids"`
}

func (p packageRequest) input() catalog.PackageInput {
	return catalog.PackageInput{
		Title:           p.Title,
		Description:     p.Description,
		IsPublished:     p.IsPublished,
		Featured:        p.Featured,
		IsFree:          p.IsFree,
		PriceCents:      p.PriceCents,
		DiscountedCents: p.DiscountedCents,
		CourseIDs:       p.CourseIDs,
	}
}

func CreatePackageHandler(store *catalog.SQLStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		identity, _ := rbac.IdentityFromContext(r.Context())
		var req packageRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, validationErrors(err))
			return
		}
		p, err := store.CreatePackage(r.Context(), req.input(), identity.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusCreated, viewPackage(p))
	}
}

func UpdatePackageHandler(store *catalog.SQLStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		packageID, err := urlID(r, "packageID")
		if err != nil {
			writeError(w, err)
			return
		}
		var req packageRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, validationErrors(err))
			return
		}
		p, err := store.UpdatePackage(r.Context(), packageID, req.input())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, viewPackage(p))
	}
}

func DeletePackageHandler(store *catalog.SQLStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		packageID, err := urlID(r, "packageID")
		if err != nil {
			writeError(w, err)
			return
		}
		if err := store.DeletePackage(r.Context(), packageID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(nethttp.StatusNoContent)
	}
}

func ListPackagesAdminHandler(store *catalog.SQLStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ps, err := store.ListPackages(r.Context(), false)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, viewPackages(ps))
	}
}

// ---------- storefront ----------

func ListPackagesHandler(store *catalog.SQLStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ps, err := store.ListPackages(r.Context(), true)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, viewPackages(ps))
	}
}

func GetPackageHandler(store *catalog.SQLStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		packageID, err := urlID(r, "packageID")
		if err != nil {
			writeError(w, err)
			return
		}
		p, err := store.GetPackage(r.Context(), packageID, false)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, viewPackage(p))
	}
}

// PurchasePackageHandler answers 201 for both the fresh purchase and the
// repeat one; repeats flag already_owned instead of erroring.
func PurchasePackageHandler(store *catalog.SQLStore, rec *audit.Recorder) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		identity, _ := rbac.IdentityFromContext(r.Context())
		packageID, err := urlID(r, "packageID")
		if err != nil {
			writeError(w, err)
			return
		}
		p, alreadyOwned, err := store.PurchasePackage(r.Context(), identity.ID, packageID)
		if err != nil {
			writeError(w, err)
			return
		}
		if !alreadyOwned {
			rec.Append(r.Context(), audit.EventPurchaseCreated, p.Reference, map[string]any{
				"student_id": identity.ID,
				"package_id": packageID,
			})
		}
		writeJSON(w, nethttp.StatusCreated, map[string]any{
			"purchase":      p,
			"already_owned": alreadyOwned,
		})
	}
}

func ListMyPurchasesHandler(store *catalog.SQLStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		identity, _ := rbac.IdentityFromContext(r.Context())
		ps, err := store.ListPurchases(r.Context(), identity.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, ps)
	}
}

// SetPurchaseStatusHandler is the staff revocation endpoint.
func SetPurchaseStatusHandler(store *catalog.SQLStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		purchaseID, err := urlID(r, "purchaseID")
		if err != nil {
			writeError(w, err)
			return
		}
		var req struct {
			Status string `json:"status" validate:"required,oneof=active inactive"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, validationErrors(err))
			return
		}
		if err := store.SetPurchaseStatus(r.Context(), purchaseID, req.Status); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(nethttp.StatusNoContent)
	}
}
