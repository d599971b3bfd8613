package http

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	nethttp "net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/prepverse/prepverse-lms/internal/apperr"
	"github.com/prepverse/prepverse-lms/internal/auth"
	"github.com/prepverse/prepverse-lms/internal/db"
	"github.com/prepverse/prepverse-lms/internal/rbac"
)

const bcryptCost = 12

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=student teacher"`
	FullName string `json:"full_name" validate:"required"`

	// Student profile.
	Age           int    `json:"age,omitempty"`
	StudentClass  string `json:"student_class,omitempty"`
	School        string `json:"school,omitempty"`
	ExamTarget    string `json:"exam_target,omitempty"`
	ParentName    string `json:"parent_name,omitempty"`
	ParentContact string `json:"parent_contact,omitempty"`

	// Teacher profile.
	Organization    string `json:"organization,omitempty"`
	Qualification   string `json:"qualification,omitempty"`
	ExperienceYears int    `json:"experience_years,omitempty"`
	Subjects        string `json:"subjects,omitempty"`
	Bio             string `json:"bio,omitempty"`
}

func (r registerRequest) fieldErrors() apperr.FieldErrors {
	fe := apperr.FieldErrors{}
	if r.Role == rbac.RoleStudent {
		if r.StudentClass != "" && r.StudentClass != "11" && r.StudentClass != "12" {
			fe["student_class"] = "must be one of: 11 12"
		}
		if r.ExamTarget != "" {
			switch r.ExamTarget {
			case "jee", "neet", "eamcet":
			default:
				fe["exam_target"] = "must be one of: jee neet eamcet"
			}
		}
	}
	if len(fe) > 0 {
		return fe
	}
	return nil
}

// RegisterHandler creates the user row and its role profile in one
// transaction; a failed profile write leaves no orphan account.
func RegisterHandler(dbh *sql.DB, authSvc *auth.AuthService) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req registerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		if err := validate.Struct(req); err != nil {
			writeError(w, validationErrors(err))
			return
		}
		if fe := req.fieldErrors(); fe != nil {
			writeError(w, fe)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
		if err != nil {
			writeError(w, err)
			return
		}
		now := time.Now().Unix()

		tx, err := dbh.BeginTx(r.Context(), nil)
		if err != nil {
			writeError(w, err)
			return
		}
		defer tx.Rollback()

		var userID int64
		err = tx.QueryRowContext(r.Context(), `
			INSERT INTO users (email, password_hash, role, is_staff, created_at)
			VALUES ($1,$2,$3,FALSE,$4) RETURNING id`,
			req.Email, string(hash), req.Role, now).Scan(&userID)
		if db.IsUniqueViolation(err) {
			writeError(w, apperr.FieldErrors{"email": "already registered"})
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}

		switch req.Role {
		case rbac.RoleStudent:
			if req.StudentClass == "" {
				req.StudentClass = "11"
			}
			if req.ExamTarget == "" {
				req.ExamTarget = "jee"
			}
			_, err = tx.ExecContext(r.Context(), `
				INSERT INTO student_profiles (user_id, full_name, age, student_class, school, exam_target, parent_name, parent_contact, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				userID, req.FullName, req.Age, req.StudentClass, req.School, req.ExamTarget, req.ParentName, req.ParentContact, now)
		case rbac.RoleTeacher:
			_, err = tx.ExecContext(r.Context(), `
				INSERT INTO teacher_profiles (user_id, full_name, organization, qualification, experience_years, subjects, bio, is_verified, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,FALSE,$8)`,
				userID, req.FullName, req.Organization, req.Qualification, req.ExperienceYears, req.Subjects, req.Bio, now)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		if err := tx.Commit(); err != nil {
			writeError(w, err)
			return
		}

		token, err := authSvc.IssueJWT(userID, req.Email, req.Role, false)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusCreated, map[string]any{
			"access_token": token,
			"user": map[string]any{
				"id":    userID,
				"email": req.Email,
				"role":  req.Role,
			},
		})
	}
}

func LoginHandler(dbh *sql.DB, authSvc *auth.AuthService) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req struct {
			Email    string `json:"email" validate:"required,email"`
			Password string `json:"password" validate:"required"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		if err := validate.Struct(req); err != nil {
			writeError(w, validationErrors(err))
			return
		}

		var (
			userID int64
			hash   string
			role   sql.NullString
			staff  bool
		)
		err := dbh.QueryRowContext(r.Context(),
			`SELECT id, password_hash, role, is_staff FROM users WHERE email=$1`, req.Email).
			Scan(&userID, &hash, &role, &staff)
		if errors.Is(err, sql.ErrNoRows) {
			nethttp.Error(w, "invalid credentials", nethttp.StatusUnauthorized)
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
			nethttp.Error(w, "invalid credentials", nethttp.StatusUnauthorized)
			return
		}

		token, err := authSvc.IssueJWT(userID, req.Email, role.String, staff)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"access_token": token,
			"user": map[string]any{
				"id":       userID,
				"email":    req.Email,
				"role":     role.String,
				"is_staff": staff,
			},
		})
	}
}
