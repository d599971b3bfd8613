package catalog

import "math"

const (
	ContentVideo = "video"
	ContentPDF   = "pdf"
)

type Course struct {
	ID                int64  `json:"id"`
	CreatedBy         *int64 `json:"created_by,omitempty"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	ExamTarget        string `json:"exam_target"`    // jee|neet|eamcet
	StudentClass      string `json:"student_class"`  // 11|12
	IsPublished       bool   `json:"is_published"`
	EstimatedDuration string `json:"estimated_duration,omitempty"`
	CreatedAt         int64  `json:"created_at"`
	UpdatedAt         int64  `json:"updated_at"`

	TeacherIDs []int64   `json:"assigned_teacher_ids,omitempty"`
	Sections   []Section `json:"sections,omitempty"`
}

type Section struct {
	ID          int64        `json:"id"`
	CourseID    int64        `json:"course_id"`
	Title       string       `json:"title"`
	Position    int          `json:"order"`
	Subsections []Subsection `json:"subsections,omitempty"`
}

type Subsection struct {
	ID          int64   `json:"id"`
	SectionID   int64   `json:"section_id"`
	Title       string  `json:"title"`
	Position    int     `json:"order"`
	ContentType string  `json:"content_type"` // video|pdf
	VideoURL    *string `json:"video_url,omitempty"`
	PDFKey      *string `json:"pdf_key,omitempty"`
	CreatedAt   int64   `json:"created_at"`
}

// StripContentRefs blanks the playable references in place. The outline
// itself (titles, ordering, content types) stays visible.
func (c *Course) StripContentRefs() {
	for i := range c.Sections {
		for j := range c.Sections[i].Subsections {
			c.Sections[i].Subsections[j].VideoURL = nil
			c.Sections[i].Subsections[j].PDFKey = nil
		}
	}
}

type Package struct {
	ID              int64  `json:"id"`
	CreatedBy       *int64 `json:"created_by,omitempty"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	IsPublished     bool   `json:"is_published"`
	Featured        bool   `json:"featured"`
	IsFree          bool   `json:"is_free"`
	PriceCents      int64  `json:"price_cents"`
	DiscountedCents *int64 `json:"discounted_cents,omitempty"`
	CreatedAt       int64  `json:"created_at"`
	UpdatedAt       int64  `json:"updated_at"`

	CourseIDs []int64 `json:"course_ids"`
}

// DiscountPercent returns the advertised discount, one decimal place, or nil
// when no discount applies.
func (p Package) DiscountPercent() *float64 {
	if p.DiscountedCents == nil || p.PriceCents <= 0 {
		return nil
	}
	d := float64(p.PriceCents-*p.DiscountedCents) / float64(p.PriceCents) * 100
	d = math.Round(d*10) / 10
	return &d
}

const PurchaseActive = "active"

type Purchase struct {
	ID        int64  `json:"id"`
	StudentID int64  `json:"student_id"`
	PackageID int64  `json:"package_id"`
	Status    string `json:"status"`
	Reference string `json:"reference"`
	CreatedAt int64  `json:"created_at"`

	Package *Package `json:"package,omitempty"`
}
