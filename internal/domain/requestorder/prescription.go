package requestorder

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/carehub/pharmacy-portal/internal/domain/profile"
)

// PrescriptionDocument is the input to prescription rendering: everything a
// printable prescription for one request shows.
type PrescriptionDocument struct {
	Title        string               `json:"title"`
	PharmacyName string               `json:"pharmacyName"`
	PharmacyInfo string               `json:"pharmacyInfo,omitempty"`
	RequestRef   string               `json:"requestRef"`
	GeneratedAt  time.Time            `json:"generatedAt"`
	Patient      DocumentPatient      `json:"patient"`
	DoctorName   string               `json:"doctorName,omitempty"`
	Diagnosis    string               `json:"diagnosis,omitempty"`
	Notes        string               `json:"notes,omitempty"`
	Medications  []DocumentMedication `json:"medications"`
}

type DocumentPatient struct {
	Name    string `json:"name"`
	Age     int    `json:"age,omitempty"`
	Gender  string `json:"gender,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// DocumentMedication is one numbered medication card.
type DocumentMedication struct {
	Number       int    `json:"number"`
	Name         string `json:"name"`
	Dosage       string `json:"dosage,omitempty"`
	Frequency    string `json:"frequency,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Quantity     int    `json:"quantity,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// BuildPrescriptionDocument assembles the document for ro. Medications come
// from the prescription, or from the request's medicine lines when the
// prescription lists none. pharmacy may be nil.
func BuildPrescriptionDocument(ro RequestOrder, pharmacy *profile.Profile, now time.Time) PrescriptionDocument {
	doc := PrescriptionDocument{
		Title:       "Prescription",
		RequestRef:  ro.Ref,
		GeneratedAt: now.UTC(),
		Patient: DocumentPatient{
			Name:    ro.PatientName,
			Age:     ro.PatientAge,
			Gender:  ro.PatientGender,
			Phone:   ro.PatientPhone,
			Address: ro.Address,
		},
		DoctorName: ro.Prescription.DoctorName,
		Diagnosis:  ro.Prescription.Diagnosis,
		Notes:      ro.Prescription.Notes,
	}
	if pharmacy != nil {
		doc.PharmacyName = pharmacy.Name
		doc.PharmacyInfo = strings.Join(nonEmpty(pharmacy.Address, pharmacy.Phone), " | ")
	}

	for i, m := range ro.Prescription.Medications {
		doc.Medications = append(doc.Medications, DocumentMedication{
			Number: i + 1, Name: m.Name, Dosage: m.Dosage, Frequency: m.Frequency,
			Duration: m.Duration, Quantity: m.Quantity, Instructions: m.Instructions,
		})
	}
	if len(doc.Medications) == 0 {
		for i, li := range ro.Medicines {
			doc.Medications = append(doc.Medications, DocumentMedication{
				Number: i + 1, Name: li.Name, Dosage: li.Dosage, Quantity: li.Quantity,
			})
		}
	}
	if doc.Medications == nil {
		doc.Medications = []DocumentMedication{}
	}
	return doc
}

func nonEmpty(vals ...string) []string {
	out := vals[:0:0]
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Renderer turns a document into a downloadable file.
type Renderer interface {
	ContentType() string
	FileExtension() string
	Render(w io.Writer, doc PrescriptionDocument) error
}

// TextRenderer lays a document out as fixed-width pages separated by form
// feeds. A medication card is never split across pages.
type TextRenderer struct {
	Width        int
	LinesPerPage int
}

// NewTextRenderer returns a renderer for 72x60 pages.
func NewTextRenderer() *TextRenderer {
	return &TextRenderer{Width: 72, LinesPerPage: 60}
}

func (r *TextRenderer) ContentType() string   { return "text/plain; charset=utf-8" }
func (r *TextRenderer) FileExtension() string { return ".txt" }

func (r *TextRenderer) Render(w io.Writer, doc PrescriptionDocument) error {
	width, perPage := r.Width, r.LinesPerPage
	if width < 40 {
		width = 40
	}
	if perPage < 20 {
		perPage = 20
	}

	p := &pager{w: bufio.NewWriter(w), width: width, perPage: perPage, doc: doc}
	p.header()

	p.block([]string{
		"PATIENT",
		"  Name:    " + doc.Patient.Name,
		"  Age:     " + ageText(doc.Patient.Age) + "    Gender: " + orDash(doc.Patient.Gender),
		"  Phone:   " + orDash(doc.Patient.Phone),
		"  Address: " + orDash(doc.Patient.Address),
		"",
	})

	if doc.Diagnosis != "" || doc.DoctorName != "" {
		lines := []string{"+" + strings.Repeat("-", width-2) + "+"}
		if doc.DoctorName != "" {
			lines = append(lines, boxed("Prescribed by: "+doc.DoctorName, width)...)
		}
		if doc.Diagnosis != "" {
			lines = append(lines, boxed("Diagnosis: "+doc.Diagnosis, width)...)
		}
		lines = append(lines, "+"+strings.Repeat("-", width-2)+"+", "")
		p.block(lines)
	}

	p.block([]string{fmt.Sprintf("MEDICATIONS (%d)", len(doc.Medications)), ""})
	for _, m := range doc.Medications {
		p.block(card(m, width))
	}
	if doc.Notes != "" {
		p.block(append([]string{"NOTES"}, wrap(doc.Notes, width-2, "  ")...))
	}
	return p.flush()
}

type pager struct {
	w       *bufio.Writer
	width   int
	perPage int
	line    int
	page    int
	doc     PrescriptionDocument
	err     error
}

func (p *pager) write(s string) {
	if p.err != nil {
		return
	}
	if len(s) > p.width {
		s = s[:p.width]
	}
	_, p.err = p.w.WriteString(s + "\n")
	p.line++
}

func (p *pager) header() {
	p.page++
	title := p.doc.Title
	if p.doc.PharmacyName != "" {
		title = p.doc.PharmacyName + " - " + title
	}
	p.write(title)
	if p.doc.PharmacyInfo != "" {
		p.write(p.doc.PharmacyInfo)
	}
	p.write(fmt.Sprintf("Request %s    Generated %s    Page %d",
		orDash(p.doc.RequestRef), p.doc.GeneratedAt.Format("2006-01-02 15:04 MST"), p.page))
	p.write(strings.Repeat("=", p.width))
}

// block writes lines on the current page, starting a new page first when
// they do not fit.
func (p *pager) block(lines []string) {
	if p.line+len(lines) > p.perPage && p.line > 0 {
		if p.err == nil {
			_, p.err = p.w.WriteString("\f")
		}
		p.line = 0
		p.header()
	}
	for _, l := range lines {
		p.write(l)
	}
}

func (p *pager) flush() error {
	if p.err != nil {
		return p.err
	}
	return p.w.Flush()
}

// Pages reports how many pages doc renders to.
func (r *TextRenderer) Pages(doc PrescriptionDocument) (int, error) {
	var b strings.Builder
	if err := r.Render(&b, doc); err != nil {
		return 0, err
	}
	return strings.Count(b.String(), "\f") + 1, nil
}

func card(m DocumentMedication, width int) []string {
	lines := []string{fmt.Sprintf("%d. %s", m.Number, m.Name)}
	if m.Dosage != "" {
		lines = append(lines, "   Dosage:    "+m.Dosage)
	}
	if m.Frequency != "" {
		lines = append(lines, "   Frequency: "+m.Frequency)
	}
	if m.Duration != "" {
		lines = append(lines, "   Duration:  "+m.Duration)
	}
	if m.Quantity > 0 {
		lines = append(lines, fmt.Sprintf("   Quantity:  %d", m.Quantity))
	}
	if m.Instructions != "" {
		lines = append(lines, wrap("Instructions: "+m.Instructions, width-3, "   ")...)
	}
	return append(lines, "")
}

func boxed(s string, width int) []string {
	inner := width - 4
	var out []string
	for _, l := range wrap(s, inner, "") {
		out = append(out, "| "+l+strings.Repeat(" ", inner-len(l))+" |")
	}
	return out
}

// wrap breaks s into lines of at most width bytes, each prefixed.
func wrap(s string, width int, prefix string) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}
	var out []string
	cur := ""
	for _, word := range words {
		for len(word) > width {
			if cur != "" {
				out = append(out, prefix+cur)
				cur = ""
			}
			out = append(out, prefix+word[:width])
			word = word[width:]
		}
		if word == "" {
			continue
		}
		switch {
		case cur == "":
			cur = word
		case len(cur)+1+len(word) <= width:
			cur += " " + word
		default:
			out = append(out, prefix+cur)
			cur = word
		}
	}
	if cur != "" {
		out = append(out, prefix+cur)
	}
	return out
}

func ageText(age int) string {
	if age <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d", age)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
