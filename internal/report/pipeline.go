// Package report renders the admin pipeline export: every requirement with
// its tutor associations, demos and classes, one sheet per entity.
package report

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/tutor-matching/internal/application/port"
	"github.com/garyjia/tutor-matching/internal/domain/entity"
)

const pageSize = 500

const (
	SheetSummary      = "Summary"
	SheetRequirements = "Requirements"
	SheetAssociations = "Associations"
	SheetDemos        = "Demos"
	SheetClasses      = "Classes"
)

// Source is the read side the export is built from
type Source interface {
	ListRequirements(ctx context.Context, filter port.RequirementFilter) ([]*entity.Requirement, error)
	ListAssociations(ctx context.Context, requirementID string) ([]*entity.TutorAssociation, error)
	ListDemos(ctx context.Context, requirementID string) ([]*entity.DemoSession, error)
	ListClasses(ctx context.Context, requirementID string) ([]*entity.Class, error)
}

// PipelineExporter builds the pipeline workbook
type PipelineExporter struct {
	source Source
	logger *zap.Logger
	now    func() time.Time
}

// NewPipelineExporter creates a new pipeline exporter
func NewPipelineExporter(source Source, logger *zap.Logger) *PipelineExporter {
	return &PipelineExporter{source: source, logger: logger, now: time.Now}
}

type snapshot struct {
	requirements []*entity.Requirement
	associations []*entity.TutorAssociation
	demos        []*entity.DemoSession
	classes      []*entity.Class
}

// Export writes the workbook to w
func (e *PipelineExporter) Export(ctx context.Context, w io.Writer) error {
	f, err := e.Build(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// Build assembles the workbook in memory. The caller closes it.
func (e *PipelineExporter) Build(ctx context.Context) (*excelize.File, error) {
	snap, err := e.collect(ctx)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{SheetRequirements, SheetAssociations, SheetDemos, SheetClasses} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	sw := &sheetWriter{f: f, header: header}
	e.writeSummary(sw, snap)
	writeRequirements(sw, snap.requirements)
	writeAssociations(sw, snap.associations)
	writeDemos(sw, snap.demos)
	writeClasses(sw, snap.classes)
	if sw.err != nil {
		f.Close()
		return nil, sw.err
	}

	e.logger.Info("Pipeline export built",
		zap.Int("requirements", len(snap.requirements)),
		zap.Int("associations", len(snap.associations)),
		zap.Int("demos", len(snap.demos)),
		zap.Int("classes", len(snap.classes)))
	return f, nil
}

func (e *PipelineExporter) collect(ctx context.Context) (*snapshot, error) {
	snap := &snapshot{}
	for offset := 0; ; offset += pageSize {
		page, err := e.source.ListRequirements(ctx, port.RequirementFilter{Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("failed to list requirements: %w", err)
		}
		snap.requirements = append(snap.requirements, page...)
		if len(page) < pageSize {
			break
		}
	}

	for _, req := range snap.requirements {
		assocs, err := e.source.ListAssociations(ctx, req.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list associations of %s: %w", req.ID, err)
		}
		demos, err := e.source.ListDemos(ctx, req.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list demos of %s: %w", req.ID, err)
		}
		classes, err := e.source.ListClasses(ctx, req.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list classes of %s: %w", req.ID, err)
		}
		snap.associations = append(snap.associations, assocs...)
		snap.demos = append(snap.demos, demos...)
		snap.classes = append(snap.classes, classes...)
	}
	return snap, nil
}

// sheetWriter keeps the first error so row writes stay linear
type sheetWriter struct {
	f      *excelize.File
	header int
	err    error
}

func (w *sheetWriter) row(sheet string, n int, values ...interface{}) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetSheetRow(sheet, cell, &values); err != nil {
		w.err = fmt.Errorf("failed to write %s row %d: %w", sheet, n, err)
	}
}

func (w *sheetWriter) headings(sheet string, names ...interface{}) {
	w.row(sheet, 1, names...)
	if w.err != nil {
		return
	}
	if err := w.f.SetRowStyle(sheet, 1, 1, w.header); err != nil {
		w.err = err
		return
	}
	last, _ := excelize.ColumnNumberToName(len(names))
	if err := w.f.SetColWidth(sheet, "A", last, 18); err != nil {
		w.err = err
	}
}

func (e *PipelineExporter) writeSummary(w *sheetWriter, snap *snapshot) {
	w.headings(SheetSummary, "Entity", "Status", "Count")
	w.row(SheetSummary, 2, "Generated at", "", formatTime(e.now()))

	n := 3
	emit := func(name string, statuses []string) {
		counts := make(map[string]int)
		for _, s := range statuses {
			counts[s]++
		}
		keys := make([]string, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			w.row(SheetSummary, n, name, k, counts[k])
			n++
		}
	}

	statuses := make([]string, 0, len(snap.requirements))
	for _, r := range snap.requirements {
		statuses = append(statuses, r.Status)
	}
	emit(SheetRequirements, statuses)

	statuses = statuses[:0]
	for _, a := range snap.associations {
		statuses = append(statuses, a.Status)
	}
	emit(SheetAssociations, statuses)

	statuses = statuses[:0]
	for _, d := range snap.demos {
		statuses = append(statuses, d.Status)
	}
	emit(SheetDemos, statuses)

	statuses = statuses[:0]
	for _, c := range snap.classes {
		statuses = append(statuses, c.Status)
	}
	emit(SheetClasses, statuses)
}

func writeRequirements(w *sheetWriter, reqs []*entity.Requirement) {
	w.headings(SheetRequirements, "ID", "Parent", "Subjects", "Grade", "Board", "Modes",
		"Location", "Status", "Found Tutor", "Tutor", "Posted At", "Closed At", "Version")
	for i, r := range reqs {
		found, tutor := "", ""
		if r.Outcome != nil {
			found = yesNo(r.Outcome.FoundTutor)
			tutor = r.Outcome.TutorName
			if tutor == "" {
				tutor = r.Outcome.TutorID
			}
		}
		w.row(SheetRequirements, i+2, r.ID, r.ParentID, strings.Join(r.Subjects, ", "), r.GradeLevel,
			r.Board, strings.Join(r.TeachingModes, ", "), r.Location, r.Status, found, tutor,
			formatTime(r.PostedAt), formatTimePtr(r.ClosedAt), r.Version)
	}
}

func writeAssociations(w *sheetWriter, assocs []*entity.TutorAssociation) {
	w.headings(SheetAssociations, "ID", "Requirement", "Tutor", "Status", "Note", "Created At", "Updated At")
	for i, a := range assocs {
		w.row(SheetAssociations, i+2, a.ID, a.RequirementID, a.TutorID, a.Status, a.Note,
			formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	}
}

func writeDemos(w *sheetWriter, demos []*entity.DemoSession) {
	w.headings(SheetDemos, "ID", "Requirement", "Tutor", "Subjects", "Start", "End", "Mode",
		"Status", "Reschedule", "Fee", "Cancel Reason")
	for i, d := range demos {
		fee := ""
		if d.FeeCents != nil {
			fee = fmt.Sprintf("%d.%02d", *d.FeeCents/100, *d.FeeCents%100)
		}
		w.row(SheetDemos, i+2, d.ID, d.RequirementID, d.TutorID, strings.Join(d.Subjects, ", "),
			formatTime(d.Slot.StartAt), formatTime(d.Slot.EndAt), d.Mode, d.Status,
			d.RescheduleStatus, fee, d.CancelReason)
	}
}

func writeClasses(w *sheetWriter, classes []*entity.Class) {
	w.headings(SheetClasses, "ID", "Requirement", "Tutor", "Subject", "Mode", "Days", "Time",
		"Status", "Start Date", "End Date", "Next Session")
	for i, c := range classes {
		w.row(SheetClasses, i+2, c.ID, c.RequirementID, c.TutorID, c.Subject, c.Mode,
			strings.Join(c.Schedule.Days, ", "), c.Schedule.StartTime+"-"+c.Schedule.EndTime,
			c.Status, c.StartDate.Format("2006-01-02"), formatDatePtr(c.EndDate), formatTimePtr(c.NextSession))
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func formatDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
