package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/xuri/excelize/v2"
)

const (
	SheetSummary           = "Summary"
	SheetDuplicates        = "Duplicates"
	SheetSubtaskDuplicates = "Subtask Duplicates"
	SheetCollisions        = "Collisions"
	SheetParentMismatches  = "Parent Mismatches"
	SheetDanglingLinks     = "Dangling Links"
	SheetRemoteDuplicates  = "Remote Duplicates"
	SheetWarnings          = "Warnings"
)

type column struct {
	Header string
	Width  float64
}

type sheet struct {
	name    string
	columns []column
	rows    [][]interface{}
}

// WriteAuditWorkbook renders r as an xlsx workbook with one sheet per finding kind.
func WriteAuditWorkbook(w io.Writer, r *domain.AuditReport) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"1976D2"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	sheets := auditSheets(r)
	if err := f.SetSheetName("Sheet1", sheets[0].name); err != nil {
		return err
	}
	for i, s := range sheets {
		if i > 0 {
			if _, err := f.NewSheet(s.name); err != nil {
				return fmt.Errorf("add sheet %s: %w", s.name, err)
			}
		}
		if err := writeSheet(f, s, headerStyle); err != nil {
			return fmt.Errorf("write sheet %s: %w", s.name, err)
		}
	}
	f.SetActiveSheet(0)

	return f.Write(w)
}

func writeSheet(f *excelize.File, s sheet, headerStyle int) error {
	sw, err := f.NewStreamWriter(s.name)
	if err != nil {
		return err
	}

	header := make([]interface{}, len(s.columns))
	for i, col := range s.columns {
		header[i] = excelize.Cell{StyleID: headerStyle, Value: col.Header}
		if col.Width > 0 {
			if err := sw.SetColWidth(i+1, i+1, col.Width); err != nil {
				return err
			}
		}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	for i, row := range s.rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	return sw.Flush()
}

func auditSheets(r *domain.AuditReport) []sheet {
	summary := sheet{
		name:    SheetSummary,
		columns: []column{{"Property", 24}, {"Value", 40}},
		rows: [][]interface{}{
			{"User", r.UserID},
			{"Generated At", r.GeneratedAt.UTC().Format(time.RFC3339)},
			{"Remote Checked", r.RemoteChecked},
			{"Tasks", r.TaskCount},
			{"Sub-tasks", r.SubtaskCount},
			{"Duplicate Clusters", len(r.Duplicates)},
			{"Sub-task Duplicate Clusters", len(r.SubtaskDuplicates)},
			{"Title Collisions", len(r.Collisions)},
			{"Parent Mismatches", len(r.ParentMismatches)},
			{"Dangling Links", len(r.DanglingLinks)},
			{"Remote Duplicates", len(r.RemoteDuplicates)},
			{"Clean", r.Clean()},
		},
	}

	clusterColumns := []column{{"Scope", 30}, {"Key", 30}, {"Record", 30}, {"Title", 40}, {"Completed", 12}, {"Remote Task", 30}}
	duplicates := sheet{name: SheetDuplicates, columns: clusterColumns, rows: clusterRows(r.Duplicates)}
	subDuplicates := sheet{name: SheetSubtaskDuplicates, columns: clusterColumns, rows: clusterRows(r.SubtaskDuplicates)}

	collisions := sheet{
		name:    SheetCollisions,
		columns: []column{{"Project", 20}, {"Key", 30}, {"Orphan", 30}, {"Title", 40}, {"Anchors", 50}},
	}
	for _, c := range r.Collisions {
		anchors := make([]string, len(c.Anchors))
		for i, a := range c.Anchors {
			anchors[i] = a.String()
		}
		collisions.rows = append(collisions.rows, []interface{}{c.ProjectID, c.Key, c.Orphan.String(), c.Title, strings.Join(anchors, ", ")})
	}

	mismatches := sheet{
		name:    SheetParentMismatches,
		columns: []column{{"Record", 30}, {"Title", 40}, {"Remote Task", 30}, {"Local Parent", 30}, {"Remote Parent", 30}},
	}
	for _, m := range r.ParentMismatches {
		mismatches.rows = append(mismatches.rows, []interface{}{m.Ref.String(), m.Title, m.RemoteTaskID, m.LocalParent, m.RemoteParent})
	}

	dangling := sheet{
		name:    SheetDanglingLinks,
		columns: []column{{"Record", 30}, {"Title", 40}, {"Remote Task", 30}, {"Remote List", 30}},
	}
	for _, d := range r.DanglingLinks {
		dangling.rows = append(dangling.rows, []interface{}{d.Ref.String(), d.Title, d.RemoteTaskID, d.RemoteListID})
	}

	remoteDups := sheet{
		name:    SheetRemoteDuplicates,
		columns: []column{{"List", 30}, {"Parent", 30}, {"Key", 30}, {"Remote Tasks", 60}},
	}
	for _, d := range r.RemoteDuplicates {
		remoteDups.rows = append(remoteDups.rows, []interface{}{d.ListID, d.Parent, d.Key, strings.Join(d.TaskIDs, ", ")})
	}

	warnings := sheet{name: SheetWarnings, columns: []column{{"Warning", 100}}}
	for _, w := range r.Warnings {
		warnings.rows = append(warnings.rows, []interface{}{w})
	}

	return []sheet{summary, duplicates, subDuplicates, collisions, mismatches, dangling, remoteDups, warnings}
}

func clusterRows(clusters []domain.DuplicateCluster) [][]interface{} {
	var rows [][]interface{}
	for _, c := range clusters {
		for _, m := range c.Members {
			rows = append(rows, []interface{}{c.Scope, c.Key, m.Ref.String(), m.Title, m.Completed, m.RemoteTaskID})
		}
	}
	return rows
}
