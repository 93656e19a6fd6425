package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal"
)

func ExportImportRows(rows []ImportRow, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	data := make([][]any, 0, len(rows))
	for _, r := range rows {
		data = append(data, r.values())
	}
	writeSheet(f, sheet, OutputColumns, data)
	return save(f, outputPath)
}

func ExportSyncReport(report internal.SyncReport, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	stats := [][]any{
		{"Total Processado", report.Total},
		{"Movidos", report.Moved},
		{"Deletados", report.Deleted},
		{"Falhas", report.Failed},
		{"Ignorados", report.Skipped},
		{"Preservados", report.Preserved},
		{"Removidos do Estágio Final", report.Purged},
		{"Falhas na Remoção Final", report.PurgeFailed},
		{"Origens Movidas", report.OriginsMoved},
		{"Notas Criadas", report.NotesCreated},
	}
	if err := renameFirstSheet(f, "Estatísticas"); err != nil {
		return err
	}
	writeSheet(f, "Estatísticas", []string{"Métrica", "Valor"}, stats)

	details := make([][]any, 0, len(report.Results))
	for _, r := range report.Results {
		details = append(details, []any{r.CNJ, dealIDCell(r.DealID), yesNo(r.MovedOK), yesNo(r.DeletedOK), r.Error})
	}
	if _, err := f.NewSheet("Detalhes"); err != nil {
		return err
	}
	writeSheet(f, "Detalhes", []string{"CNJ", "Deal ID", "Movido", "Deletado", "Erro"}, details)
	return save(f, outputPath)
}

func ExportInteractionReport(report internal.InteractionReport, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	stats := [][]any{
		{"Total de Negócios", report.Total},
		{"Com Interaction Correta", report.Correct},
		{"Com Interaction Incorreta", report.Wrong},
		{"Sem Interaction", report.Without},
		{"Interactions Criadas", report.Created},
		{"LastInteractionId Atualizados", report.LastUpdated},
		{"Erros", report.Errors},
	}
	if err := renameFirstSheet(f, "Estatísticas"); err != nil {
		return err
	}
	writeSheet(f, "Estatísticas", []string{"Métrica", "Valor"}, stats)

	details := make([][]any, 0, len(report.Results))
	for _, r := range report.Results {
		details = append(details, []any{r.DealID, r.CNJ, yesNo(r.HadCorrect), yesNo(r.HadWrong), yesNo(r.Created), yesNo(r.LastUpdated), r.Error})
	}
	if _, err := f.NewSheet("Detalhes"); err != nil {
		return err
	}
	writeSheet(f, "Detalhes", []string{"Deal ID", "CNJ", "Tinha Interaction Correta", "Tinha Interaction Incorreta", "Interaction Criada", "LastInteractionId Atualizado", "Erro"}, details)
	return save(f, outputPath)
}

// CreatorColumns heads the creator check sheet.
var CreatorColumns = []string{"CNJ", "DealId", "Title", "CreatorId", "StatusId", "PipelineId"}

func ExportCreatorMismatches(rows []internal.CreatorMismatch, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	values := make([][]any, 0, len(rows))
	for _, r := range rows {
		values = append(values, []any{r.CNJ, r.DealID, r.Title, r.CreatorID, r.StatusID, r.PipelineID})
	}
	writeSheet(f, sheet, CreatorColumns, values)
	return save(f, outputPath)
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]any) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, row := range rows {
		for j, v := range row {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
}

func renameFirstSheet(f *excelize.File, name string) error {
	return f.SetSheetName(f.GetSheetName(0), name)
}

func save(f *excelize.File, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func yesNo(v bool) string {
	if v {
		return "Sim"
	}
	return "Não"
}

func dealIDCell(id int64) any {
	if id == 0 {
		return ""
	}
	return id
}
