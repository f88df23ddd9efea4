package cache

import "strconv"

const prefix = "cargo:"

// KeyTariffGeneration counts tariff table invalidations.
func KeyTariffGeneration() string {
	return prefix + "tariffs:gen"
}

// KeyTariffTable holds the serialised tariff table for one generation.
func KeyTariffTable(gen int64) string {
	return prefix + "tariffs:table:" + strconv.FormatInt(gen, 10)
}

// KeyBranchWhitelist holds the nomenclature ids available at a branch.
func KeyBranchWhitelist(branchID int64) string {
	return prefix + "branch:" + strconv.FormatInt(branchID, 10) + ":nomenclature"
}

// KeyReportExport holds the status of an asynchronous report export.
func KeyReportExport(id string) string {
	return prefix + "report:export:" + id
}

// KeyReportExportFile holds the rendered bytes of a finished export.
func KeyReportExportFile(id string) string {
	return prefix + "report:export:" + id + ":file"
}
