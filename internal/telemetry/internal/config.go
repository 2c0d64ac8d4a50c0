package internal

type ExportOption int

const (
	ExportOptionNone ExportOption = iota
	ExportOptionStdout
	ExportOptionGrpc
)

type Config struct {
	ServiceName string

	MetricExportOption ExportOption
}
