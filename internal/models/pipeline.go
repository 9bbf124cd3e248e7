package models

// BackupSettings holds the inputs of one backup pipeline run.
type BackupSettings struct {
	DBName       string // logical database to dump
	DestDir      string // directory the archive is written into
	DestFilename string // archive filename, ".zip" appended when missing
	Jobs         int    // pg_dump parallel jobs
}

// RestoreSettings holds the inputs of one restore pipeline run.
type RestoreSettings struct {
	ZipPath    string // archive produced by a previous backup
	DestDBName string // logical database name to restore under
}

// PipelineResult is the final outcome of a backup or restore run.
// Warnings carry non-fatal follow-up problems (failed cleanup, failed
// role rollback); they never flip Success.
type PipelineResult struct {
	Success  bool
	Error    string
	Warnings []string
}

// Failure builds a failed result from an error message.
func Failure(msg string) PipelineResult {
	return PipelineResult{Success: false, Error: msg}
}

// Successful builds a successful result.
func Successful() PipelineResult {
	return PipelineResult{Success: true}
}
