package profile

// DataSourceDeletion selects what happens to the source file after a table
// mapper finishes reading it.
type DataSourceDeletion int

const (
	// DataSourceDeletionRetain leaves the source file in place. Default.
	DataSourceDeletionRetain DataSourceDeletion = iota
	DataSourceDeletionDelete
)

// ImportOptions carries the CLI-level knobs that affect how a profile is
// executed, independent of the profile document itself.
type ImportOptions struct {
	// PathOverride replaces the data_source_config path from the profile,
	// when set.
	PathOverride string

	Deletion                DataSourceDeletion
	NoMerge                 bool // requires NoDrop; validated by the CLI layer
	NoDrop                  bool
	NoDuplicateOptimization bool
}

// DefaultImportOptions returns the zero-value defaults: retain the source
// file, run merge, drop the staging table, and apply duplicate optimization.
func DefaultImportOptions() ImportOptions {
	return ImportOptions{Deletion: DataSourceDeletionRetain}
}
