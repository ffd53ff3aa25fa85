// Package executor orchestrates one import profile run end to end (C9):
// gather distinct table metadata, then for each table mapper build its
// column graph, stage, insert, update per group, and merge — always
// finalizing the staging table, preserving whichever error came first.
// Grounded on original_source/src/import_executor.rs, with the lifecycle
// shape (logger field, phase logging, cleanup-on-every-exit-path) adapted
// from mdzesseis-log_capturer_go/internal/app/app.go.
package executor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/etylermoss/sql-bulk-import-profile/internal/apperr"
	"github.com/etylermoss/sql-bulk-import-profile/internal/columngraph"
	"github.com/etylermoss/sql-bulk-import-profile/internal/datasource"
	"github.com/etylermoss/sql-bulk-import-profile/internal/dbdriver"
	"github.com/etylermoss/sql-bulk-import-profile/internal/identifier"
	"github.com/etylermoss/sql-bulk-import-profile/internal/insert"
	"github.com/etylermoss/sql-bulk-import-profile/internal/merge"
	"github.com/etylermoss/sql-bulk-import-profile/internal/metrics"
	"github.com/etylermoss/sql-bulk-import-profile/internal/profile"
	"github.com/etylermoss/sql-bulk-import-profile/internal/staging"
	"github.com/etylermoss/sql-bulk-import-profile/internal/update"
	"github.com/sirupsen/logrus"
)

const component = "executor"

// Executor drives a profile's table mappers against a single database
// connection, one at a time (SPEC_FULL.md §5's single-threaded cooperative
// model — no internal fan-out).
type Executor struct {
	driver dbdriver.Driver
	log    *logrus.Logger
}

// New builds an Executor bound to driver, logging through log.
func New(driver dbdriver.Driver, log *logrus.Logger) *Executor {
	return &Executor{driver: driver, log: log}
}

// Run executes every table mapper in prof, in declaration order. The first
// table mapper to fail stops the run; mappers already completed are not
// rolled back (each table mapper's staging lifecycle is self-contained).
func (e *Executor) Run(ctx context.Context, prof *profile.ImportProfile, options profile.ImportOptions) error {
	tableMetadata, err := e.collectTableMetadata(ctx, prof)
	if err != nil {
		return err
	}

	for _, mapper := range prof.TableMappers {
		if err := e.runTableMapper(ctx, prof.Name, mapper, prof.DataSourceConfig, tableMetadata, options); err != nil {
			return err
		}
	}

	return nil
}

// collectTableMetadata fetches server metadata once for every distinct
// table this profile touches: each table mapper's own target table, plus
// every Lookup column's referenced table.
func (e *Executor) collectTableMetadata(ctx context.Context, prof *profile.ImportProfile) (map[identifier.Table]map[identifier.Column]dbdriver.ColumnMetadata, error) {
	tableNames := make(map[identifier.Table]struct{})
	for _, mapper := range prof.TableMappers {
		tableNames[mapper.TableIdentifier] = struct{}{}
		for _, column := range mapper.Columns {
			if column.Lookup != nil {
				tableNames[column.Lookup.TableIdentifier] = struct{}{}
			}
		}
	}

	out := make(map[identifier.Table]map[identifier.Column]dbdriver.ColumnMetadata, len(tableNames))
	for table := range tableNames {
		metadata, err := e.driver.TableMetadata(ctx, table)
		if err != nil {
			return nil, apperr.New(apperr.CodeDBMetadata, component, "collectTableMetadata", fmt.Sprintf("could not retrieve metadata for table %s", table.Full())).Wrap(err)
		}
		out[table] = metadata
		if e.log != nil {
			e.log.WithFields(logrus.Fields{"table": table.Full(), "columns": len(metadata)}).Debug("retrieved table metadata")
		}
	}
	return out, nil
}

// runTableMapper carries one table mapper through its full C2-C8 lifecycle.
// The staging table is always finalized, even when an earlier step failed;
// the first error encountered wins over any finalize error.
func (e *Executor) runTableMapper(ctx context.Context, profileName string, mapper *profile.TableMapper, dataSourceConfig profile.DataSourceConfig, tableMetadata map[identifier.Table]map[identifier.Column]dbdriver.ColumnMetadata, options profile.ImportOptions) error {
	logFields := logrus.Fields{"profile": profileName, "table_mapper": mapper.Name}

	graph, err := columngraph.Build(mapper, tableMetadata, options, e.log)
	if err != nil {
		// Build reports configuration errors (unknown processed-key target,
		// column cycle) under their own codes; keep those codes and add the
		// profile/mapper context.
		if appErr, ok := apperr.As(err); ok {
			return appErr.WithContext(profileName, mapper.Name, nil)
		}
		return err
	}

	src, err := datasource.Open(dataSourceConfig, mapper.FieldGroup, options, mapper.PreprocessTransform)
	if err != nil {
		return err
	}
	defer src.Close()

	createStart := time.Now()
	stagingTable, err := staging.Create(ctx, e.driver, mapper.TableIdentifier, graph)
	metrics.RecordPhaseDuration(mapper.Name, metrics.PhaseStagingCreate, time.Since(createStart))
	if err != nil {
		return err
	}

	if e.log != nil {
		e.log.WithFields(logFields).WithField("staging_table", stagingTable.Identifier.Full()).Info("created staging table")
	}

	runErr := e.executeGroups(ctx, mapper, graph, stagingTable, src, profileName, options)

	dropStart := time.Now()
	finalizeErr := staging.Finalize(ctx, e.driver, stagingTable, options.NoDrop)
	metrics.RecordPhaseDuration(mapper.Name, metrics.PhaseStagingDrop, time.Since(dropStart))
	if finalizeErr != nil && e.log != nil {
		e.log.WithFields(logFields).WithError(finalizeErr).Warn("could not finalize staging table")
	}
	if runErr != nil {
		return runErr
	}
	if finalizeErr != nil {
		return finalizeErr
	}

	if options.Deletion == profile.DataSourceDeletionDelete {
		if path, err := datasource.ResolvedPath(dataSourceConfig, options); err == nil {
			if removeErr := os.Remove(path); removeErr != nil && e.log != nil {
				e.log.WithFields(logFields).WithError(removeErr).Warn("could not delete source file")
			}
		}
	}

	return nil
}

// executeGroups runs the insert processor on group 0, the update processor
// on every remaining group in order, then the merge processor (unless
// options.NoMerge is set).
func (e *Executor) executeGroups(ctx context.Context, mapper *profile.TableMapper, graph *columngraph.Graph, stagingTable *staging.Table, src datasource.Source, profileName string, options profile.ImportOptions) error {
	logFields := logrus.Fields{"profile": profileName, "table_mapper": mapper.Name}

	for groupIndex, group := range graph.Groups() {
		if groupIndex == 0 {
			insertStart := time.Now()
			result, err := insert.Run(ctx, e.driver, src, stagingTable, group, profileName, mapper.Name, e.log)
			metrics.RecordPhaseDuration(mapper.Name, metrics.PhaseInsert, time.Since(insertStart))
			if err != nil {
				metrics.RecordsReadTotal.WithLabelValues(mapper.Name, metrics.OutcomeError).Inc()
				return err
			}
			metrics.RecordsReadTotal.WithLabelValues(mapper.Name, metrics.OutcomeOK).Add(float64(result.RecordsRead))
			if result.RecordsSkipped > 0 {
				metrics.RecordsReadTotal.WithLabelValues(mapper.Name, metrics.OutcomeSkipped).Add(float64(result.RecordsSkipped))
			}
			metrics.RowsInsertedTotal.WithLabelValues(mapper.Name).Add(float64(result.RowsInserted))
			if e.log != nil {
				e.log.WithFields(logFields).WithFields(logrus.Fields{
					"records_read": result.RecordsRead, "rows_inserted": result.RowsInserted, "records_skipped": result.RecordsSkipped,
				}).Info("insert processor completed")
			}
			continue
		}

		updateStart := time.Now()
		err := update.Run(ctx, e.driver, stagingTable, graph, group)
		metrics.RecordPhaseDuration(mapper.Name, metrics.PhaseUpdate, time.Since(updateStart))
		if err != nil {
			return err
		}
		if e.log != nil {
			e.log.WithFields(logFields).WithField("group", groupIndex).Info("update processor completed")
		}
	}

	if options.NoMerge {
		return nil
	}

	mergeStart := time.Now()
	err := merge.Run(ctx, e.driver, mapper.TableIdentifier, stagingTable, graph, mapper.KeyColumns)
	metrics.RecordPhaseDuration(mapper.Name, metrics.PhaseMerge, time.Since(mergeStart))
	if err != nil {
		return err
	}
	if e.log != nil {
		e.log.WithFields(logFields).Info("merge processor completed")
	}
	return nil
}
