package runtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"kimberlite/internal/kernel"
)

// runEffects carries out effects in order against disk and the
// projection store. It stops at the first error: a partially applied
// effect list is always a fatal condition for the caller (see
// applyCommittedEffects), never something to retry piecemeal.
func (r *Runtime) runEffects(ctx context.Context, effects []kernel.Effect) error {
	for _, eff := range effects {
		switch e := eff.(type) {
		case kernel.StreamMetadataWrite:
			r.entry("kernel").WithFields(logrus.Fields{
				"stream_id": e.Meta.StreamId,
			}).Debug("stream metadata written")

		case kernel.TableMetadataWrite:
			// Registers on first sight, refreshes the column set on an
			// ALTER TABLE so later row events decode against it.
			r.store.RefreshTable(e.Meta)
			r.entry("projection").WithField("table_id", e.Meta.TableId).Debug("table metadata applied")

		case kernel.TableMetadataDrop:
			r.entry("kernel").WithField("table_id", e.TableId).Info("table catalog entry dropped")

		case kernel.IndexMetadataWrite:
			if err := r.store.RegisterIndex(e.Meta); err != nil {
				return fmt.Errorf("runtime: register index: %w", err)
			}
			r.entry("projection").WithField("index_id", e.Meta.IndexId).Debug("index registered")

		case kernel.StorageAppend:
			log, err := r.openStreamLog(ctx, e.StreamId)
			if err != nil {
				return err
			}
			if _, _, err := log.AppendBatch(ctx, e.Events, e.Base, r.compr); err != nil {
				return fmt.Errorf("runtime: append stream %s: %w", e.StreamId, err)
			}
			r.entry("recordlog").WithFields(logrus.Fields{
				"stream_id": e.StreamId,
				"offset":    e.Base,
				"count":     len(e.Events),
			}).Debug("events appended")

		case kernel.WakeProjection:
			// Generic-stream projection hooks beyond table rows are not
			// part of this implementation's scope; table rows are driven
			// by UpdateProjection below instead.
			r.entry("projection").WithFields(logrus.Fields{
				"stream_id": e.StreamId,
				"from":      e.From,
				"to":        e.To,
			}).Debug("projection wake observed")

		case kernel.UpdateProjection:
			if err := r.driveTableProjection(ctx, e); err != nil {
				return err
			}

		case kernel.AuditLogAppend:
			if err := r.appendAudit(ctx, e.Action); err != nil {
				return err
			}

		default:
			return fmt.Errorf("runtime: unrecognized effect %T", eff)
		}
	}
	return nil
}

// driveTableProjection reads back the row events a preceding
// StorageAppend effect just persisted for this table's backing stream
// and folds them into the projection store. The kernel always orders
// UpdateProjection immediately after the StorageAppend whose range it
// names, so the events are guaranteed to be durable by this point.
func (r *Runtime) driveTableProjection(ctx context.Context, e kernel.UpdateProjection) error {
	table, ok := r.state.Tables.Get(e.TableId)
	if !ok {
		return fmt.Errorf("runtime: update projection: table %d not in catalog", e.TableId)
	}
	log, err := r.openStreamLog(ctx, table.StreamId)
	if err != nil {
		return err
	}
	records, err := log.Read(ctx, e.From, e.To)
	if err != nil {
		return fmt.Errorf("runtime: read backing stream for table %d: %w", e.TableId, err)
	}
	events := make([][]byte, len(records))
	for i, rec := range records {
		events[i] = rec.Payload
	}
	if err := r.store.ApplyRowAppend(e.TableId, e.From, events); err != nil {
		return fmt.Errorf("runtime: apply row append: %w", err)
	}
	r.entry("projection").WithFields(logrus.Fields{
		"table_id": e.TableId,
		"from":     e.From,
		"to":       e.To,
	}).Debug("table projection advanced")
	return nil
}

// auditEntry is the durable, JSON-encoded shape one AuditLogAppend
// effect is recorded as. Kind/Summary mirror kernel.AuditAction exactly;
// Timestamp is stamped here, not by the kernel, since apply() never
// touches the clock.
type auditEntry struct {
	TenantId  uint32 `json:"tenant_id"`
	Kind      string `json:"kind"`
	Summary   string `json:"summary"`
	Timestamp int64  `json:"timestamp_unix_nano"`
}

func (r *Runtime) appendAudit(ctx context.Context, action kernel.AuditAction) error {
	log, err := r.openAuditLog(ctx, action.TenantId)
	if err != nil {
		return err
	}
	entry := auditEntry{
		TenantId:  uint32(action.TenantId),
		Kind:      action.Kind,
		Summary:   action.Summary,
		Timestamp: r.clock.Now().UnixNano(),
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("runtime: encode audit entry: %w", err)
	}
	if _, _, err := log.AppendBatch(ctx, [][]byte{payload}, log.CurrentOffset(), r.compr); err != nil {
		return fmt.Errorf("runtime: append audit entry: %w", err)
	}
	r.entry("audit").WithFields(logrus.Fields{
		"tenant_id": action.TenantId,
		"kind":      action.Kind,
	}).Info(action.Summary)
	return nil
}
