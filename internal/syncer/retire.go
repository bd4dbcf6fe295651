package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/hwops/assetsync/internal/assets"
)

// RunRetirement marks assets whose retirement date has passed. An asset is
// retired when its retirement date attribute parses to a day at or before
// today and its status is not already the retired value. Assets without a
// retirement date are skipped.
func (e *Engine) RunRetirement(ctx context.Context, dryRun bool) ([]Outcome, error) {
	if e.config.RetirementDateAttribute == "" || e.config.StatusAttribute == "" {
		return nil, fmt.Errorf("retirement processing requires retirement date and status attributes")
	}

	ids, err := e.resolve(ctx)
	if err != nil {
		return nil, err
	}
	dateAttr, err := e.assets.AttributeID(ctx, ids.typeID, e.config.RetirementDateAttribute)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve retirement date attribute: %w", err)
	}
	statusAttr, err := e.assets.AttributeID(ctx, ids.typeID, e.config.StatusAttribute)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve status attribute: %w", err)
	}

	entries, err := e.assets.QueryAll(ctx, fmt.Sprintf("objectType = %q", e.config.ObjectType))
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	today := e.clock().Truncate(24 * time.Hour)
	outcomes := make([]Outcome, 0, len(entries))

	for i := range entries {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		obj, err := e.assets.Get(ctx, entries[i].ID)
		if err != nil {
			outcomes = append(outcomes, Outcome{
				ObjectKey: entries[i].ObjectKey,
				Timestamp: e.clock(),
				DryRun:    dryRun,
				Err:       err,
				Error:     err.Error(),
			})
			continue
		}

		out := e.retireObject(ctx, obj, dateAttr, statusAttr, today, dryRun)
		outcomes = append(outcomes, *out)
	}

	return outcomes, nil
}

func (e *Engine) retireObject(ctx context.Context, obj *assets.Object, dateAttr, statusAttr int, today time.Time, dryRun bool) *Outcome {
	out := &Outcome{ObjectKey: obj.ObjectKey, Timestamp: e.clock(), DryRun: dryRun}

	raw := assets.ExtractValue(obj, dateAttr)
	if raw == "" {
		return skip(out, "no retirement date")
	}

	retireAt, err := parseStrictDate(raw)
	if err != nil {
		return skip(out, fmt.Sprintf("unparseable retirement date %q", raw))
	}
	if retireAt.After(today) {
		return skip(out, "retirement date in the future")
	}

	status := assets.ExtractValue(obj, statusAttr)
	if status == e.config.RetiredStatusValue {
		return skip(out, "already retired")
	}

	if dryRun {
		e.logger.Printf("[dry-run] Would retire %s (retirement date %s)", obj.ObjectKey, raw)
		out.Success = true
		return out
	}

	update := assets.BuildAttributeUpdate(statusAttr, e.config.RetiredStatusValue)
	if _, err := e.assets.Update(ctx, obj.ID, []assets.AttributeUpdate{update}); err != nil {
		out.Err = fmt.Errorf("failed to retire %s: %w", obj.ObjectKey, err)
		out.Error = out.Err.Error()
		return out
	}

	// Same rule as assignee writes: the update only counts once the record
	// reads back with the retired status.
	verified, err := e.assets.Get(ctx, obj.ID)
	if err != nil {
		out.Err = fmt.Errorf("failed to verify %s: %w", obj.ObjectKey, err)
		out.Error = out.Err.Error()
		return out
	}
	if got := assets.ExtractValue(verified, statusAttr); got != e.config.RetiredStatusValue {
		out.Err = fmt.Errorf("verification failed: status on %s is %q instead of %q after update",
			obj.ObjectKey, got, e.config.RetiredStatusValue)
		out.Error = out.Err.Error()
		return out
	}

	e.logger.Printf("Retired %s (retirement date %s)", obj.ObjectKey, raw)
	out.Success = true
	out.Updated = true
	return out
}
